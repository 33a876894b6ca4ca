// Package eventbus implements the process-wide broadcast component (spec
// §4.9): a bounded multi-producer multi-consumer fan-out from ingestion and
// upload activity to subscribed WebSocket clients.
package eventbus

import "time"

// EventType enumerates the event shapes the bus carries (spec §4.9).
type EventType string

const (
	EventReportCreated   EventType = "report_created"
	EventReportUpdated   EventType = "report_updated"
	EventJobCreated      EventType = "job_created"
	EventJobUpdated      EventType = "job_updated"
	EventSuitesAvailable EventType = "suites_available"
)

// Event is the wire shape broadcast to every subscriber.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
