package objectstore

import (
	"fmt"
	"path"
	"strings"
)

// ArtifactKind is one of {html, screenshots, json}; governs the key layout
// segment and selects the per-kind extension allow-list (allowedExtensions
// in internal/upload) that the upload coordinator applies (spec §4.7 GLOSSARY "Artifact kind").
type ArtifactKind string

const (
	KindHTML        ArtifactKind = "html"
	KindScreenshots ArtifactKind = "screenshots"
	KindJSON        ArtifactKind = "json"
)

// Key builds the bit-exact object-store key external tools depend on (spec §4.1):
//
//	reports/{report_id}/jobs/{job_id}/{kind}/{filename}
func Key(reportID, jobID string, kind ArtifactKind, filename string) string {
	return fmt.Sprintf("reports/%s/jobs/%s/%s/%s", reportID, jobID, kind, filename)
}

// KeyPrefix builds the prefix for every object of one kind under one job,
// used for the job's html_storage_key_prefix field (spec §4.7) and for
// DeletePrefix/List.
func KeyPrefix(reportID, jobID string, kind ArtifactKind) string {
	return fmt.Sprintf("reports/%s/jobs/%s/%s/", reportID, jobID, kind)
}

// extensionContentTypes is the fixed extension→MIME table spec §4.1 mandates.
// Anything not listed falls back to application/octet-stream.
var extensionContentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".ttf":  "font/ttf",
	".eot":  "application/vnd.ms-fontobject",
	".otf":  "font/otf",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

const defaultContentType = "application/octet-stream"

// InferContentType looks up filename's extension in the fixed table, falling
// back to application/octet-stream (spec §4.1).
func InferContentType(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}

	return defaultContentType
}
