// Package upload implements the Upload Coordinator (spec §4.7): the
// two-phase register-then-transfer protocol run independently for each
// artifact kind (html, screenshots, json).
package upload

import (
	"fmt"
	"path"
	"strings"

	"github.com/tsio/tsio/internal/objectstore"
)

const (
	htmlSizeLimit       = 50 << 20
	screenshotSizeLimit = 10 << 20
	jsonSizeLimit       = 50 << 20
)

// sizeLimit returns the per-kind maximum declared/actual size (spec §4.7).
func sizeLimit(kind objectstore.ArtifactKind) int64 {
	switch kind {
	case objectstore.KindHTML:
		return htmlSizeLimit
	case objectstore.KindScreenshots:
		return screenshotSizeLimit
	case objectstore.KindJSON:
		return jsonSizeLimit
	default:
		return 0
	}
}

// allowedExtensions is the fixed per-kind extension allow-list (spec §4.7):
// html kind accepts web assets/images/fonts/text, screenshots accepts raster
// image formats, json accepts only .json.
var allowedExtensions = map[objectstore.ArtifactKind]map[string]struct{}{
	objectstore.KindHTML: set(
		".html", ".htm", ".css", ".js", ".mjs", ".svg", ".txt", ".map",
		".woff", ".woff2", ".ttf", ".eot", ".png", ".jpg", ".jpeg", ".gif", ".ico",
	),
	objectstore.KindScreenshots: set(".png", ".jpg", ".jpeg", ".gif", ".webp"),
	objectstore.KindJSON:        set(".json"),
}

func set(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}

	return m
}

// Rejection describes why a single entry failed validate (spec §4.7
// "rejected[{path, reason}]").
type Rejection struct {
	Path   string
	Reason string
}

// validate enforces spec §4.7's init-time checks: non-empty relative path,
// no traversal, extension allow-listed for kind, size within the kind's
// limit. Any negative size is rejected; the actual bytes are checked against
// the same limit again at transfer time.
func validate(kind objectstore.ArtifactKind, filePath string, size int64) error {
	if filePath == "" {
		return fmt.Errorf("path must not be empty")
	}

	if path.IsAbs(filePath) {
		return fmt.Errorf("path must not be absolute")
	}

	if strings.Contains(filePath, "..") {
		return fmt.Errorf("path must not contain '..'")
	}

	ext := strings.ToLower(path.Ext(filePath))

	allowed, ok := allowedExtensions[kind]
	if !ok {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	if _, ok := allowed[ext]; !ok {
		return fmt.Errorf("extension %q not allowed for kind %q", ext, kind)
	}

	if size < 0 {
		return fmt.Errorf("size must be non-negative")
	}

	if limit := sizeLimit(kind); size > limit {
		return fmt.Errorf("size %d exceeds limit %d for kind %q", size, limit, kind)
	}

	return nil
}
