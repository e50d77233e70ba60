// Package export renders session histories as CSV, JSONL or XLSX.
package export

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// Factory selects an exporter by format name
type Factory struct {
	exporters map[string]Exporter
}

// NewFactory creates a factory with the built-in exporters
func NewFactory() *Factory {
	f := &Factory{exporters: make(map[string]Exporter)}

	f.Register(NewCSVExporter())
	f.Register(NewJSONLExporter())
	f.Register(NewXLSXExporter())

	return f
}

// Register adds or replaces an exporter
func (f *Factory) Register(e Exporter) {
	f.exporters[normalizeFormat(e.Format())] = e
}

// Get returns the exporter for a format name or file extension
func (f *Factory) Get(format string) (Exporter, error) {
	e, ok := f.exporters[normalizeFormat(format)]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported export format %q", format)).
			WithDetails("supported", f.Formats())
	}
	return e, nil
}

// Formats lists registered format names
func (f *Factory) Formats() []string {
	formats := make([]string, 0, len(f.exporters))
	for name := range f.exporters {
		formats = append(formats, name)
	}
	slices.Sort(formats)
	return formats
}

// IsSupported checks if a format is registered
func (f *Factory) IsSupported(format string) bool {
	_, ok := f.exporters[normalizeFormat(format)]
	return ok
}

// Filename builds a download name from the idea and session ID
func Filename(snap session.Snapshot, format string) string {
	slug := textutil.Slugify(textutil.Truncate(string(snap.Idea), 40))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "session"
	}
	return fmt.Sprintf("%s-%s.%s", slug, snap.SessionID.String()[:8], normalizeFormat(format))
}

func normalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}
