package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

// JSONLExporter writes one JSON object per artifact per line
type JSONLExporter struct{}

// NewJSONLExporter creates a JSONL exporter
func NewJSONLExporter() *JSONLExporter {
	return &JSONLExporter{}
}

func (e *JSONLExporter) Format() string      { return "jsonl" }
func (e *JSONLExporter) ContentType() string { return "application/x-ndjson" }

// Export writes the history as newline-delimited JSON
func (e *JSONLExporter) Export(ctx context.Context, w io.Writer, snap session.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, row := range Rows(snap) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", row.Sequence, err)
		}
	}
	return nil
}
