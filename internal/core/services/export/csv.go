package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

// CSVExporter writes one header row and one row per artifact
type CSVExporter struct{}

// NewCSVExporter creates a CSV exporter
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Format() string      { return "csv" }
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Export writes the history as CSV
func (e *CSVExporter) Export(ctx context.Context, w io.Writer, snap session.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range Rows(snap) {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := cw.Write(row.Strings()); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row.Sequence, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
