package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

const (
	historySheet = "History"
	sessionSheet = "Session"
)

// XLSXExporter writes a workbook with the history and a session summary
type XLSXExporter struct{}

// NewXLSXExporter creates an XLSX exporter
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) Format() string { return "xlsx" }
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export writes the workbook
func (e *XLSXExporter) Export(ctx context.Context, w io.Writer, snap session.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range Rows(snap) {
		if err := ctx.Err(); err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row.Strings()
		cells := make([]interface{}, len(values))
		cells[0] = row.Sequence
		for j := 1; j < len(values); j++ {
			cells[j] = values[j]
		}
		if err := f.SetSheetRow(historySheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.Sequence, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(historySheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(historySheet, "C", "C", 80); err != nil {
		return fmt.Errorf("failed to size prompt column: %w", err)
	}

	if _, err := f.NewSheet(sessionSheet); err != nil {
		return fmt.Errorf("failed to add session sheet: %w", err)
	}
	summary := [][]interface{}{
		{"session_id", snap.SessionID.String()},
		{"idea", string(snap.Idea)},
		{"image_model", string(snap.Config.ImageModel)},
		{"aspect_ratio", snap.Config.AspectRatio.Ratio()},
		{"max_iterations", snap.Config.MaxIterations},
		{"iteration_count", snap.IterationCount},
		{"phase", string(snap.Phase)},
		{"final_prompt", FinalPrompt(snap)},
	}
	for i, kv := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sessionSheet, cell, &kv); err != nil {
			return fmt.Errorf("failed to write session summary: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
