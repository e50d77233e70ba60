package export

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/alejandroruanova/sfumato/internal/core/services/session"
)

// Exporter writes a session history in one format
type Exporter interface {
	// Export writes the snapshot's history to w
	Export(ctx context.Context, w io.Writer, snap session.Snapshot) error

	// Format returns the format name used in requests (csv, jsonl, xlsx)
	Format() string

	// ContentType returns the MIME type of the output
	ContentType() string
}

// Columns is the header of tabular exports
var Columns = []string{
	"sequence",
	"tag",
	"prompt",
	"prompt_version",
	"prompt_origin",
	"prompt_diff",
	"user_feedback",
	"image_ref",
	"approved",
	"refinement_clause",
	"score",
	"notes",
	"created_at",
}

// Row is one flattened history entry
type Row struct {
	Sequence         int    `json:"sequence"`
	Tag              string `json:"tag"`
	Prompt           string `json:"prompt"`
	PromptVersion    int    `json:"prompt_version"`
	PromptOrigin     string `json:"prompt_origin"`
	PromptDiff       string `json:"prompt_diff,omitempty"`
	UserFeedback     string `json:"user_feedback,omitempty"`
	ImageRef         string `json:"image_ref"`
	Approved         *bool  `json:"approved,omitempty"`
	RefinementClause string `json:"refinement_clause,omitempty"`
	Score            *int   `json:"score,omitempty"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// Rows flattens the snapshot history in sequence order
func Rows(snap session.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.History))
	for _, a := range snap.History {
		row := Row{
			Sequence:      a.Sequence,
			Tag:           a.Tag.String(),
			Prompt:        a.Prompt.Text,
			PromptVersion: a.Prompt.Version,
			PromptOrigin:  string(a.Prompt.Origin),
			PromptDiff:    a.PromptDiff,
			UserFeedback:  string(a.UserFeedback),
			ImageRef:      string(a.ImageRef),
		}
		if !a.CreatedAt.IsZero() {
			row.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
		}
		if v := a.Verdict; v != nil {
			approved := v.Approved
			row.Approved = &approved
			row.RefinementClause = v.RefinementClause
			row.Score = v.Score
			row.Notes = v.Notes
		}
		rows = append(rows, row)
	}
	return rows
}

// Strings returns the row in Columns order
func (r Row) Strings() []string {
	approved, score := "", ""
	if r.Approved != nil {
		approved = strconv.FormatBool(*r.Approved)
	}
	if r.Score != nil {
		score = strconv.Itoa(*r.Score)
	}
	return []string{
		strconv.Itoa(r.Sequence),
		r.Tag,
		r.Prompt,
		strconv.Itoa(r.PromptVersion),
		r.PromptOrigin,
		r.PromptDiff,
		r.UserFeedback,
		r.ImageRef,
		approved,
		r.RefinementClause,
		score,
		r.Notes,
		r.CreatedAt,
	}
}

// FinalPrompt is the prompt a user copies out of a session: the prompt of the
// latest artifact, or the current prompt before any image exists.
func FinalPrompt(snap session.Snapshot) string {
	if n := len(snap.History); n > 0 {
		return snap.History[n-1].Prompt.Text
	}
	if snap.Prompt != nil {
		return snap.Prompt.Text
	}
	return ""
}
