package domain

import (
	"fmt"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// JudgeVerdict is the judge's evaluation of an image against feedback
type JudgeVerdict struct {
	Approved         bool   `json:"approved"`
	RefinementClause string `json:"refinement_clause"`
	// Score is an optional 0..100 quality rating
	Score *int   `json:"score,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Validate checks the optional score range
func (v JudgeVerdict) Validate() error {
	if v.Score != nil && (*v.Score < 0 || *v.Score > 100) {
		return apperrors.InvalidInput(fmt.Sprintf("judge score must be in [0,100], got %d", *v.Score))
	}
	return nil
}
