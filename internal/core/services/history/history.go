// Package history holds the append-only, strictly sequenced artifact log of a session.
package history

import (
	"iter"
	"slices"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// History is an ordered artifact log. Sequences start at 1 and increase by
// exactly one. Entries are never modified or removed. History is not safe for
// concurrent use; the owning session serializes access.
type History struct {
	entries []domain.Artifact
}

// New returns an empty history
func New() *History {
	return &History{}
}

// FromArtifacts rebuilds a history, checking that sequences run 1..N
func FromArtifacts(artifacts []domain.Artifact) (*History, error) {
	h := New()
	for _, a := range artifacts {
		if err := h.Append(a); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// NextSequence is the sequence the next appended artifact must carry
func (h *History) NextSequence() int {
	return len(h.entries) + 1
}

// Append adds an artifact whose sequence must equal NextSequence
func (h *History) Append(a domain.Artifact) error {
	if want := h.NextSequence(); a.Sequence != want {
		return apperrors.SequenceViolation(want, a.Sequence)
	}
	h.entries = append(h.entries, a)
	return nil
}

// Latest returns the most recent artifact
func (h *History) Latest() (domain.Artifact, bool) {
	if len(h.entries) == 0 {
		return domain.Artifact{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of artifacts
func (h *History) Len() int {
	return len(h.entries)
}

// All iterates artifacts in sequence order
func (h *History) All() iter.Seq[domain.Artifact] {
	return slices.Values(h.entries)
}

// Slice returns a copy of the entries
func (h *History) Slice() []domain.Artifact {
	return slices.Clone(h.entries)
}
