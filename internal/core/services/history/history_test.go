package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

func artifact(seq int) domain.Artifact {
	return domain.Artifact{Sequence: seq, ImageRef: domain.ImageRef("img"), Tag: domain.DraftTag()}
}

func TestHistory_AppendInOrder(t *testing.T) {
	h := New()
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Equal(t, 1, h.NextSequence())

	require.NoError(t, h.Append(artifact(1)))
	require.NoError(t, h.Append(artifact(2)))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Sequence)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 3, h.NextSequence())
}

func TestHistory_RejectsGapsAndRepeats(t *testing.T) {
	h := New()
	require.NoError(t, h.Append(artifact(1)))

	for _, seq := range []int{1, 3, 0} {
		err := h.Append(artifact(seq))
		require.Error(t, err)
		appErr, ok := apperrors.GetAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeSequenceViolation, appErr.Code)
		assert.Equal(t, 2, appErr.Details["expected"])
	}
	assert.Equal(t, 1, h.Len())
}

func TestHistory_All(t *testing.T) {
	h, err := FromArtifacts([]domain.Artifact{artifact(1), artifact(2), artifact(3)})
	require.NoError(t, err)

	var seqs []int
	for a := range h.All() {
		seqs = append(seqs, a.Sequence)
	}
	assert.Equal(t, []int{1, 2, 3}, seqs)
}

func TestHistory_SliceIsCopy(t *testing.T) {
	h, err := FromArtifacts([]domain.Artifact{artifact(1)})
	require.NoError(t, err)

	s := h.Slice()
	s[0].ImageRef = "changed"

	latest, _ := h.Latest()
	assert.Equal(t, domain.ImageRef("img"), latest.ImageRef)
}

func TestFromArtifacts_InvalidSequence(t *testing.T) {
	_, err := FromArtifacts([]domain.Artifact{artifact(1), artifact(3)})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeSequenceViolation))
}
