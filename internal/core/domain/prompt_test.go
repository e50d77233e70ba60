package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

func TestNewIdea(t *testing.T) {
	idea, err := NewIdea("  a fox   in snow ")
	require.NoError(t, err)
	assert.Equal(t, Idea("a fox in snow"), idea)

	_, err = NewIdea(" \t ")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}

func TestNewFeedback_Blank(t *testing.T) {
	_, err := NewFeedback("   ")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeMissingFeedback))
}

func TestPrompt_EditKeepsReceiver(t *testing.T) {
	p, err := NewPrompt("A fox in snow")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, PromptSynthesized, p.Origin)

	edited, err := p.Edit("A red fox in deep snow")
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Version)
	assert.Equal(t, PromptEdited, edited.Origin)
	assert.Equal(t, "A fox in snow", p.Text)

	_, err = p.Edit("")
	assert.Error(t, err)
}

func TestPrompt_Refine(t *testing.T) {
	p := Prompt{Text: "A fox in snow", Version: 1, Origin: PromptSynthesized}

	refined, diff := p.Refine("Use warmer light", Feedback("too cold"))
	assert.Equal(t, "A fox in snow. Use warmer light. User feedback: too cold.", refined.Text)
	assert.Equal(t, "Use warmer light. User feedback: too cold.", diff)
	assert.Equal(t, 2, refined.Version)
	assert.Equal(t, PromptRefined, refined.Origin)
	assert.Equal(t, "A fox in snow", p.Text)

	bare, diff := p.Refine("", "")
	assert.Equal(t, "A fox in snow.", bare.Text)
	assert.Empty(t, diff)
}

func TestTag_TextRoundTrip(t *testing.T) {
	for _, tag := range []Tag{DraftTag(), FinalTag(), RefinementTag(3)} {
		b, err := tag.MarshalText()
		require.NoError(t, err)
		var got Tag
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, tag, got)
	}

	assert.Equal(t, "refinement(2)", RefinementTag(2).String())

	for _, bad := range []string{"refinement(0)", "refinement(x)", "other"} {
		_, err := ParseTag(bad)
		assert.Error(t, err, bad)
	}
}

func TestArtifact_JSONTag(t *testing.T) {
	a := Artifact{Sequence: 2, Tag: RefinementTag(1), ImageRef: "img://2"}
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tag":"refinement(1)"`)
}

func TestJudgeVerdict_Validate(t *testing.T) {
	score := func(n int) *int { return &n }

	assert.NoError(t, JudgeVerdict{Approved: true}.Validate())
	assert.NoError(t, JudgeVerdict{Score: score(0)}.Validate())
	assert.NoError(t, JudgeVerdict{Score: score(100)}.Validate())
	assert.Error(t, JudgeVerdict{Score: score(101)}.Validate())
	assert.Error(t, JudgeVerdict{Score: score(-1)}.Validate())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		inFlight bool
		failed   bool
		want     Status
	}{
		{"idle", PhaseIdle, false, false, StatusDraft},
		{"looping", PhaseLooping, false, false, StatusRunning},
		{"draft in flight", PhasePromptReady, true, false, StatusRunning},
		{"failed", PhaseDraftReady, false, true, StatusFailed},
		{"refined", PhaseRefined, false, false, StatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.phase, tt.inFlight, tt.failed))
		})
	}
}

func TestSessionRecord_TableNames(t *testing.T) {
	assert.Equal(t, "session_snapshots", SessionRecord{}.TableName())
	assert.Equal(t, "artifact_records", ArtifactRecord{}.TableName())

	rec := &SessionRecord{}
	require.NoError(t, rec.BeforeCreate(nil))
	assert.NotEqual(t, [16]byte{}, [16]byte(rec.ID))
	require.NotNil(t, rec.ExpiresAt)
	assert.False(t, rec.IsExpired(rec.CreatedAt))
}
