package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		approved bool
		clause   string
		score    *int
		wantErr  bool
	}{
		{
			name:     "plain json",
			content:  `{"approved": false, "refinement_clause": "Paint the frame blue", "score": 40, "notes": "frame still red"}`,
			approved: false,
			clause:   "Paint the frame blue",
			score:    intPtr(40),
		},
		{
			name:     "fenced with prose",
			content:  "Here is my review:\n```json\n{\"approved\": true, \"refinement_clause\": \"\"}\n```",
			approved: true,
		},
		{
			name:     "string boolean and camel case",
			content:  `{"approved": "false", "refinementClause": "Add rain"}`,
			approved: false,
			clause:   "Add rain",
		},
		{name: "no json", content: "Looks great!", wantErr: true},
		{name: "missing approved", content: `{"refinement_clause": "x"}`, wantErr: true},
		{name: "score out of range", content: `{"approved": true, "score": 140}`, wantErr: true},
		{name: "rejected without clause", content: `{"approved": false}`, wantErr: true},
		{name: "broken json", content: `{"approved": tru`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.approved, v.Approved)
			assert.Equal(t, tt.clause, v.RefinementClause)
			assert.Equal(t, tt.score, v.Score)
		})
	}
}

func TestCleanPrompt(t *testing.T) {
	assert.Equal(t, "A red bicycle at dawn", CleanPrompt("```\nA red bicycle at dawn\n```"))
	assert.Equal(t, "A red bicycle at dawn", CleanPrompt(`"A red bicycle at dawn"`))
	assert.Equal(t, "A red bicycle at dawn", CleanPrompt("Prompt: A red bicycle at dawn"))
	assert.Equal(t, "Style: watercolor", CleanPrompt("Style: watercolor"))
}

func TestClassifyStatus(t *testing.T) {
	cause := errors.New("api error")
	tests := []struct {
		name   string
		op     gateway.Operation
		status int
		code   string
		want   apperrors.ErrorCode
	}{
		{"content policy", gateway.OpGenerateImage, 400, "content_policy_violation", apperrors.ErrCodeGenerationRejected},
		{"bad image request", gateway.OpGenerateImage, 400, "", apperrors.ErrCodeGenerationRejected},
		{"bad chat request", gateway.OpJudge, 400, "", apperrors.ErrCodeModelUnavailable},
		{"gateway timeout", gateway.OpJudge, 504, "", apperrors.ErrCodeTimeout},
		{"rate limited", gateway.OpSynthesizePrompt, 429, "rate_limit_exceeded", apperrors.ErrCodeModelUnavailable},
		{"server error", gateway.OpGenerateImage, 500, "", apperrors.ErrCodeModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.op, tt.status, tt.code, cause)
			assert.Equal(t, tt.want, apperrors.KindOf(err))
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestClassifyAPIError_NonAPIErrors(t *testing.T) {
	assert.True(t, apperrors.Is(classifyAPIError(gateway.OpJudge, context.DeadlineExceeded), apperrors.ErrCodeTimeout))
	assert.True(t, apperrors.Is(classifyAPIError(gateway.OpJudge, errors.New("dial tcp")), apperrors.ErrCodeModelUnavailable))
}

func TestNewClients_RequireSettings(t *testing.T) {
	_, err := NewChatClient(Settings{Model: "gpt-4.1"}, "", nil, nil)
	assert.Error(t, err)

	_, err = NewImageClient(Settings{APIKey: "k"}, ImageOptions{})
	assert.Error(t, err)

	c, err := NewChatClient(Settings{APIKey: "k", Model: "gpt-4.1"}, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", c.judgeModel)
}

func intPtr(n int) *int { return &n }
