package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "app error", err: InvalidInput("blank idea"), expected: ErrCodeInvalidInput},
		{name: "wrapped app error", err: fmt.Errorf("submit: %w", SessionBusy("submit_idea")), expected: ErrCodeSessionBusy},
		{name: "deadline", err: context.DeadlineExceeded, expected: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("call: %w", context.Canceled), expected: ErrCodeCancelled},
		{name: "plain", err: fmt.Errorf("boom"), expected: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestRetriable(t *testing.T) {
	assert.True(t, Retriable(ErrCodeModelUnavailable))
	assert.True(t, Retriable(ErrCodeGenerationRejected))
	assert.True(t, Retriable(ErrCodeTimeout))
	assert.False(t, Retriable(ErrCodeSequenceViolation))
	assert.False(t, Retriable(ErrCodeInvalidPhase))
	assert.False(t, Retriable(ErrCodeMissingFeedback))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ModelUnavailable(cause, "prompt model unreachable")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "MODEL_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")

	appErr, ok := GetAppError(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, appErr.StatusCode)
}

func TestInvalidPhase_Details(t *testing.T) {
	err := InvalidPhase("generate_draft", "draft_ready")

	assert.Equal(t, ErrCodeInvalidPhase, err.Code)
	assert.Equal(t, "generate_draft", err.Details["command"])
	assert.Equal(t, "draft_ready", err.Details["phase"])
	assert.Equal(t, http.StatusConflict, StatusFor(err))
}

func TestSequenceViolation(t *testing.T) {
	err := SequenceViolation(3, 5)

	assert.True(t, Is(err, ErrCodeSequenceViolation))
	assert.Equal(t, 3, err.Details["expected"])
	assert.Equal(t, 5, err.Details["got"])
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))
}
