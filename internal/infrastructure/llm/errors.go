package llm

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go"

	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// classifyAPIError maps provider API errors onto the gateway taxonomy
func classifyAPIError(op gateway.Operation, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return gateway.Classify(op, err)
	}
	return classifyStatus(op, apiErr.StatusCode, apiErr.Code, err)
}

func classifyStatus(op gateway.Operation, status int, code string, err error) error {
	switch {
	case code == "content_policy_violation" || code == "moderation_blocked":
		return apperrors.GenerationRejected(err, "request rejected by content policy").
			WithDetails("operation", string(op)).
			WithDetails("provider_code", code)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperrors.Timeout(err, string(op))
	case status == http.StatusBadRequest && op == gateway.OpGenerateImage:
		return apperrors.GenerationRejected(err, "image request rejected by provider").
			WithDetails("operation", string(op)).
			WithDetails("status", status)
	default:
		return apperrors.ModelUnavailable(err, fmt.Sprintf("%s failed with status %d", op, status)).
			WithDetails("operation", string(op)).
			WithDetails("status", status)
	}
}
