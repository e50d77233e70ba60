package gateway

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

// Classify maps any error returned by a capability onto the gateway taxonomy.
// Typed gateway errors pass through; deadline overruns become TIMEOUT;
// cancellation is returned untouched; everything else is MODEL_UNAVAILABLE.
func Classify(op Operation, err error) error {
	if err == nil {
		return nil
	}

	if appErr, ok := apperrors.GetAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeModelUnavailable,
			apperrors.ErrCodeGenerationRejected,
			apperrors.ErrCodeTimeout,
			apperrors.ErrCodeInvalidInput:
			return appErr
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout(err, string(op))
	case errors.Is(err, context.Canceled):
		return err
	}

	return apperrors.ModelUnavailable(err, fmt.Sprintf("%s failed", op)).
		WithDetails("operation", string(op))
}
