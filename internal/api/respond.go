package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusFor(err)
	body := errorBody{Code: string(apperrors.KindOf(err)), Message: err.Error()}
	if appErr, ok := apperrors.GetAppError(err); ok {
		body.Message = appErr.Message
		body.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError && body.Code == string(apperrors.ErrCodeInternal) {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		body.Message = "internal server error"
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("malformed request body: " + err.Error())
	}
	return nil
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput("session id must be a UUID").
			WithDetails("session_id", r.PathValue("id"))
	}
	return id, nil
}
