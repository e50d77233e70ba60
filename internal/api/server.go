// Package api exposes sessions over HTTP/JSON.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/autorun"
	"github.com/alejandroruanova/sfumato/internal/core/services/export"
	"github.com/alejandroruanova/sfumato/internal/core/services/manager"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/storage"
)

// ImageOpener reads stored images for GET /api/images
type ImageOpener interface {
	Open(ctx context.Context, ref domain.ImageRef) (io.ReadCloser, *storage.ImageMetadata, error)
}

// HealthChecker reports the state of a dependency
type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// Options wires a Server. Scheduler is optional: without it autoruns
// execute inline within the request.
type Options struct {
	Sessions  *manager.Manager
	Exporters *export.Factory
	Driver    *autorun.Driver
	Scheduler *autorun.Scheduler
	Images    ImageOpener
	Health    map[string]HealthChecker
	Logger    *slog.Logger
}

// Server holds the handlers
type Server struct {
	sessions  *manager.Manager
	exporters *export.Factory
	driver    *autorun.Driver
	scheduler *autorun.Scheduler
	images    ImageOpener
	health    map[string]HealthChecker
	logger    *slog.Logger
}

// New creates the HTTP server handlers
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exporters := opts.Exporters
	if exporters == nil {
		exporters = export.NewFactory()
	}
	driver := opts.Driver
	if driver == nil {
		driver = autorun.NewDriver(opts.Sessions, logger)
	}
	return &Server{
		sessions:  opts.Sessions,
		exporters: exporters,
		driver:    driver,
		scheduler: opts.Scheduler,
		images:    opts.Images,
		health:    opts.Health,
		logger:    logger,
	}
}

// Routes returns the request router
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/images/{model}/{name}", s.handleImage)

	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions", s.handleList)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	mux.HandleFunc("PUT /api/sessions/{id}/config", s.handleConfigure)
	mux.HandleFunc("POST /api/sessions/{id}/idea", s.handleIdea)
	mux.HandleFunc("PUT /api/sessions/{id}/prompt", s.handleEditPrompt)
	mux.HandleFunc("POST /api/sessions/{id}/draft", s.handleDraft)
	mux.HandleFunc("POST /api/sessions/{id}/feedback", s.handleFeedback)
	mux.HandleFunc("POST /api/sessions/{id}/autorun", s.handleAutorun)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)

	return recoverMiddleware(s.logger, logMiddleware(s.logger, mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("handler panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v))
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Code:    "INTERNAL_ERROR",
					Message: "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
