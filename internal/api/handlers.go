package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/autorun"
	"github.com/alejandroruanova/sfumato/internal/core/services/export"
	"github.com/alejandroruanova/sfumato/internal/core/services/refinement"
	"github.com/alejandroruanova/sfumato/internal/core/services/session"
	"github.com/alejandroruanova/sfumato/internal/infrastructure/storage"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

type configRequest struct {
	ImageModel    string `json:"image_model"`
	AspectRatio   string `json:"aspect_ratio"`
	MaxIterations int    `json:"max_iterations"`
}

// resolve fills omitted fields from base
func (c configRequest) resolve(base domain.GenerationConfig) (domain.GenerationConfig, error) {
	model, aspect, max := c.ImageModel, c.AspectRatio, c.MaxIterations
	if model == "" {
		model = string(base.ImageModel)
	}
	if aspect == "" {
		aspect = string(base.AspectRatio)
	}
	if max == 0 {
		max = base.MaxIterations
	}
	return domain.NewGenerationConfig(model, aspect, max)
}

type createRequest struct {
	Config *configRequest `json:"config,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type feedbackResponse struct {
	State          refinement.State     `json:"state"`
	Verdict        *domain.JudgeVerdict `json:"verdict,omitempty"`
	IterationCount int                  `json:"iteration_count"`
	Trace          []refinement.State   `json:"trace,omitempty"`
	Session        session.Snapshot     `json:"session"`
}

type autorunResponse struct {
	Queued  bool              `json:"queued"`
	TaskID  string            `json:"task_id,omitempty"`
	Result  *autorun.Result   `json:"result,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]interface{}, len(s.health))
	for name, checker := range s.health {
		h := checker.Health(r.Context())
		if h["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		components[name] = h
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":     overall,
		"sessions":   s.sessions.Len(),
		"components": components,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":   domain.AllCapabilities(),
		"defaults": domain.DefaultGenerationConfig(),
		"limits": map[string]int{
			"min_iterations": domain.MinIterations,
			"max_iterations": domain.MaxIterations,
		},
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		s.writeError(w, r, apperrors.NotFound("image"))
		return
	}
	ref := domain.ImageRef(storage.RefScheme + r.PathValue("model") + "/" + r.PathValue("name"))
	rc, meta, err := s.images.Open(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var cfg *domain.GenerationConfig
	if req.Config != nil {
		c, err := req.Config.resolve(domain.DefaultGenerationConfig())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		cfg = &c
	}

	sess, err := s.sessions.Create(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID().String())
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.sessions.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// command runs fn against the session named in the path and replies with
// the resulting snapshot
func (s *Server) command(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Do(r.Context(), id, fn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.command(w, r, func(sess *session.Session) error {
		cfg, err := req.resolve(sess.Snapshot().Config)
		if err != nil {
			return err
		}
		return sess.Configure(cfg)
	})
}

func (s *Server) handleIdea(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.command(w, r, func(sess *session.Session) error {
		return sess.SubmitIdea(r.Context(), req.Text)
	})
}

func (s *Server) handleEditPrompt(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.command(w, r, func(sess *session.Session) error {
		return sess.EditPrompt(req.Text)
	})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(sess *session.Session) error {
		return sess.GenerateDraft(r.Context())
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(sess *session.Session) error {
		sess.Reset()
		return nil
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var out *refinement.Outcome
	sess, err := s.sessions.Do(r.Context(), id, func(sess *session.Session) error {
		var err error
		out, err = sess.SubmitFeedbackAndLoop(r.Context(), req.Feedback)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{
		State:          out.State,
		Verdict:        out.Verdict,
		IterationCount: out.IterationCount,
		Trace:          out.Trace,
		Session:        sess.Snapshot(),
	})
}

func (s *Server) handleAutorun(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Fail fast on unknown sessions before anything is queued
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.scheduler != nil {
		taskID, err := s.scheduler.Schedule(r.Context(), id, req.Feedback)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, autorunResponse{Queued: true, TaskID: taskID})
		return
	}

	res, err := s.driver.Run(r.Context(), id, req.Feedback)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, autorunResponse{Result: res, Session: &snap})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	exporter, err := s.exporters.Get(format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap := sess.Snapshot()
	// Buffer so an export failure can still be reported as JSON
	var buf bytes.Buffer
	if err := exporter.Export(r.Context(), &buf, snap); err != nil {
		s.writeError(w, r, apperrors.InternalWrap(err, "export failed"))
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(snap, exporter.Format())))
	w.Header().Set("X-Final-Prompt-Length", strconv.Itoa(len(export.FinalPrompt(snap))))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
