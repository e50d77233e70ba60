package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
)

// ScriptedPromptTemplate is the prompt the scripted synthesizer wraps ideas in
const ScriptedPromptTemplate = "A highly detailed, cinematic shot of %s, soft volumetric lighting, 8k resolution, masterpiece."

// ScriptedClause is the refinement clause returned when no verdict is queued
const ScriptedClause = "High contrast, enhanced vivid colors, perfectly aligned composition"

// Scripted is a deterministic in-process Gateway. Verdicts and errors are
// consumed from per-operation queues; when a queue is empty a default
// response is returned. It backs GATEWAY_MODE=scripted and the tests.
type Scripted struct {
	mu       sync.Mutex
	verdicts []domain.JudgeVerdict
	errs     map[Operation][]error
	calls    map[Operation]int
	images   int
	gate     chan struct{}
}

// NewScripted creates a scripted gateway that approves nothing by default
func NewScripted() *Scripted {
	return &Scripted{
		errs:  make(map[Operation][]error),
		calls: make(map[Operation]int),
	}
}

// QueueVerdicts appends verdicts returned by successive Judge calls
func (s *Scripted) QueueVerdicts(verdicts ...domain.JudgeVerdict) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, verdicts...)
	return s
}

// QueueError makes the next call of op fail with err
func (s *Scripted) QueueError(op Operation, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = append(s.errs[op], err)
	return s
}

// Block makes every call wait until the returned release func is invoked or
// the call context ends.
func (s *Scripted) Block() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
		})
	}
}

// Calls returns how many times op was invoked
func (s *Scripted) Calls(op Operation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Scripted) begin(ctx context.Context, op Operation) error {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gate
	var err error
	if q := s.errs[op]; len(q) > 0 {
		err, s.errs[op] = q[0], q[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SynthesizePrompt wraps the idea in ScriptedPromptTemplate
func (s *Scripted) SynthesizePrompt(ctx context.Context, idea domain.Idea) (domain.Prompt, error) {
	if err := s.begin(ctx, OpSynthesizePrompt); err != nil {
		return domain.Prompt{}, err
	}
	return domain.NewPrompt(fmt.Sprintf(ScriptedPromptTemplate, idea))
}

// GenerateImage returns a unique scripted:// reference per call
func (s *Scripted) GenerateImage(ctx context.Context, prompt domain.Prompt, cfg domain.GenerationConfig) (domain.ImageRef, error) {
	if err := s.begin(ctx, OpGenerateImage); err != nil {
		return "", err
	}
	size := cfg.AspectRatio.Ratio()
	if caps, err := domain.CapabilitiesFor(cfg.ImageModel); err == nil {
		size = caps.SizeFor(cfg.AspectRatio)
	}

	s.mu.Lock()
	s.images++
	n := s.images
	s.mu.Unlock()

	return domain.ImageRef(fmt.Sprintf("scripted://%s/%s/%d?v=%d", cfg.ImageModel, size, n, prompt.Version)), nil
}

// Judge pops the next queued verdict, or rejects with ScriptedClause
func (s *Scripted) Judge(ctx context.Context, image domain.ImageRef, prompt domain.Prompt, feedback domain.Feedback) (domain.JudgeVerdict, error) {
	if err := s.begin(ctx, OpJudge); err != nil {
		return domain.JudgeVerdict{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.verdicts) > 0 {
		v := s.verdicts[0]
		s.verdicts = s.verdicts[1:]
		return v, nil
	}
	return domain.JudgeVerdict{Approved: false, RefinementClause: ScriptedClause}, nil
}
