package domain

import (
	"strings"

	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
	"github.com/alejandroruanova/sfumato/internal/pkg/textutil"
)

// Idea is the raw user text a project starts from
type Idea string

// NewIdea normalizes user text and rejects blank ideas
func NewIdea(text string) (Idea, error) {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return "", apperrors.InvalidInput("idea must not be blank")
	}
	return Idea(normalized), nil
}

// Feedback is a user critique, consumed by exactly one refinement cycle
type Feedback string

// NewFeedback normalizes user text and rejects blank feedback
func NewFeedback(text string) (Feedback, error) {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return "", apperrors.MissingFeedback()
	}
	return Feedback(normalized), nil
}

// PromptOrigin records how a prompt version came to be
type PromptOrigin string

const (
	PromptSynthesized PromptOrigin = "synthesized"
	PromptEdited      PromptOrigin = "edited"
	PromptRefined     PromptOrigin = "refined"
)

// Prompt is an immutable, versioned model-facing text. Methods return new
// values and never modify the receiver.
type Prompt struct {
	Text    string       `json:"text"`
	Version int          `json:"version"`
	Origin  PromptOrigin `json:"origin"`
}

// NewPrompt creates version 1 of a synthesized prompt
func NewPrompt(text string) (Prompt, error) {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return Prompt{}, apperrors.InvalidInput("prompt must not be blank")
	}
	return Prompt{Text: normalized, Version: 1, Origin: PromptSynthesized}, nil
}

// Edit returns the next version carrying user-supplied text
func (p Prompt) Edit(text string) (Prompt, error) {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return Prompt{}, apperrors.InvalidInput("prompt must not be blank")
	}
	return Prompt{Text: normalized, Version: p.Version + 1, Origin: PromptEdited}, nil
}

// Refine appends the judge's refinement clause and, if present, the raw user
// feedback. It returns the new prompt and the appended text.
func (p Prompt) Refine(clause string, feedback Feedback) (Prompt, string) {
	var parts []string
	if c := textutil.Normalize(clause); c != "" {
		parts = append(parts, sentence(c))
	}
	if f := textutil.Normalize(string(feedback)); f != "" {
		parts = append(parts, sentence("User feedback: "+f))
	}
	diff := strings.Join(parts, " ")

	text := sentence(p.Text)
	if diff != "" {
		text = text + " " + diff
	}
	return Prompt{Text: text, Version: p.Version + 1, Origin: PromptRefined}, diff
}

// IsZero reports whether the prompt has not been set
func (p Prompt) IsZero() bool {
	return p.Text == "" && p.Version == 0
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
