package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImageRef is an opaque handle to a generated image (URL or storage key)
type ImageRef string

// TagKind is the provenance class of an artifact
type TagKind string

const (
	TagDraft      TagKind = "draft"
	TagFinal      TagKind = "final"
	TagRefinement TagKind = "refinement"
)

// Tag is Draft, Final or Refinement(n)
type Tag struct {
	Kind      TagKind
	Iteration int
}

// DraftTag tags the first generated image
func DraftTag() Tag { return Tag{Kind: TagDraft} }

// FinalTag marks the result of a finished loop in presentation views
func FinalTag() Tag { return Tag{Kind: TagFinal} }

// RefinementTag tags the image produced by refinement iteration n
func RefinementTag(n int) Tag { return Tag{Kind: TagRefinement, Iteration: n} }

func (t Tag) String() string {
	if t.Kind == TagRefinement {
		return fmt.Sprintf("refinement(%d)", t.Iteration)
	}
	return string(t.Kind)
}

// MarshalText encodes the tag as "draft", "final" or "refinement(n)"
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTag parses the textual tag form
func ParseTag(s string) (Tag, error) {
	switch s {
	case string(TagDraft):
		return DraftTag(), nil
	case string(TagFinal):
		return FinalTag(), nil
	}
	if strings.HasPrefix(s, "refinement(") && strings.HasSuffix(s, ")") {
		n, err := strconv.Atoi(s[len("refinement(") : len(s)-1])
		if err != nil || n < 1 {
			return Tag{}, fmt.Errorf("invalid refinement tag %q", s)
		}
		return RefinementTag(n), nil
	}
	return Tag{}, fmt.Errorf("invalid tag %q", s)
}

// Artifact is one generated image plus its provenance. Artifacts are created
// once per successful generation and never mutated.
type Artifact struct {
	Sequence     int           `json:"sequence"`
	Prompt       Prompt        `json:"prompt"`
	ImageRef     ImageRef      `json:"image_ref"`
	Tag          Tag           `json:"tag"`
	PromptDiff   string        `json:"prompt_diff,omitempty"`
	UserFeedback Feedback      `json:"user_feedback,omitempty"`
	Verdict      *JudgeVerdict `json:"verdict,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
