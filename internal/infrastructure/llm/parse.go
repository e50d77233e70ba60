package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
)

// ParseVerdict extracts a judge verdict from a model reply. The reply may
// wrap the JSON object in prose or a code fence; "approved" is required.
func ParseVerdict(content string) (domain.JudgeVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return domain.JudgeVerdict{}, errors.New("no JSON object in judge reply")
	}
	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return domain.JudgeVerdict{}, errors.New("judge reply is not valid JSON")
	}

	doc := gjson.Parse(raw)
	approved := doc.Get("approved")
	if !approved.Exists() {
		return domain.JudgeVerdict{}, errors.New(`judge reply has no "approved" field`)
	}

	v := domain.JudgeVerdict{
		Approved:         parseBool(approved),
		RefinementClause: strings.TrimSpace(firstString(doc, "refinement_clause", "refinementClause", "clause")),
		Notes:            strings.TrimSpace(doc.Get("notes").String()),
	}
	if score := doc.Get("score"); score.Exists() && score.Type == gjson.Number {
		n := int(score.Int())
		v.Score = &n
	}
	if err := v.Validate(); err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("judge verdict: %w", err)
	}
	if !v.Approved && v.RefinementClause == "" {
		return domain.JudgeVerdict{}, errors.New("rejected verdict carries no refinement clause")
	}
	return v, nil
}

func parseBool(r gjson.Result) bool {
	if r.Type == gjson.String {
		return strings.EqualFold(strings.TrimSpace(r.String()), "true")
	}
	return r.Bool()
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() {
			return r.String()
		}
	}
	return ""
}
