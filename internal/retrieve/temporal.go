package retrieve

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"campusrag/internal/llm"
	"campusrag/internal/types"
)

// TemporalParser implements the two-tier Temporal Intent Parser: a fast
// exact-phrase path, and an LLM fallback that emits strict JSON tolerant
// of fenced code blocks.
type TemporalParser struct {
	chat *llm.ChatClient
}

func NewTemporalParser(chat *llm.ChatClient) *TemporalParser {
	return &TemporalParser{chat: chat}
}

// fastPhrases maps closed-set exact phrases straight to an intent, skipping
// the LLM call entirely.
var fastPhrases = map[string]func(now time.Time) types.TemporalIntent{
	"이번 학기": func(now time.Time) types.TemporalIntent {
		y, s := CurrentSemester(now)
		return types.TemporalIntent{Year: y, Semester: s, IsOngoing: true}
	},
	"this semester": func(now time.Time) types.TemporalIntent {
		y, s := CurrentSemester(now)
		return types.TemporalIntent{Year: y, Semester: s, IsOngoing: true}
	},
	"올해": func(now time.Time) types.TemporalIntent {
		return types.TemporalIntent{Year: now.Year(), IsOngoing: true}
	},
	"this year": func(now time.Time) types.TemporalIntent {
		return types.TemporalIntent{Year: now.Year(), IsOngoing: true}
	},
	"최근": func(now time.Time) types.TemporalIntent {
		return types.TemporalIntent{IsOngoing: true}
	},
	"recent": func(now time.Time) types.TemporalIntent {
		return types.TemporalIntent{IsOngoing: true}
	},
}

// CurrentSemester applies the academic-calendar boundary rule: months 3-8
// are semester 1 of the current year, 9-12 are semester 2 of the current
// year, and 1-2 are semester 2 of the previous year.
func CurrentSemester(now time.Time) (year, semester int) {
	m := int(now.Month())
	switch {
	case m >= 3 && m <= 8:
		return now.Year(), 1
	case m >= 9:
		return now.Year(), 2
	default:
		return now.Year() - 1, 2
	}
}

// Parse runs the fast path first; on a miss it falls back to the LLM path,
// tolerating fenced code blocks and rejecting non-conforming JSON (which
// means "no filter").
func (p *TemporalParser) Parse(ctx context.Context, question string, now time.Time) types.TemporalIntent {
	lower := strings.ToLower(question)
	for phrase, build := range fastPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return build(now)
		}
	}

	if p.chat == nil {
		return types.TemporalIntent{}
	}

	raw, err := p.chat.Complete(ctx, []llm.Message{
		{Role: "system", Content: temporalSystemPrompt(now)},
		{Role: "user", Content: question},
	}, 256, 0)
	if err != nil {
		return types.TemporalIntent{}
	}

	intent, ok := parseTemporalJSON(raw)
	if !ok {
		return types.TemporalIntent{}
	}
	return intent
}

func temporalSystemPrompt(now time.Time) string {
	return "The current date is " + now.Format("2006-01-02") +
		". Read the user's question and emit ONLY strict JSON with keys " +
		`{"year": int, "semester": int, "is_ongoing": bool, "is_policy": bool, "reasoning": string}` +
		". Use 0 for year/semester when unset. Do not include any other text."
}

type temporalJSON struct {
	Year      int    `json:"year"`
	Semester  int    `json:"semester"`
	IsOngoing bool   `json:"is_ongoing"`
	IsPolicy  bool   `json:"is_policy"`
	Reasoning string `json:"reasoning"`
}

// parseTemporalJSON tolerates an optional ```json fenced block around the
// payload and rejects anything that doesn't parse as the expected shape.
func parseTemporalJSON(raw string) (types.TemporalIntent, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	var parsed temporalJSON
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return types.TemporalIntent{}, false
	}
	return types.TemporalIntent{
		Year:      parsed.Year,
		Semester:  parsed.Semester,
		IsOngoing: parsed.IsOngoing,
		IsPolicy:  parsed.IsPolicy,
		Reasoning: parsed.Reasoning,
	}, true
}
