// Package compose implements the Response Composer: it turns enriched
// chunks into the final answer JSON, running markdown dedup,
// tiered-budget context assembly, prompt-driven answerable determination,
// and the safety nets layered on top of the chat model's verdict.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog/log"

	"campusrag/internal/clock"
	"campusrag/internal/llm"
	"campusrag/internal/types"
	"campusrag/internal/util"
)

const (
	defaultCharBudget  = 50000
	highScoreThreshold = 0.6
	maxAnswerTokens     = 4096
)

const disclaimer = "Answers may not always be fully accurate. Please check the linked URLs for the complete, authoritative information."

// negativePatterns are the closed set of "document does not contain ..."
// phrases used both by the fallback heuristic and the true-but-actually-
// negative safety net.
var negativePatterns = []string{
	"no information about",
	"no content about",
	"could not find information",
	"is not specified",
	"is not mentioned",
	"could not be found in",
	"no relevant content",
	"does not contain",
}

// completenessKeywords are the universal-quantifier tokens that trigger the
// truncation warning.
var completenessKeywords = []string{"all", "everyone", "every", "list", "roster", "entire"}

var identifierPattern = regexp.MustCompile(`\b20\d{6,8}\b`)

// Response is the final answer object carried back to the HTTP layer.
// Compose always sets Answer, including on its no-result paths.
type Response struct {
	Answer     *string
	Answerable bool
	References string
	Disclaimer string
	Images     []string
}

// Composer drives the prompt assembly and answerable-determination call.
type Composer struct {
	Chat       *llm.ChatClient
	CharBudget int
}

func NewComposer(chat *llm.ChatClient, charBudget int) *Composer {
	if charBudget <= 0 {
		charBudget = defaultCharBudget
	}
	return &Composer{Chat: chat, CharBudget: charBudget}
}

// Compose runs the full pipeline over already-enriched chunks.
func (c *Composer) Compose(ctx context.Context, question string, queryNouns []string, intent types.TemporalIntent, chunks []types.Candidate, topURL string, now time.Time) (Response, error) {
	if len(chunks) == 0 {
		return noResultResponse(), nil
	}

	deduped := dedupeByMarkdown(chunks)
	contents := make([]string, len(deduped))
	for i, ch := range deduped {
		contents[i] = contentFor(ch)
	}

	filtered, filteredContents := applyContentFilter(deduped, contents, queryNouns)
	if len(filtered) == 0 {
		return noResultResponse(), nil
	}

	docScores, topScore := scoreByTitle(filtered)
	highScoreTitles := make(map[string]bool, len(docScores))
	for title, score := range docScores {
		if topScore > 0 && score/topScore >= highScoreThreshold {
			highScoreTitles[title] = true
		}
	}

	selected, selectedContents := tieredFill(filtered, filteredContents, docScores, highScoreTitles, c.CharBudget)
	if len(selected) == 0 {
		return noResultResponse(), nil
	}

	assembledContext := formatContext(selected, selectedContents)
	log.Debug().Int("chunks", len(selected)).Int("chars", len(assembledContext)).
		Int("est_tokens", util.CountTokens(assembledContext)).Msg("assembled answer context")

	if c.Chat == nil {
		return noResultResponse(), nil
	}

	prompt := []llm.Message{
		{Role: "system", Content: answerSystemPrompt(now, intent)},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", assembledContext, question)},
	}
	raw, err := c.Chat.Complete(ctx, prompt, maxAnswerTokens, 0)
	if err != nil {
		return Response{}, fmt.Errorf("compose: answer generation: %w", err)
	}

	answerText, answerable := determineAnswerable(raw)

	if answerable && containsAny(answerText, negativePatterns) {
		answerable = false
	}

	if answerable && intent.IsOngoing {
		topDate := selected[0].Date
		if !topDate.IsZero() && now.Year()-topDate.Year() >= 1 {
			yearDiff := now.Year() - topDate.Year()
			answerText = fmt.Sprintf("Note: the supplied document is from %d (%d year(s) ago). ", topDate.Year(), yearDiff) + answerText
			answerable = false
		}
	}

	if hasCompletenessRequest(question) {
		contextCount := len(identifierPattern.FindAllString(assembledContext, -1))
		answerCount := len(identifierPattern.FindAllString(answerText, -1))
		if contextCount >= 10 && answerCount < contextCount/2 {
			answerText += fmt.Sprintf("\n\nWarning: the answer may be incomplete (document had about %d identifiers, answer lists %d). Check the linked URL for the complete list.", contextCount, answerCount)
		}
	}

	images := collectImages(selected)

	return Response{
		Answer:     &answerText,
		Answerable: answerable,
		References: topURL,
		Disclaimer: disclaimer,
		Images:     images,
	}, nil
}

func noResultResponse() Response {
	answer := "The notice boards don't appear to contain this. Please check the notice board directly for details."
	return Response{
		Answer:     &answer,
		Answerable: false,
		References: "",
		Disclaimer: disclaimer,
		Images:     []string{"No content"},
	}
}

// dedupeByMarkdown drops any chunk whose non-empty HTML payload has already
// been seen, since the same extracted table can appear on multiple chunks.
func dedupeByMarkdown(chunks []types.Candidate) []types.Candidate {
	seen := make(map[string]bool)
	out := make([]types.Candidate, 0, len(chunks))
	for _, ch := range chunks {
		if ch.HTML != "" {
			if seen[ch.HTML] {
				continue
			}
			seen[ch.HTML] = true
		}
		out = append(out, ch)
	}
	return out
}

// contentFor prefers markdown, then HTML converted to markdown, then plain
// text.
func contentFor(c types.Candidate) string {
	if strings.TrimSpace(c.Markdown) != "" {
		return c.Markdown
	}
	if strings.TrimSpace(c.HTML) != "" {
		md, err := htmltomarkdown.ConvertString(c.HTML)
		if err == nil && strings.TrimSpace(md) != "" {
			return md
		}
	}
	return c.Text
}

// applyContentFilter skips keyword filtering when every surviving chunk
// shares one title (already chosen by the pipeline); otherwise it keeps
// chunks containing a query noun or coming from an OCR/parse source.
func applyContentFilter(chunks []types.Candidate, contents []string, queryNouns []string) ([]types.Candidate, []string) {
	titles := make(map[string]bool)
	for _, ch := range chunks {
		titles[ch.Title] = true
	}
	if len(titles) <= 1 {
		return chunks, contents
	}

	var outChunks []types.Candidate
	var outContents []string
	for i, ch := range chunks {
		if ch.Source == types.SourceImageOCR || ch.Source == types.SourceDocumentParse {
			outChunks = append(outChunks, ch)
			outContents = append(outContents, contents[i])
			continue
		}
		for _, n := range queryNouns {
			if n != "" && strings.Contains(contents[i], n) {
				outChunks = append(outChunks, ch)
				outContents = append(outContents, contents[i])
				break
			}
		}
	}
	return outChunks, outContents
}

// scoreByTitle returns the per-title max score and the overall top score.
func scoreByTitle(chunks []types.Candidate) (map[string]float64, float64) {
	scores := make(map[string]float64)
	for _, ch := range chunks {
		if cur, ok := scores[ch.Title]; !ok || ch.Score > cur {
			scores[ch.Title] = ch.Score
		}
	}
	top := 0.0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	return scores, top
}

type scoredChunk struct {
	chunk   types.Candidate
	content string
}

// tieredFill implements the three-phase character-budget fill: original-post
// chunks first (one that does not fit is logged and skipped), then image-OCR
// chunks of high-score titles, then every remaining chunk in title-score
// order until the first one that does not fit.
func tieredFill(chunks []types.Candidate, contents []string, docScores map[string]float64, highScoreTitles map[string]bool, budget int) ([]types.Candidate, []string) {
	all := make([]scoredChunk, len(chunks))
	for i := range chunks {
		all[i] = scoredChunk{chunk: chunks[i], content: contents[i]}
	}

	var phase1, phase2, phase3 []scoredChunk
	for _, sc := range all {
		switch sc.chunk.Source {
		case types.SourceOriginalPost:
			phase1 = append(phase1, sc)
		case types.SourceImageOCR:
			if highScoreTitles[sc.chunk.Title] {
				phase2 = append(phase2, sc)
			} else {
				phase3 = append(phase3, sc)
			}
		default:
			phase3 = append(phase3, sc)
		}
	}

	byScoreDesc := func(group []scoredChunk) {
		sort.SliceStable(group, func(i, j int) bool {
			return docScores[group[i].chunk.Title] > docScores[group[j].chunk.Title]
		})
	}
	byScoreDesc(phase2)
	byScoreDesc(phase3)

	var selected []scoredChunk
	total := 0
	addIfFits := func(sc scoredChunk) bool {
		n := len([]rune(sc.content))
		if total+n > budget {
			return false
		}
		selected = append(selected, sc)
		total += n
		return true
	}

	for _, sc := range phase1 {
		if !addIfFits(sc) {
			log.Warn().Str("title", sc.chunk.Title).Int("chars", len([]rune(sc.content))).
				Msg("original-post chunk does not fit the context budget; skipped")
		}
	}
	for _, sc := range phase2 {
		if highScoreTitles[sc.chunk.Title] {
			addIfFits(sc)
		}
	}
	for _, sc := range phase3 {
		if !addIfFits(sc) {
			break
		}
	}

	outChunks := make([]types.Candidate, len(selected))
	outContents := make([]string, len(selected))
	for i, sc := range selected {
		outChunks[i] = sc.chunk
		outContents[i] = sc.content
	}
	return outChunks, outContents
}

func formatContext(chunks []types.Candidate, contents []string) string {
	var b strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&b, "\nDocument title: %s\nDate: %s\nURL: %s\n%s\n", ch.Title, clock.ToISO8601(ch.Date), ch.URL, contents[i])
	}
	return b.String()
}

func answerSystemPrompt(now time.Time, intent types.TemporalIntent) string {
	return "The current time is " + now.Format("2006-01-02 15:04") + ". " +
		"Temporal intent: " + describeIntent(intent) + ". " +
		"Answer the question using only the supplied context. Respond with strict JSON " +
		`{"answerable": bool, "answer": string}` + ". " +
		"Set answerable=false and explain briefly if the context does not contain the answer."
}

func describeIntent(intent types.TemporalIntent) string {
	switch {
	case intent.Year != 0 && intent.Semester != 0:
		return fmt.Sprintf("looking for year %d semester %d", intent.Year, intent.Semester)
	case intent.Year != 0:
		return fmt.Sprintf("looking for year %d", intent.Year)
	case intent.Semester != 0:
		return fmt.Sprintf("looking for semester %d", intent.Semester)
	case intent.IsOngoing:
		return "looking for the current/ongoing semester"
	default:
		return "no specific time constraint"
	}
}

type answerJSON struct {
	Answerable bool   `json:"answerable"`
	Answer     string `json:"answer"`
}

// determineAnswerable trusts a successfully parsed {answerable, answer}
// payload; otherwise it falls back to a closed-set pattern match.
func determineAnswerable(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	var parsed answerJSON
	if err := json.Unmarshal([]byte(s), &parsed); err == nil && parsed.Answer != "" {
		return parsed.Answer, parsed.Answerable
	}

	prefix := raw
	if len([]rune(prefix)) > 150 {
		prefix = string([]rune(prefix)[:150])
	}
	if containsAny(prefix, negativePatterns) {
		return raw, false
	}
	return raw, true
}

func containsAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func hasCompletenessRequest(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range completenessKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// collectImages gathers distinct image URLs from the top-ranked chunk's
// title group, falling back to the "No content" sentinel.
func collectImages(chunks []types.Candidate) []string {
	if len(chunks) == 0 {
		return []string{"No content"}
	}
	top := chunks[0].Title
	seen := make(map[string]bool)
	var out []string
	for _, ch := range chunks {
		if ch.Title != top || ch.ImageURL == "" {
			continue
		}
		if !seen[ch.ImageURL] {
			seen[ch.ImageURL] = true
			out = append(out, ch.ImageURL)
		}
	}
	if len(out) == 0 {
		return []string{"No content"}
	}
	return out
}
