package compose

import (
	"testing"
	"time"

	"campusrag/internal/types"
	"github.com/stretchr/testify/require"
)

func TestDedupeByMarkdownDropsRepeatedHTML(t *testing.T) {
	chunks := []types.Candidate{
		{Title: "A", HTML: "<table>1</table>", Text: "a"},
		{Title: "A", HTML: "<table>1</table>", Text: "a-dup"},
		{Title: "A", HTML: "<table>2</table>", Text: "b"},
	}
	out := dedupeByMarkdown(chunks)
	require.Len(t, out, 2)
}

func TestContentForPrefersMarkdownThenHTMLThenText(t *testing.T) {
	require.Equal(t, "md here", contentFor(types.Candidate{Markdown: "md here", HTML: "<p>x</p>", Text: "plain"}))
	require.Equal(t, "plain", contentFor(types.Candidate{Text: "plain"}))
}

func TestApplyContentFilterSkipsWhenSingleTitle(t *testing.T) {
	chunks := []types.Candidate{{Title: "A", Source: types.SourceOriginalPost}, {Title: "A", Source: types.SourceImageOCR}}
	contents := []string{"unrelated", "also unrelated"}
	out, outContents := applyContentFilter(chunks, contents, []string{"graduation"})
	require.Len(t, out, 2)
	require.Len(t, outContents, 2)
}

func TestApplyContentFilterKeepsNounMatchOrMultimodal(t *testing.T) {
	chunks := []types.Candidate{
		{Title: "A", Source: types.SourceOriginalPost},
		{Title: "B", Source: types.SourceOriginalPost},
		{Title: "B", Source: types.SourceImageOCR},
	}
	contents := []string{"scholarship deadline is soon", "unrelated content entirely", "ocr text"}
	out, _ := applyContentFilter(chunks, contents, []string{"scholarship"})
	require.Len(t, out, 2) // title A (noun match) + title B's OCR chunk
}

func TestScoreByTitleTracksMax(t *testing.T) {
	chunks := []types.Candidate{
		{Title: "A", Score: 3},
		{Title: "A", Score: 5},
		{Title: "B", Score: 1},
	}
	scores, top := scoreByTitle(chunks)
	require.Equal(t, 5.0, scores["A"])
	require.Equal(t, 1.0, scores["B"])
	require.Equal(t, 5.0, top)
}

func TestTieredFillRespectsBudgetAndPhaseOrder(t *testing.T) {
	chunks := []types.Candidate{
		{Title: "A", Source: types.SourceOriginalPost},
		{Title: "A", Source: types.SourceImageOCR},
		{Title: "B", Source: types.SourceDocumentParse},
	}
	contents := []string{"0123456789", "abcdefghij", "zzzzzzzzzz"}
	docScores := map[string]float64{"A": 10, "B": 1}
	highScore := map[string]bool{"A": true}

	out, outContents := tieredFill(chunks, contents, docScores, highScore, 15)
	require.Len(t, out, 1) // only phase 1's original post fits the 15-char budget
	require.Equal(t, "0123456789", outContents[0])
}

func TestDetermineAnswerableParsesJSON(t *testing.T) {
	answer, answerable := determineAnswerable(`{"answerable": true, "answer": "graduation requires 130 credits"}`)
	require.True(t, answerable)
	require.Equal(t, "graduation requires 130 credits", answer)
}

func TestDetermineAnswerableToleratesFencedBlock(t *testing.T) {
	answer, answerable := determineAnswerable("```json\n{\"answerable\": false, \"answer\": \"not found\"}\n```")
	require.False(t, answerable)
	require.Equal(t, "not found", answer)
}

func TestDetermineAnswerableFallsBackToPatternMatch(t *testing.T) {
	_, answerable := determineAnswerable("The document does not contain any mention of this scholarship.")
	require.False(t, answerable)
}

func TestCollectImagesFallsBackToNoContent(t *testing.T) {
	require.Equal(t, []string{"No content"}, collectImages(nil))
	require.Equal(t, []string{"No content"}, collectImages([]types.Candidate{{Title: "A"}}))
}

func TestCollectImagesDedupesWithinTopTitle(t *testing.T) {
	chunks := []types.Candidate{
		{Title: "A", ImageURL: "https://img/1"},
		{Title: "A", ImageURL: "https://img/1"},
		{Title: "A", ImageURL: "https://img/2"},
		{Title: "B", ImageURL: "https://img/3"},
	}
	out := collectImages(chunks)
	require.Equal(t, []string{"https://img/1", "https://img/2"}, out)
}

func TestComposeReturnsNoResultOnEmptyChunks(t *testing.T) {
	c := NewComposer(nil, 0)
	resp, err := c.Compose(nil, "question", nil, types.TemporalIntent{}, nil, "", time.Now())
	require.NoError(t, err)
	require.False(t, resp.Answerable)
	require.Equal(t, []string{"No content"}, resp.Images)
}
