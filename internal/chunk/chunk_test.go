package chunk

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	require.Empty(t, Split("", 100, 10))
}

func TestSplitNoChunkExceedsSize(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := Split(text, 100, 20)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Text), 100)
	}
}

func TestSplitTotalsAreConsistent(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 50)
	chunks := Split(text, 120, 15)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
		require.Equal(t, len(chunks), c.Total)
	}
}

// TestSplitTotalityProperty checks the totality property: chunks are a
// size-bounded, overlap-respecting cover of the input.
func TestSplitTotalityProperty(t *testing.T) {
	f := func(text string) bool {
		if len(text) > 2000 {
			text = text[:2000]
		}
		chunks := Split(text, 80, 10)
		if text == "" {
			return len(chunks) == 0
		}
		for _, c := range chunks {
			if len(c.Text) > 80 {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, nil))
}
