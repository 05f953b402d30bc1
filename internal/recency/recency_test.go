package recency

import (
	"testing"
	"time"

	"campusrag/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestWeightNeverReturnsZero(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, clock.Location)
	for days := 0; days < 900; days += 3 {
		d := now.AddDate(0, 0, -days)
		w := Weight(d, now, nil, DefaultKeywords)
		require.Greater(t, w, 0.0)
	}
}

func TestWeightBeforeBaselineIsFlat(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, clock.Location)
	old := time.Date(2023, 5, 1, 0, 0, 0, 0, clock.Location)
	require.InDelta(t, 1.35, Weight(old, now, nil, DefaultKeywords), 1e-9)
}

func TestWeightMonotonicDecayAcrossDayBands(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, clock.Location)
	prev := Weight(now.AddDate(0, 0, -1), now, nil, DefaultKeywords)
	for _, days := range []int{6, 12, 18, 24, 30, 36, 45, 60, 90, 150} {
		w := Weight(now.AddDate(0, 0, -days), now, nil, DefaultKeywords)
		require.LessOrEqual(t, w, prev+1e-9)
		prev = w
	}
}

func TestWeightRecencyKeywordBoostsRecentBand(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, clock.Location)
	d := now.AddDate(0, 0, -3)
	plain := Weight(d, now, nil, DefaultKeywords)
	boosted := Weight(d, now, []string{"최근"}, DefaultKeywords)
	require.Greater(t, boosted, plain)
}

func TestCoarseBoostBands(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, clock.Location)
	require.Equal(t, 1.5, CoarseBoost(now.AddDate(0, 0, -10)))
	require.Equal(t, 1.3, CoarseBoost(now.AddDate(0, 0, -300)))
	require.Equal(t, 1.1, CoarseBoost(now.AddDate(-1, -6, 0)))
	require.Equal(t, 0.9, CoarseBoost(now.AddDate(-3, 0, 0)))
}
