package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDateLayouts(t *testing.T) {
	cases := []string{
		"2024-02-15T09:00:00+09:00",
		"2024-02-15 09:00:00",
		"2024.02.15",
		"2024-02-15",
	}
	for _, s := range cases {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		require.Equal(t, 2024, got.Year())
		require.Equal(t, time.Month(2), got.Month())
		require.Equal(t, 15, got.Day())
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("not a date")
	require.Error(t, err)
}

func TestToISO8601RoundTrip(t *testing.T) {
	t0 := time.Date(2024, 2, 15, 9, 0, 0, 0, Location)
	s := ToISO8601(t0)
	got, err := ParseDate(s)
	require.NoError(t, err)
	require.True(t, t0.Equal(got))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 0, 0, 0, Location)
	b := time.Date(2024, 1, 2, 1, 0, 0, 0, Location)
	require.Equal(t, 1, DaysBetween(a, b))
	require.Equal(t, -1, DaysBetween(b, a))
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, HashBytes([]byte("hello worlD")))
}

func TestStablePostHashDistinguishesTitleBodyBoundary(t *testing.T) {
	h1 := StablePostHash("ab", "c")
	h2 := StablePostHash("a", "bc")
	require.NotEqual(t, h1, h2)
}
