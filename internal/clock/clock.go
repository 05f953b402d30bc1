// Package clock provides the fixed-timezone wall clock, ISO-8601
// normalization, and content-hashing primitives shared across the
// ingestion and retrieval pipelines.
package clock

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Location is the single timezone every stored date is normalized to.
// The corpus this service indexes is timestamped in Korea Standard Time;
// naive local times are never persisted.
var Location = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Asia/Seoul has no DST and a fixed +9 offset; this never fails
		// in practice, but fall back rather than panic at import time.
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Clock abstracts wall-clock access so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real current time in Location.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().In(Location) }

// FixedClock always returns the same instant; useful in tests.
type FixedClock struct{ At time.Time }

func (f FixedClock) Now() time.Time { return f.At.In(Location) }

// supported layouts for free-form date text encountered in crawled pages.
var layouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006.01.02",
	"2006-01-02",
	"2006/01/02",
	"06-01-02",
	"06.01.02",
}

// ParseDate parses a variety of date text formats as seen on crawled board
// pages and normalizes the result to Location. Naive (no offset) layouts are
// interpreted as already being in Location.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("clock: empty date string")
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Location() == time.UTC && !strings.Contains(layout, "Z07:00") {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, Location)
			} else {
				t = t.In(Location)
			}
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("clock: parse date %q: %w", s, lastErr)
}

// ToISO8601 renders t in Location using the canonical wire format.
func ToISO8601(t time.Time) string {
	return t.In(Location).Format("2006-01-02T15:04:05-07:00")
}

// Now returns the current wall time in Location.
func Now() time.Time { return time.Now().In(Location) }

// DaysBetween returns the (possibly negative) whole-day difference b-a.
func DaysBetween(a, b time.Time) int {
	a = a.In(Location)
	b = b.In(Location)
	day := 24 * time.Hour
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, Location)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, Location)
	return int(bd.Sub(ad) / day)
}

// HashBytes returns the hex MD5 digest of raw file bytes, used as the
// MultimodalArtifact content-addressing key.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// StablePostHash returns a stable content hash for a Post over its title and
// body text, used to detect whether a previously-ingested post has changed.
func StablePostHash(title, body string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
