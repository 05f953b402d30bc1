package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campusrag/internal/clock"
	"campusrag/internal/config"
	"campusrag/internal/store"
	"campusrag/internal/types"

	"github.com/stretchr/testify/require"
)

const noticeListHTML = `
<html><body>
<a href="/board.php?wr_id=10">first</a>
<a href="/board.php?wr_id=25">second</a>
<a href="/board.php?wr_id=3">third</a>
</body></html>`

const noticePostHTML = `
<html><body>
<h1 class="title">Autumn registration notice</h1>
<div class="date">2026-03-02</div>
<div class="body">Registration opens on the date above. <img src="/img/a.png"/></div>
</body></html>`

func TestGetLatestIDFindsMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(noticeListHTML))
	}))
	defer srv.Close()

	board := config.BoardConfig{Type: "notice", RootURL: srv.URL}
	c := New(board, srv.Client(), clock.FixedClock{At: time.Now()})
	id, ok, err := c.GetLatestID(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 25, id)
}

func TestExtractFromURLParsesTitleBodyDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(noticePostHTML))
	}))
	defer srv.Close()

	board := config.BoardConfig{
		Type:          "notice",
		RootURL:       srv.URL,
		TitleSelector: ".title",
		BodySelector:  ".body",
		DateSelector:  ".date",
		ImageSelector: ".body img",
	}
	c := New(board, srv.Client(), clock.FixedClock{At: time.Now()})
	post, err := c.ExtractFromURL(context.Background(), srv.URL+"/board.php?wr_id=10")
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, "Autumn registration notice", post.Title)
	require.Contains(t, post.BodyText, "Registration opens")
	require.Len(t, post.ImageURLs, 1)
	require.NotEmpty(t, post.ContentHash)
}

func TestExtractFromURLDropsMissingTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><div class='body'>no title here</div></body></html>"))
	}))
	defer srv.Close()

	board := config.BoardConfig{Type: "notice", RootURL: srv.URL, TitleSelector: ".title", BodySelector: ".body"}
	c := New(board, srv.Client(), clock.FixedClock{At: time.Now()})
	post, err := c.ExtractFromURL(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Nil(t, post)
}

func TestCrawlBoardOmitsFailedURLsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	board := config.BoardConfig{Type: "notice", RootURL: srv.URL, TitleSelector: ".title"}
	c := New(board, srv.Client(), clock.FixedClock{At: time.Now()})
	posts := CrawlBoard(context.Background(), c, []string{srv.URL + "/1", srv.URL + "/2"}, 2, 1, time.Millisecond)
	require.Empty(t, posts)
}

func TestStateManagerCrawlRange(t *testing.T) {
	docs := store.NewMemoryDocumentStore()
	sm := NewStateManager(docs)
	ctx := context.Background()

	rng, ok, err := sm.GetCrawlRange(ctx, types.BoardNotice, 100, 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, [2]int{}, rng)

	rng, ok, err = sm.GetCrawlRange(ctx, types.BoardFaculty, 100, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [2]int{100, 1}, rng)

	require.NoError(t, sm.UpdateLastProcessedID(ctx, types.BoardNotice, 50, 10))
	rng, ok, err = sm.GetCrawlRange(ctx, types.BoardNotice, 100, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [2]int{100, 51}, rng)

	rng, ok, err = sm.GetCrawlRange(ctx, types.BoardNotice, 40, 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, [2]int{}, rng)
}
