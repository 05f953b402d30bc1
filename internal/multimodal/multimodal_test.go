package multimodal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campusrag/internal/contentapi"
	"campusrag/internal/fetch"
	"campusrag/internal/store"

	"github.com/stretchr/testify/require"
)

func TestProcessImageCachesByURLThenByHash(t *testing.T) {
	extractCalls := 0
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extractCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":{"text":"a scanned notice about the schedule"}}`))
	}))
	defer content.Close()

	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer fileSrv.Close()

	cache := store.NewMemoryCache()
	p := NewProcessor(fetch.New(5*time.Second, 1, time.Millisecond), contentapi.NewClient(content.URL, "", "model", 5*time.Second), cache, 850, 100)

	imageURL := fileSrv.URL + "/a.png"
	res1 := p.ProcessImage(context.Background(), "https://board/post/1", imageURL, "Notice title", time.Now())
	require.False(t, res1.Failed)
	require.NotEmpty(t, res1.Items)
	require.Equal(t, 1, extractCalls)

	res2 := p.ProcessImage(context.Background(), "https://board/post/1", imageURL, "Notice title", time.Now())
	require.False(t, res2.Failed)
	require.Equal(t, 1, extractCalls, "second call should hit the URL cache, not re-extract")

	// A different URL serving the same bytes misses the URL cache but hits
	// the content-hash cache.
	res3 := p.ProcessImage(context.Background(), "https://board/post/1", fileSrv.URL+"/b.png", "Notice title", time.Now())
	require.False(t, res3.Failed)
	require.NotEmpty(t, res3.Items)
	require.Equal(t, 1, extractCalls, "same bytes under a new URL should hit the hash cache, not re-extract")
}

func TestProcessAttachmentUnsupportedKind(t *testing.T) {
	fileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("irrelevant"))
	}))
	defer fileSrv.Close()

	cache := store.NewMemoryCache()
	p := NewProcessor(fetch.New(5*time.Second, 1, time.Millisecond), contentapi.NewClient("http://unused", "", "model", 5*time.Second), cache, 850, 100)

	res := p.ProcessAttachment(context.Background(), "https://board/post/1", fileSrv.URL+"/notes.txt", "Notice title", time.Now())
	require.True(t, res.Failed)
	require.Empty(t, res.Items)
}
