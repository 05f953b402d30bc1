package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchDataURIBase64(t *testing.T) {
	res, err := fetchDataURI("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), res.Bytes)
	require.Equal(t, "image/png", res.ContentType)
	require.Equal(t, "document.png", res.Filename)
}

func TestFetchDataURIPlain(t *testing.T) {
	res, err := fetchDataURI("data:text/plain,hello%20world")
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), res.Bytes)
}

func TestFetchDataURIMalformed(t *testing.T) {
	_, err := fetchDataURI("data:nodata")
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindUnsupported, fe.Kind)
}

func TestResolveProxyFormViewImage(t *testing.T) {
	target, warm, err := resolveProxyForm("https://board.example.edu/view_image.php?fn=%2Fdata%2Fimg%2Fphoto.jpg")
	require.NoError(t, err)
	require.Nil(t, warm)
	require.Equal(t, "https://board.example.edu/data/img/photo.jpg", target.url)
}

func TestResolveProxyFormDownload(t *testing.T) {
	target, warm, err := resolveProxyForm("https://board.example.edu/download.php?bo_table=notice&wr_id=42")
	require.NoError(t, err)
	require.Len(t, warm, 3)
	require.Equal(t, "https://board.example.edu/download.php?bo_table=notice&wr_id=42", target.url)
}

func TestResolveProxyFormPlainURL(t *testing.T) {
	target, warm, err := resolveProxyForm("https://board.example.edu/files/a.pdf")
	require.NoError(t, err)
	require.Nil(t, warm)
	require.Equal(t, "https://board.example.edu/files/a.pdf", target.url)
}

func TestResolveFilenamePriority(t *testing.T) {
	name := resolveFilename(`attachment; filename="plain.pdf"`, "/rewritten/path.doc", "/url/path.txt", "application/pdf")
	require.Equal(t, "plain.pdf", name)

	name = resolveFilename("", "/rewritten/path.doc", "/url/path.txt", "application/pdf")
	require.Equal(t, "path.doc", name)

	name = resolveFilename("", "", "/url/path.txt", "application/pdf")
	require.Equal(t, "path.txt", name)

	name = resolveFilename("", "", "", "application/pdf")
	require.Equal(t, "document.pdf", name)
}

func TestDecodeRFC5987(t *testing.T) {
	name := filenameFromContentDisposition(`attachment; filename*=UTF-8''%EA%B0%80%EC%9D%B4%EB%93%9C.pdf`)
	require.Equal(t, "가이드.pdf", name)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(5*time.Second, 3, 10*time.Millisecond)
	res, err := f.Fetch(context.Background(), srv.URL+"/doc.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), res.Bytes)
	require.Equal(t, 2, attempts)
}

func TestFetchNotFoundDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(5*time.Second, 3, 10*time.Millisecond)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.txt")
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindNotFound, fe.Kind)
	require.Equal(t, 1, attempts)
}
