// Package fetch implements the File Fetcher: uniform byte retrieval from
// http(s):// URLs, data: URIs, and the department boards' cookie-bearing
// proxy download endpoints.
package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"time"

	"campusrag/internal/observability"
)

// Kind categorises a fetch failure so callers can decide whether to retry.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindNotFound    Kind = "not_found"
	KindUnsupported Kind = "unsupported"
	KindTransient   Kind = "transient"
)

// Error wraps a categorised fetch failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("fetch: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Result is the uniform shape returned for any successfully fetched URI.
type Result struct {
	Bytes       []byte
	Filename    string
	ContentType string
	ResolvedURL string
}

// Fetcher retrieves bytes from http(s) URLs, data URIs, and board proxy
// endpoints, retrying transient failures with exponential backoff.
type Fetcher struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
}

func New(timeout time.Duration, maxRetries int, retryBase time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBase <= 0 {
		retryBase = 1 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	return &Fetcher{
		client:     observability.NewHTTPClient(client),
		timeout:    timeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// Fetch resolves and retrieves the given URI, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURI string) (Result, error) {
	if strings.HasPrefix(rawURI, "data:") {
		return fetchDataURI(rawURI)
	}

	target, cookieWarm, err := resolveProxyForm(rawURI)
	if err != nil {
		return Result{}, newError(KindUnsupported, err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.retryBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}
		res, err := f.doFetch(ctx, target, cookieWarm)
		if err == nil {
			return res, nil
		}
		var fe *Error
		if errors.As(err, &fe) && fe.Kind != KindTransient {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}

func (f *Fetcher) doFetch(ctx context.Context, target proxyTarget, cookieWarm []string) (Result, error) {
	if len(cookieWarm) > 0 {
		for _, warmURL := range cookieWarm {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, warmURL, nil)
			if err != nil {
				return Result{}, newError(KindNetwork, err)
			}
			resp, err := f.client.Do(req)
			if err != nil {
				return Result{}, newError(KindTransient, err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.url, nil)
	if err != nil {
		return Result{}, newError(KindNetwork, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, newError(KindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{}, newError(KindNotFound, fmt.Errorf("404 for %s", target.url))
	}
	if resp.StatusCode >= 500 {
		return Result{}, newError(KindTransient, fmt.Errorf("status %d for %s", resp.StatusCode, target.url))
	}
	if resp.StatusCode >= 400 {
		return Result{}, newError(KindNetwork, fmt.Errorf("status %d for %s", resp.StatusCode, target.url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, newError(KindTransient, err)
	}

	ct := resp.Header.Get("Content-Type")
	mediatype := ""
	if ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediatype = mt
		}
	}

	filename := resolveFilename(resp.Header.Get("Content-Disposition"), target.rewrittenPath, resp.Request.URL.Path, mediatype)

	return Result{
		Bytes:       body,
		Filename:    filename,
		ContentType: mediatype,
		ResolvedURL: resp.Request.URL.String(),
	}, nil
}

func fetchDataURI(raw string) (Result, error) {
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return Result{}, newError(KindUnsupported, fmt.Errorf("malformed data uri"))
	}
	header := raw[5:comma]
	payload := raw[comma+1:]

	mediatype := "application/octet-stream"
	isBase64 := false
	parts := strings.Split(header, ";")
	if parts[0] != "" {
		mediatype = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	var data []byte
	var err error
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
	} else {
		var unescaped string
		unescaped, err = url.QueryUnescape(payload)
		data = []byte(unescaped)
	}
	if err != nil {
		return Result{}, newError(KindUnsupported, fmt.Errorf("decode data uri: %w", err))
	}

	return Result{
		Bytes:       data,
		Filename:    "document" + extensionForMIME(mediatype),
		ContentType: mediatype,
		ResolvedURL: raw,
	}, nil
}

type proxyTarget struct {
	url           string
	rewrittenPath string
}

// resolveProxyForm recognises the board proxy endpoints and returns the
// URL to actually fetch, plus any cookie-warming URLs that must be
// visited first.
func resolveProxyForm(raw string) (proxyTarget, []string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return proxyTarget{}, nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return proxyTarget{}, nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	base := u.Scheme + "://" + u.Host

	switch {
	case strings.HasSuffix(u.Path, "/view_image.php"):
		fn := u.Query().Get("fn")
		if fn == "" {
			return proxyTarget{url: raw}, nil, nil
		}
		decoded, err := url.QueryUnescape(fn)
		if err != nil {
			decoded = fn
		}
		rewritten := base + "/" + strings.TrimLeft(decoded, "/")
		return proxyTarget{url: rewritten, rewrittenPath: decoded}, nil, nil

	case strings.HasSuffix(u.Path, "/download.php"):
		boTable := u.Query().Get("bo_table")
		wrID := u.Query().Get("wr_id")
		warm := []string{
			base + "/",
		}
		if boTable != "" {
			warm = append(warm, fmt.Sprintf("%s/board.php?bo_table=%s", base, boTable))
			if wrID != "" {
				warm = append(warm, fmt.Sprintf("%s/view.php?bo_table=%s&wr_id=%s", base, boTable, wrID))
			}
		}
		return proxyTarget{url: raw}, warm, nil

	default:
		return proxyTarget{url: raw}, nil, nil
	}
}

// resolveFilename implements the filename priority order:
// Content-Disposition (incl. RFC-5987) → rewritten proxy path → URL path →
// MIME-derived fallback.
func resolveFilename(contentDisposition, rewrittenPath, urlPath, mediatype string) string {
	if contentDisposition != "" {
		if name := filenameFromContentDisposition(contentDisposition); name != "" {
			return name
		}
	}
	if rewrittenPath != "" {
		if base := path.Base(rewrittenPath); base != "." && base != "/" {
			return base
		}
	}
	if urlPath != "" {
		if base := path.Base(urlPath); base != "." && base != "/" {
			return base
		}
	}
	return "document" + extensionForMIME(mediatype)
}

func filenameFromContentDisposition(header string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	if name, ok := params["filename*"]; ok {
		return decodeRFC5987(name)
	}
	if name, ok := params["filename"]; ok {
		return name
	}
	return ""
}

// decodeRFC5987 decodes the ext-value form: charset'lang'percent-encoded.
func decodeRFC5987(value string) string {
	parts := strings.SplitN(value, "'", 3)
	if len(parts) != 3 {
		return value
	}
	decoded, err := url.QueryUnescape(parts[2])
	if err != nil {
		return parts[2]
	}
	return decoded
}

func extensionForMIME(mediatype string) string {
	switch mediatype {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return ".pptx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/zip":
		return ".zip"
	default:
		return ""
	}
}
