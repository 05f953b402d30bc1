// Package contentapi adapts the external OCR/document-parse service: a
// single multipart-upload endpoint for images and documents, plus a
// zip-expansion helper with archive-bomb guards.
package contentapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"campusrag/internal/observability"
)

// ErrUnsupported is returned when a file extension is not one of the fixed
// set of supported image/document kinds.
var ErrUnsupported = errors.New("contentapi: unsupported file kind")

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true, ".tif": true, ".tiff": true,
}

var documentExts = map[string]bool{
	".pdf": true, ".docx": true, ".pptx": true, ".xlsx": true, ".hwp": true, ".hwpx": true,
}

// IsSupported reports whether filename's extension is one the external
// content API can process, and classifies it.
func IsSupported(filename string) (kind string, ok bool) {
	ext := strings.ToLower(path.Ext(filename))
	if imageExts[ext] {
		return "image", true
	}
	if documentExts[ext] {
		return "document", true
	}
	return "", false
}

// Extraction is the result of a single extract() call.
type Extraction struct {
	Text     string
	Markdown string
	HTML     string
	Elements []map[string]any
}

// BestText returns the extraction's text, preferring markdown (so table
// structure survives) over flat text, and falling back to a crude HTML
// strip only if both are empty.
func (e Extraction) BestText() string {
	if e.Markdown != "" {
		return e.Markdown
	}
	if e.Text != "" {
		return e.Text
	}
	if e.HTML != "" {
		return stripTags(e.HTML)
	}
	return ""
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Client calls the external image/document extraction endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: observability.NewHTTPClient(&http.Client{Timeout: timeout}),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		timeout:    timeout,
	}
}

type extractResponse struct {
	Content struct {
		Markdown string `json:"markdown"`
		Text     string `json:"text"`
	} `json:"content"`
	Elements []map[string]any `json:"elements"`
}

// Extract sends fileBytes as a multipart upload, with the configured model
// selector and the OCR flag set for image kinds.
func (c *Client) Extract(ctx context.Context, fileBytes []byte, filename string) (Extraction, error) {
	kind, ok := IsSupported(filename)
	if !ok {
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnsupported, filename)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Extraction{}, fmt.Errorf("contentapi: build multipart: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return Extraction{}, fmt.Errorf("contentapi: write file part: %w", err)
	}
	_ = w.WriteField("model", c.model)
	_ = w.WriteField("ocr", boolString(kind == "image"))
	if err := w.Close(); err != nil {
		return Extraction{}, fmt.Errorf("contentapi: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return Extraction{}, fmt.Errorf("contentapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Extraction{}, fmt.Errorf("contentapi: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Extraction{}, fmt.Errorf("contentapi: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Extraction{}, fmt.Errorf("contentapi: status %d: %s", resp.StatusCode, string(raw))
	}
	var parsed extractResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Extraction{}, fmt.Errorf("contentapi: malformed response: %w", err)
	}
	return Extraction{
		Text:     parsed.Content.Text,
		Markdown: parsed.Content.Markdown,
		Elements: parsed.Elements,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ZipMember is one file extracted from an archive.
type ZipMember struct {
	Filename   string
	Extraction Extraction
}

// ZipMemberFailure records a member that could not be processed.
type ZipMemberFailure struct {
	Filename string
	Reason   string
}

// ZipResult is the outcome of extract_zip().
type ZipResult struct {
	Successful []ZipMember
	Failed     []ZipMemberFailure
	TotalFiles int
}

// ZipLimits enforces the archive-bomb guards applied to every uploaded zip.
type ZipLimits struct {
	MaxArchiveSize   int64
	MaxMembers       int
	MaxExpandedTotal int64
}

// DefaultZipLimits returns the documented default limits.
func DefaultZipLimits() ZipLimits {
	return ZipLimits{
		MaxArchiveSize:   100 * 1024 * 1024,
		MaxMembers:       50,
		MaxExpandedTotal: 500 * 1024 * 1024,
	}
}

// ExtractZip expands a zip archive and routes each supported member through
// Extract, guarding against zip bombs via the configured limits.
func (c *Client) ExtractZip(ctx context.Context, archiveBytes []byte, limits ZipLimits) (ZipResult, error) {
	if int64(len(archiveBytes)) > limits.MaxArchiveSize {
		return ZipResult{}, fmt.Errorf("contentapi: archive exceeds max size %d bytes", limits.MaxArchiveSize)
	}
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return ZipResult{}, fmt.Errorf("contentapi: open zip: %w", err)
	}

	result := ZipResult{TotalFiles: len(zr.File)}
	if len(zr.File) > limits.MaxMembers {
		return ZipResult{}, fmt.Errorf("contentapi: archive has %d members, exceeds max %d", len(zr.File), limits.MaxMembers)
	}

	var cumulative int64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		cumulative += int64(f.UncompressedSize64)
		if cumulative > limits.MaxExpandedTotal {
			return ZipResult{}, fmt.Errorf("contentapi: archive expands beyond max total %d bytes", limits.MaxExpandedTotal)
		}
		if _, ok := IsSupported(f.Name); !ok {
			result.Failed = append(result.Failed, ZipMemberFailure{Filename: f.Name, Reason: "unsupported"})
			continue
		}
		rc, err := f.Open()
		if err != nil {
			result.Failed = append(result.Failed, ZipMemberFailure{Filename: f.Name, Reason: err.Error()})
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			result.Failed = append(result.Failed, ZipMemberFailure{Filename: f.Name, Reason: err.Error()})
			continue
		}
		extraction, err := c.Extract(ctx, data, f.Name)
		if err != nil {
			result.Failed = append(result.Failed, ZipMemberFailure{Filename: f.Name, Reason: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, ZipMember{Filename: f.Name, Extraction: extraction})
	}
	return result, nil
}
