package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"campusrag/internal/compose"
	"campusrag/internal/retrieve"
	"campusrag/internal/store"

	"github.com/stretchr/testify/require"
)

func TestHandleAIResponseRejectsEmptyQuestion(t *testing.T) {
	orchestrator := &retrieve.Orchestrator{Docs: store.NewMemoryDocumentStore()}
	composer := compose.NewComposer(nil, 0)
	srv := NewServer(orchestrator, composer)

	body, err := json.Marshal(questionRequest{Question: "   "})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ai/ai-response", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAIResponseReturnsNoResultWhenCorpusEmpty(t *testing.T) {
	orchestrator := &retrieve.Orchestrator{Docs: store.NewMemoryDocumentStore()}
	composer := compose.NewComposer(nil, 0)
	srv := NewServer(orchestrator, composer)

	body, err := json.Marshal(questionRequest{Question: "What are the graduation requirements?"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ai/ai-response", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp answerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Answerable)
}

func TestHealthzReportsOK(t *testing.T) {
	orchestrator := &retrieve.Orchestrator{Docs: store.NewMemoryDocumentStore()}
	composer := compose.NewComposer(nil, 0)
	srv := NewServer(orchestrator, composer)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
