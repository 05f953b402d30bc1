package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"campusrag/internal/bm25"
	"campusrag/internal/clock"
	"campusrag/internal/observability"
)

type questionRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer     *string  `json:"answer"`
	Answerable bool     `json:"answerable"`
	References string   `json:"references"`
	Disclaimer string   `json:"disclaimer"`
	Images     []string `json:"images"`
}

func (s *Server) handleAIResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	logger.Trace().RawJSON("body", observability.RedactJSON(raw)).Msg("ai-response request")

	var req questionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	now := clock.Now()
	queryNouns := bm25.Nouns(question)

	outcome := s.orchestrator.Run(ctx, question, queryNouns, now)
	resp, err := s.composer.Compose(ctx, question, queryNouns, outcome.Intent, outcome.Chunks, outcome.TopURL, now)
	if err != nil {
		logger.Error().Err(err).Str("question", question).Msg("answer composition failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Debug().Bool("answerable", resp.Answerable).Int("chunks", len(outcome.Chunks)).Msg("answered question")

	respondJSON(w, http.StatusOK, answerResponse{
		Answer:     resp.Answer,
		Answerable: resp.Answerable,
		References: resp.References,
		Disclaimer: resp.Disclaimer,
		Images:     resp.Images,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
