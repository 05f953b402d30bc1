// Package httpapi exposes the question-answering pipeline over HTTP: a
// single POST /ai/ai-response endpoint that runs the Retrieval Orchestrator
// and Response Composer for one question.
package httpapi

import (
	"net/http"

	"campusrag/internal/compose"
	"campusrag/internal/retrieve"
)

// Server wires the orchestrator and composer behind the external HTTP
// contract.
type Server struct {
	orchestrator *retrieve.Orchestrator
	composer     *compose.Composer
	mux          *http.ServeMux
}

// NewServer builds a Server with routes registered.
func NewServer(orchestrator *retrieve.Orchestrator, composer *compose.Composer) *Server {
	s := &Server{orchestrator: orchestrator, composer: composer, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /ai/ai-response", s.handleAIResponse)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}
