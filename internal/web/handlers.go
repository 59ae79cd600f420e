package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/lucasnoah/siteforge/internal/pipeline"
	"github.com/lucasnoah/siteforge/internal/task"
)

const maxRequestBody = 32 << 20

// handleRoot serves service info at / and rejects unknown paths.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	// POST / is accepted as an alias for /submit.
	if r.Method == http.MethodPost {
		s.handleSubmit(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "siteforge",
		"version":   s.version,
		"endpoints": []string{"POST /submit", "GET /health"},
	})
}

// handleSubmit decodes a task request and runs the pipeline synchronously.
// The response carries the terminal result; callback delivery happens in the
// background.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req task.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  pipeline.StatusError,
			"message": "malformed request body: " + err.Error(),
		})
		return
	}

	// The run must survive the caller disconnecting: collaborator calls have
	// side effects that should not be abandoned halfway.
	res := s.controller.Run(context.WithoutCancel(r.Context()), &req)
	writeJSON(w, statusCode(res), res)
}

// handleHealth reports liveness and which credentials are configured.
// Booleans only; values never leave the process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"credentials": s.cfg.CredentialStatus(),
	})
}

// statusCode maps a pipeline result to an HTTP status.
func statusCode(res *pipeline.Result) int {
	if !res.Failed() {
		return http.StatusOK
	}
	switch res.FailKind {
	case pipeline.KindInvalidRequest:
		return http.StatusBadRequest
	case pipeline.KindUnauthorized:
		return http.StatusUnauthorized
	case pipeline.KindTaskBusy:
		return http.StatusConflict
	case pipeline.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
