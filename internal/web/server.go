// Package web exposes the pipeline over HTTP: task submission, health, and
// service info. Responses are JSON.
package web

import (
	"fmt"
	"log"
	"net/http"

	"github.com/lucasnoah/siteforge/internal/config"
	"github.com/lucasnoah/siteforge/internal/pipeline"
)

// Server is the HTTP front end over one pipeline Controller.
type Server struct {
	controller *pipeline.Controller
	cfg        *config.Config
	version    string
}

// NewServer creates a Server.
func NewServer(controller *pipeline.Controller, cfg *config.Config, version string) *Server {
	return &Server{controller: controller, cfg: cfg, version: version}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start blocks serving HTTP on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Printf("web: listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
