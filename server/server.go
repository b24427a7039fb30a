// Package server exposes the simulation engine over HTTP: workspace load,
// action simulation, reset, history, and sample discovery.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/petal-labs/ontoflow/engine"
)

// DefaultCORSOrigin is the allowed origin when none is configured: the local
// development frontend. Production deployments set their own origin.
const DefaultCORSOrigin = "http://localhost:5173"

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Engine     *engine.Engine
	SamplesDir string
	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the ontoflow HTTP API server.
type Server struct {
	engine     *engine.Engine
	samplesDir string
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = DefaultCORSOrigin
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 4 << 20 // 4 MB default, workspaces embed whole graphs
	}
	return &Server{
		engine:     cfg.Engine,
		samplesDir: cfg.SamplesDir,
		corsOrigin: corsOrigin,
		maxBody:    maxBody,
		logger:     logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts workspace API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/workspace/load", s.handleLoad)
	mux.HandleFunc("POST /api/v1/workspace/simulate", s.handleSimulate)
	mux.HandleFunc("POST /api/v1/workspace/reset", s.handleReset)
	mux.HandleFunc("GET /api/v1/workspace/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/workspace/samples", s.handleSamples)
	mux.HandleFunc("GET /api/v1/workspace/actions", s.handleActions)
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
