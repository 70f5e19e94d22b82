// Package management provides a lightweight HTTP API for runtime inspection
// of a running replay session.
//
// Endpoints:
//
//	GET /status   - tape population summary, current record/fallback mode
//	GET /metrics  - JSON metrics snapshot
//	GET /metrics/prom - Prometheus exposition format
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jimmc414/claude-cli-control/internal/config"
	"github.com/jimmc414/claude-cli-control/internal/metrics"
	"github.com/jimmc414/claude-cli-control/internal/store"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	store     *store.Store
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
}

// New creates a management server.
func New(cfg *config.Config, s *store.Store, m *metrics.Metrics) *Server {
	srv := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		store:     s,
		token:     cfg.ManagementToken,
		metrics:   m,
	}
	if srv.token != "" {
		log.Printf("[MANAGEMENT] Bearer token authentication enabled")
	}
	return srv
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	if s.metrics != nil {
		mux.Handle("/metrics/prom", promhttp.HandlerFor(
			promRegistryFor(s.metrics), promhttp.HandlerOpts{}))
	}
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status    string   `json:"status"`
		Uptime    string   `json:"uptime"`
		TapesPath string   `json:"tapesPath"`
		Record    string   `json:"record"`
		Fallback  string   `json:"fallback"`
		Loaded    int      `json:"loaded"`
		Used      []string `json:"used"`
		New       []string `json:"new"`
		Unused    []string `json:"unused"`
	}

	resp := response{
		Status:    "running",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		TapesPath: s.cfg.TapesPath,
		Record:    s.cfg.Record,
		Fallback:  s.cfg.Fallback,
		Loaded:    len(s.store.All()),
		New:       s.store.NewTapes(),
		Unused:    s.store.UnusedTapes(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	log.Printf("[MANAGEMENT] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
