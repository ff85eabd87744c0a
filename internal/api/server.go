// Package api provides the node's HTTP status surface: health, version,
// subsystem runtime state, capability registry contents, and
// variety/gap controller metrics. It exposes no control-plane mutation
// routes — operators drive the node through the CLI, which talks to
// these same packages in-process.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vsmcore/vsmcore/internal/capability"
	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/store"
	"github.com/vsmcore/vsmcore/internal/toolchain"
	"github.com/vsmcore/vsmcore/internal/variety"
	"github.com/vsmcore/vsmcore/internal/vsm"
)

// Server is the node's HTTP status server.
type Server struct {
	runtime        *vsm.Runtime
	registry       *capability.Registry
	chains         *toolchain.Engine
	controller     *variety.Controller
	store          *store.Store
	metricsEnabled bool
}

// NewServer creates a new API server over the node's live components.
// Any component may be nil; routes depending on a nil component answer
// 503 rather than panicking.
func NewServer(rt *vsm.Runtime, reg *capability.Registry, chains *toolchain.Engine, vc *variety.Controller, st *store.Store) *Server {
	return &Server{runtime: rt, registry: reg, chains: chains, controller: vc, store: st}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "0.1.0"})
		})
		r.Get("/subsystems", s.handleSubsystems)
		r.Get("/capabilities", s.handleCapabilities)
		r.Get("/variety", s.handleVariety)
		r.Get("/variety/actions", s.handleVarietyActions)
		r.Get("/chains/{id}", s.handleChainExecution)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "vsmcore is running"}
	if s.store != nil {
		if stats, err := s.store.Stats(); err == nil {
			status["store"] = stats
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSubsystems(w http.ResponseWriter, r *http.Request) {
	if s.runtime == nil {
		writeError(w, http.StatusServiceUnavailable, "runtime not wired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"s1_metrics":              s.runtime.S1.Metrics(),
		"s2_coordinations":        s.runtime.S2.ActiveCoordinations(),
		"s3_allocations":          s.runtime.S3.Allocations(),
		"s4_scanning_interval_ms": s.runtime.S4.ScanningInterval().Milliseconds(),
		"s5_decisions":            s.runtime.S5.Decisions(),
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not wired")
		return
	}
	filters := capability.Filters{
		Kind:   capability.Kind(r.URL.Query().Get("kind")),
		Source: r.URL.Query().Get("source"),
	}
	writeJSON(w, http.StatusOK, s.registry.ListCapabilities(filters))
}

func (s *Server) handleVariety(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "variety controller not wired")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Metrics())
}

func (s *Server) handleVarietyActions(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "variety controller not wired")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.ActionLog())
}

func (s *Server) handleChainExecution(w http.ResponseWriter, r *http.Request) {
	if s.chains == nil {
		writeError(w, http.StatusServiceUnavailable, "chain engine not wired")
		return
	}
	id := chi.URLParam(r, "id")
	exec, err := s.chains.GetExecution(id)
	if err != nil {
		errs.Log(slog.Default(), err, middleware.GetReqID(r.Context()))
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
