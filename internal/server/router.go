package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/identity-guardian/guardian/internal/handlers"
	"github.com/identity-guardian/guardian/internal/middleware"
)

// NewRouter constructs the engine's HTTP handler. The metrics and health
// endpoints bypass auth; everything under /api/v1 goes through it.
func NewRouter(h *handlers.Handler, auth *middleware.Auth) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	api := http.NewServeMux()

	api.HandleFunc("/api/v1/dispatch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.Dispatch(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	api.HandleFunc("/api/v1/intents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Intents(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	api.HandleFunc("/api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.IngestSignal(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// GET /api/v1/subjects/:id/signals
	// GET /api/v1/subjects/:id/assessment
	api.HandleFunc("/api/v1/subjects/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/subjects/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch parts[1] {
		case "signals":
			h.ListSignals(w, r, parts[0])
		case "assessment":
			h.LatestAssessment(w, r, parts[0])
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	api.HandleFunc("/api/v1/cases", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListCases(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// GET  /api/v1/cases/:id
	// POST /api/v1/cases/:id/restore
	api.HandleFunc("/api/v1/cases/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/cases/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
			h.GetCase(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "restore" && r.Method == http.MethodPost:
			h.RestoreCase(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "restore":
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.Handle("/api/v1/", auth.Wrap(api))

	return middleware.RequestID(mux)
}
