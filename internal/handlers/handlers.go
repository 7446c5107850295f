// Package handlers exposes the engine's HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/identity-guardian/guardian/internal/dispatch"
	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/httputil"
	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/middleware"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/remediation"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/signals"
	"github.com/identity-guardian/guardian/internal/telemetry"
)

type Handler struct {
	dispatcher *dispatch.Dispatcher
	collector  *signals.Collector
	store      signals.Store
	engine     *remediation.Engine
	repo       repository.Repository
	logger     *logging.Logger
	metrics    *telemetry.Metrics
}

func NewHandler(
	dispatcher *dispatch.Dispatcher,
	collector *signals.Collector,
	store signals.Store,
	engine *remediation.Engine,
	repo repository.Repository,
	logger *logging.Logger,
	metrics *telemetry.Metrics,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		collector:  collector,
		store:      store,
		engine:     engine,
		repo:       repo,
		logger:     logger,
		metrics:    metrics,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Dispatch handles POST /api/v1/dispatch
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Intent == "" {
		httputil.WriteError(w, http.StatusBadRequest, "intent is required")
		return
	}

	res := h.dispatcher.Dispatch(r.Context(), req)

	status := http.StatusOK
	switch res.Status {
	case dispatch.StatusInvalid:
		status = http.StatusBadRequest
	case dispatch.StatusUnsupported:
		status = http.StatusUnprocessableEntity
	case dispatch.StatusError:
		status = http.StatusBadGateway
	}
	httputil.WriteJSON(w, status, res)
}

// Intents handles GET /api/v1/intents
func (h *Handler) Intents(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"intents": h.dispatcher.Intents(),
	})
}

// IngestSignal handles POST /api/v1/signals
func (h *Handler) IngestSignal(w http.ResponseWriter, r *http.Request) {
	var raw signals.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sig, err := h.collector.Ingest(r.Context(), raw)
	if err != nil {
		if faults.IsValidation(err) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithContext(r.Context()).Error("signal ingest failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record signal")
		return
	}
	if h.metrics != nil {
		h.metrics.SignalsIngested.WithLabelValues(string(sig.Kind)).Inc()
	}

	httputil.WriteJSON(w, http.StatusCreated, sig)
}

// ListSignals handles GET /api/v1/subjects/:id/signals
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request, subjectID string) {
	log, err := h.store.Snapshot(r.Context(), subjectID)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("signal snapshot failed",
			"subject_id", subjectID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read signals")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subject_id": subjectID,
		"signals":    log,
	})
}

// LatestAssessment handles GET /api/v1/subjects/:id/assessment
func (h *Handler) LatestAssessment(w http.ResponseWriter, r *http.Request, subjectID string) {
	a, err := h.repo.GetLatestAssessment(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrAssessmentNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "no assessment for subject")
			return
		}
		h.logger.WithContext(r.Context()).Error("assessment lookup failed",
			"subject_id", subjectID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read assessment")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// ListCases handles GET /api/v1/cases
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	req := &models.ListCasesRequest{
		Page:      parseInt(r.URL.Query().Get("page"), 1),
		Limit:     parseInt(r.URL.Query().Get("limit"), 50),
		SubjectID: r.URL.Query().Get("subject_id"),
		State:     r.URL.Query().Get("state"),
	}

	cases, total, err := h.repo.ListCases(r.Context(), req)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("case list failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list cases")
		return
	}

	totalPages := total / req.Limit
	if total%req.Limit > 0 {
		totalPages++
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ListCasesResponse{
		Cases: cases,
		Pagination: models.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// GetCase handles GET /api/v1/cases/:id
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	c, err := h.repo.GetCaseByID(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "case not found")
			return
		}
		h.logger.WithContext(r.Context()).Error("case lookup failed",
			"case_id", caseID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read case")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// RestoreCase handles POST /api/v1/cases/:id/restore
func (h *Handler) RestoreCase(w http.ResponseWriter, r *http.Request, caseID string) {
	actor := middleware.GetSubject(r.Context())
	if actor == "" {
		actor = "operator"
	}

	started := time.Now()
	c, err := h.engine.Restore(r.Context(), caseID, actor)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCaseNotFound):
			httputil.WriteError(w, http.StatusNotFound, "case not found")
		case faults.IsValidation(err):
			httputil.WriteError(w, http.StatusConflict, err.Error())
		case faults.IsExternal(err):
			h.logger.WithContext(r.Context()).Error("restore failed",
				"case_id", caseID, "actor", actor, "error", err)
			httputil.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error": err.Error(),
				"case":  c,
			})
		default:
			h.logger.WithContext(r.Context()).Error("restore failed",
				"case_id", caseID, "actor", actor, "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to restore access")
		}
		return
	}

	h.logger.WithContext(r.Context()).Info("restore completed",
		"case_id", caseID, "actor", actor, "elapsed", time.Since(started))
	httputil.WriteJSON(w, http.StatusOK, c)
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
