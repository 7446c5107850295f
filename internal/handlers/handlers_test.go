package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identity-guardian/guardian/internal/correlation"
	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/dispatch"
	"github.com/identity-guardian/guardian/internal/handlers"
	"github.com/identity-guardian/guardian/internal/middleware"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/remediation"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/risk"
	"github.com/identity-guardian/guardian/internal/server"
	"github.com/identity-guardian/guardian/internal/signals"
	"github.com/identity-guardian/guardian/internal/telemetry"
	"github.com/identity-guardian/guardian/internal/workflows"
)

type testEnv struct {
	router http.Handler
	dir    *directory.Mock
	repo   *repository.MemoryRepository
	store  signals.Store
	engine *remediation.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := signals.NewMemoryStore(24 * time.Hour)
	repo := repository.NewMemoryRepository()
	dir := directory.NewMock()
	metrics := telemetry.New(prometheus.NewRegistry())

	collector := signals.NewCollector(store)
	correlator := correlation.NewCorrelator([]correlation.Pair{{
		Kinds:  []models.SignalKind{models.KindRiskySignin, models.KindPrivEscalation},
		Window: 24 * time.Hour,
	}})
	scorer := risk.NewScorer(risk.Config{
		Weights: map[models.SignalKind]float64{
			models.KindRiskySignin:    20,
			models.KindPrivEscalation: 30,
			models.KindDormant:        10,
		},
		CorrelationMultiplier: 1.5,
		MediumThreshold:       40,
		HighThreshold:         70,
		CriticalThreshold:     90,
	})
	engine := remediation.NewEngine(remediation.Config{
		AutoBlockThreshold: 90,
		BlockTemplateRef:   "ca-block-template",
		CallTimeout:        5 * time.Second,
	}, repo, dir, nil, nil, metrics)

	svc := workflows.NewService(workflows.Options{
		RetentionHorizon: 24 * time.Hour,
	}, store, collector, correlator, scorer, engine, repo, dir, nil, metrics)

	dispatcher := dispatch.New(nil, metrics)
	svc.Register(dispatcher)

	handler := handlers.NewHandler(dispatcher, collector, store, engine, repo, nil, metrics)
	auth := middleware.NewAuth("", false)

	return &testEnv{
		router: server.NewRouter(handler, auth),
		dir:    dir,
		repo:   repo,
		store:  store,
		engine: engine,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestIngestSignal(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/signals", map[string]interface{}{
		"subject_id": "u-1",
		"kind":       "risky_signin",
		"severity":   0.8,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var sig models.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sig))
	assert.Equal(t, models.KindRiskySignin, sig.Kind)

	log, err := env.store.Snapshot(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestIngestSignal_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/signals", map[string]interface{}{
		"subject_id": "u-1",
		"kind":       "made_up",
		"severity":   0.8,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kind")
}

func TestListSignals(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Append(context.Background(), models.Signal{
		SubjectID: "u-1", Kind: models.KindDormant, Severity: 0.5, ObservedAt: time.Now(),
	}))

	rec := env.request(t, http.MethodGet, "/api/v1/subjects/u-1/signals", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Signals []models.Signal `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Signals, 1)
}

func TestDispatch_UnknownIntent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/dispatch", map[string]interface{}{
		"intent": "no_such_intent",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var res dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, dispatch.StatusUnsupported, res.Status)
}

func TestDispatch_CalculateRiskEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, env.store.Append(ctx, models.Signal{
		SubjectID: "u-1", Kind: models.KindRiskySignin, Severity: 0.8, ObservedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, env.store.Append(ctx, models.Signal{
		SubjectID: "u-1", Kind: models.KindPrivEscalation, Severity: 0.9, ObservedAt: now.Add(-time.Hour),
	}))

	rec := env.request(t, http.MethodPost, "/api/v1/dispatch", map[string]interface{}{
		"intent":  "calculate_risk",
		"payload": map[string]interface{}{"subject_id": "u-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, dispatch.StatusOK, res.Status)

	// Correlated critical pair auto-blocked the subject
	assert.True(t, env.dir.Blocked("u-1"))

	// Latest assessment is visible through the API
	rec = env.request(t, http.MethodGet, "/api/v1/subjects/u-1/assessment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var a models.RiskAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, models.LevelCritical, a.Level)
	assert.Equal(t, 100.0, a.Score)
}

func TestCases_GetListRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Open a case through the engine
	c, err := env.engine.HandleAssessment(ctx, models.RiskAssessment{
		ID: "a-1", SubjectID: "u-1", Score: 95, Level: models.LevelCritical, AssessedAt: time.Now(),
	})
	require.NoError(t, err)

	rec := env.request(t, http.MethodGet, "/api/v1/cases", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list models.ListCasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Cases, 1)
	assert.Equal(t, 1, list.Pagination.Total)

	rec = env.request(t, http.MethodGet, "/api/v1/cases/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var restored models.RemediationCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &restored))
	assert.Equal(t, models.StateClosed, restored.State)
	assert.False(t, env.dir.Blocked("u-1"))

	// Restoring a closed case conflicts
	rec = env.request(t, http.MethodPost, "/api/v1/cases/"+c.ID+"/restore", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCases_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/cases/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/v1/cases/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssessment_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/subjects/nobody/assessment", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodDelete, "/api/v1/signals", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/dispatch", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthEnforced(t *testing.T) {
	store := signals.NewMemoryStore(time.Hour)
	repo := repository.NewMemoryRepository()
	metrics := telemetry.New(prometheus.NewRegistry())
	handler := handlers.NewHandler(dispatch.New(nil, metrics), signals.NewCollector(store), store, nil, repo, nil, metrics)

	router := server.NewRouter(handler, middleware.NewAuth("secret", true))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
