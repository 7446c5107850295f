// Package workflows implements the identity-governance intents served by
// the dispatcher. Each workflow composes the signal log, correlator, scorer,
// and remediation engine; none of them talks to the directory's wire format
// directly.
package workflows

import (
	"context"
	"sync"
	"time"

	"github.com/identity-guardian/guardian/internal/correlation"
	"github.com/identity-guardian/guardian/internal/directory"
	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/models"
	"github.com/identity-guardian/guardian/internal/remediation"
	"github.com/identity-guardian/guardian/internal/repository"
	"github.com/identity-guardian/guardian/internal/risk"
	"github.com/identity-guardian/guardian/internal/signals"
	"github.com/identity-guardian/guardian/internal/telemetry"
)

// Options holds workflow-level tunables.
type Options struct {
	// RetentionHorizon bounds how far back the risk pipeline reads signals.
	RetentionHorizon time.Duration

	// DormantAfter is the inactivity period after which an account is
	// flagged dormant.
	DormantAfter time.Duration

	// SoDConflicts lists mutually exclusive role sets. A user holding two
	// roles from the same set is in violation.
	SoDConflicts [][]string
}

// Service executes governance workflows. Access requests and review
// campaigns are transient working state; cases and assessments are the
// durable records.
type Service struct {
	opts       Options
	store      signals.Store
	collector  *signals.Collector
	correlator *correlation.Correlator
	scorer     *risk.Scorer
	engine     *remediation.Engine
	repo       repository.Repository
	dir        directory.Directory
	logger     *logging.Logger
	metrics    *telemetry.Metrics

	mu        sync.Mutex
	requests  map[string]*AccessRequest
	campaigns map[string]*ReviewCampaign
}

// NewService wires a workflow service.
func NewService(
	opts Options,
	store signals.Store,
	collector *signals.Collector,
	correlator *correlation.Correlator,
	scorer *risk.Scorer,
	engine *remediation.Engine,
	repo repository.Repository,
	dir directory.Directory,
	logger *logging.Logger,
	metrics *telemetry.Metrics,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.DormantAfter <= 0 {
		opts.DormantAfter = 90 * 24 * time.Hour
	}
	return &Service{
		opts:       opts,
		store:      store,
		collector:  collector,
		correlator: correlator,
		scorer:     scorer,
		engine:     engine,
		repo:       repo,
		dir:        dir,
		logger:     logger,
		metrics:    metrics,
		requests:   make(map[string]*AccessRequest),
		campaigns:  make(map[string]*ReviewCampaign),
	}
}

// assessSubject runs the full risk pipeline for one subject: snapshot the
// signal log, correlate, score, persist the assessment, and hand the result
// to the remediation engine.
func (s *Service) assessSubject(ctx context.Context, subjectID string) (*models.RiskAssessment, *models.RemediationCase, error) {
	log, err := s.store.Snapshot(ctx, subjectID)
	if err != nil {
		return nil, nil, err
	}

	findings := s.correlator.Correlate(subjectID, log)
	assessment := s.scorer.Assess(subjectID, log, findings)

	if err := s.repo.SaveAssessment(ctx, &assessment); err != nil {
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.AssessmentScores.Observe(assessment.Score)
	}
	s.logger.Info("risk assessed",
		"subject_id", subjectID,
		"score", assessment.Score,
		"level", assessment.Level,
		"signals", len(log),
		"findings", len(findings))

	c, err := s.engine.HandleAssessment(ctx, assessment)
	if err != nil {
		// The assessment itself succeeded; remediation failure travels up
		// alongside it so callers can report both.
		return &assessment, c, err
	}
	return &assessment, c, nil
}

// ingest normalizes and appends one raw event to the signal log.
func (s *Service) ingest(ctx context.Context, raw signals.RawEvent) (models.Signal, error) {
	sig, err := s.collector.Ingest(ctx, raw)
	if err != nil {
		return models.Signal{}, err
	}
	if s.metrics != nil {
		s.metrics.SignalsIngested.WithLabelValues(string(sig.Kind)).Inc()
	}
	return sig, nil
}
