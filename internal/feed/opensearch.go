// Package feed polls the SIEM event store and converts matching hits into
// raw monitoring events for the signal collector. The feed is an optional
// input path; the ingest API accepts the same events directly.
package feed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/signals"
)

// Config holds SIEM feed connection and polling settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPattern  string
	PollInterval  time.Duration
	BatchSize     int
}

// DefaultConfig returns sensible defaults for the SIEM feed.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPattern:  "guardian-events-*",
		PollInterval:  time.Minute,
		BatchSize:     1000,
	}
}

// Poller periodically searches the SIEM store for new identity events and
// feeds them to the collector. Invalid hits are skipped and logged; a bad
// event in the store must not stall the feed.
type Poller struct {
	cfg       Config
	client    *opensearch.Client
	collector *signals.Collector
	logger    *logging.Logger

	lastSeen time.Time
}

// NewPoller creates a feed poller against the configured SIEM store.
func NewPoller(cfg Config, collector *signals.Collector, logger *logging.Logger) (*Poller, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.TLSSkipVerify {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Poller{
		cfg:       cfg,
		client:    client,
		collector: collector,
		logger:    logger,
		lastSeen:  time.Now().Add(-cfg.PollInterval),
	}, nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("feed poller started",
		"index_pattern", p.cfg.IndexPattern, "interval", p.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("feed poll failed", "error", err)
			}
		}
	}
}

// poll fetches hits newer than the high-water mark and ingests them.
func (p *Poller) poll(ctx context.Context) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"observed_at": map[string]interface{}{
					"gt": p.lastSeen.UTC().Format(time.RFC3339Nano),
				},
			},
		},
		"sort": []map[string]interface{}{
			{"observed_at": map[string]string{"order": "asc"}},
		},
		"size": p.cfg.BatchSize,
	}

	body, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	search := opensearchapi.SearchRequest{
		Index: []string{p.cfg.IndexPattern},
		Body:  strings.NewReader(string(body)),
	}

	resp, err := search.Do(ctx, p.client)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("search failed with status %s", resp.Status())
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string                 `json:"_id"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	ingested := 0
	for _, hit := range searchResp.Hits.Hits {
		raw := signals.RawEvent(hit.Source)

		sig, err := p.collector.Ingest(ctx, raw)
		if err != nil {
			p.logger.Warn("skipping invalid feed event", "doc_id", hit.ID, "error", err)
			continue
		}
		ingested++
		if sig.ObservedAt.After(p.lastSeen) {
			p.lastSeen = sig.ObservedAt
		}
	}

	if len(searchResp.Hits.Hits) > 0 {
		p.logger.Debug("feed poll complete",
			"hits", len(searchResp.Hits.Hits), "ingested", ingested)
	}
	return nil
}
