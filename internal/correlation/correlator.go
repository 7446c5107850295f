// Package correlation detects temporal overlap between independent signal
// streams for a subject. Findings are recomputed on demand and never
// persisted; correlation is a pure read over the signal log.
package correlation

import (
	"sort"
	"strings"
	"time"

	"github.com/identity-guardian/guardian/internal/models"
)

// Pair declares two (or more) signal kinds whose temporal overlap produces
// a correlated finding.
type Pair struct {
	Kinds  []models.SignalKind
	Window time.Duration
}

// Name returns the correlation kind label for findings produced by this pair.
func (p Pair) Name() string {
	kinds := make([]string, len(p.Kinds))
	for i, k := range p.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	return strings.Join(kinds, "+")
}

func (p Pair) matches(kind models.SignalKind) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Correlator evaluates configured correlatable pairs against a subject's
// signal log snapshot.
type Correlator struct {
	pairs []Pair
}

// NewCorrelator creates a correlator for the configured pairs.
func NewCorrelator(pairs []Pair) *Correlator {
	return &Correlator{pairs: pairs}
}

// Correlate returns one finding per temporal cluster of signals that contains
// at least two distinguishable kinds of a configured pair. Signals chain
// transitively: consecutive occurrences within the window join one cluster,
// so overlapping triples produce a single finding rather than combinatorial
// duplicates.
func (c *Correlator) Correlate(subjectID string, log []models.Signal) []models.CorrelatedFinding {
	var findings []models.CorrelatedFinding

	for _, pair := range c.pairs {
		var candidates []models.Signal
		for _, sig := range log {
			if sig.SubjectID == subjectID && pair.matches(sig.Kind) {
				candidates = append(candidates, sig)
			}
		}
		if len(candidates) < 2 {
			continue
		}

		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].ObservedAt.Before(candidates[j].ObservedAt)
		})

		cluster := []models.Signal{candidates[0]}
		for _, sig := range candidates[1:] {
			last := cluster[len(cluster)-1]
			if sig.ObservedAt.Sub(last.ObservedAt) <= pair.Window {
				cluster = append(cluster, sig)
				continue
			}
			if f, ok := c.finding(subjectID, pair, cluster); ok {
				findings = append(findings, f)
			}
			cluster = []models.Signal{sig}
		}
		if f, ok := c.finding(subjectID, pair, cluster); ok {
			findings = append(findings, f)
		}
	}

	return findings
}

// finding builds a CorrelatedFinding from a cluster, requiring at least two
// distinguishable kinds.
func (c *Correlator) finding(subjectID string, pair Pair, cluster []models.Signal) (models.CorrelatedFinding, bool) {
	if len(cluster) < 2 {
		return models.CorrelatedFinding{}, false
	}

	kinds := make(map[models.SignalKind]bool)
	for _, sig := range cluster {
		kinds[sig.Kind] = true
	}
	if len(kinds) < 2 {
		return models.CorrelatedFinding{}, false
	}

	signals := make([]models.Signal, len(cluster))
	copy(signals, cluster)

	return models.CorrelatedFinding{
		SubjectID:   subjectID,
		Signals:     signals,
		WindowStart: signals[0].ObservedAt,
		WindowEnd:   signals[len(signals)-1].ObservedAt,
		Kind:        pair.Name(),
	}, true
}
