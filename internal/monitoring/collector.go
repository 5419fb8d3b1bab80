package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of session health.
type MetricsSnapshot struct {
	// Session counts within the lookback window.
	SessionsTotal       int `json:"sessions_total"`
	SessionsResearching int `json:"sessions_researching"`
	SessionsPaused      int `json:"sessions_paused"`
	SessionsComplete    int `json:"sessions_complete"`
	SessionsCancelled   int `json:"sessions_cancelled"`

	// Per-subject outcomes aggregated across those sessions.
	SubjectsProcessed int     `json:"subjects_processed"`
	SubjectsFailed    int     `json:"subjects_failed"`
	SubjectFailRate   float64 `json:"subject_fail_rate"`
	CRMWriteWarnings  int     `json:"crm_write_warnings"`

	// Spend and quality.
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Paused sessions whose last update predates the stall cutoff.
	StalledPaused int `json:"stalled_paused"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the session store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new session metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of session metrics over the given lookback
// window. stalledAfter is how long a paused session may sit untouched
// before it counts as stalled.
func (c *Collector) Collect(ctx context.Context, lookbackHours int, stalledAfter time.Duration) (*MetricsSnapshot, error) {
	return c.collectAt(ctx, lookbackHours, stalledAfter, time.Now().UTC())
}

func (c *Collector) collectAt(ctx context.Context, lookbackHours int, stalledAfter time.Duration, now time.Time) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	stallCutoff := now.Add(-stalledAfter)

	sessions, err := c.store.ListSessions(ctx, store.SessionFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}

	var confidenceSum float64
	var confidenceCount int

	for i := range sessions {
		s := &sessions[i]
		if s.UpdatedAt.Before(cutoff) {
			continue
		}

		snap.SessionsTotal++
		switch s.Status {
		case model.SessionStatusResearching:
			snap.SessionsResearching++
		case model.SessionStatusPaused:
			snap.SessionsPaused++
			if s.UpdatedAt.Before(stallCutoff) {
				snap.StalledPaused++
			}
		case model.SessionStatusResearchComplete:
			snap.SessionsComplete++
		case model.SessionStatusCancelled:
			snap.SessionsCancelled++
		}

		snap.SubjectsProcessed += s.Processed
		snap.SubjectsFailed += s.FailureCount()
		snap.TotalCostUSD += s.TotalCostUSD

		for _, e := range s.Errors {
			if e.Severity == model.SeverityWarning {
				snap.CRMWriteWarnings++
			}
		}
		for _, r := range s.Results {
			if r.Success && r.Confidence != nil {
				confidenceSum += r.Confidence.Display
				confidenceCount++
			}
		}
	}

	if snap.SubjectsProcessed > 0 {
		snap.SubjectFailRate = float64(snap.SubjectsFailed) / float64(snap.SubjectsProcessed)
	}
	if confidenceCount > 0 {
		snap.AvgConfidence = confidenceSum / float64(confidenceCount)
	}

	return snap, nil
}
