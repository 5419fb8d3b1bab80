package bulk

import (
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ProgressEvent is emitted after each processed subject.
type ProgressEvent struct {
	SessionID          string        `json:"session_id"`
	Subject            string        `json:"subject"`
	Processed          int           `json:"processed"`
	Total              int           `json:"total"`
	Percent            float64       `json:"percent"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	TotalCostUSD       float64       `json:"total_cost_usd"`
}

// progressFor builds the event for a session after processing one subject.
// The remaining-time estimate uses the running average item time; before any
// item has completed it falls back to defaultItemTime.
func progressFor(sess *model.BulkSession, subject string, elapsed, defaultItemTime time.Duration) ProgressEvent {
	avg := defaultItemTime
	if sess.Processed > 0 {
		avg = time.Duration(sess.TotalTimeMS/int64(sess.Processed)) * time.Millisecond
	}
	remaining := len(sess.Subjects) - sess.CurrentIndex

	percent := 0.0
	if sess.Total > 0 {
		percent = float64(sess.Processed) / float64(sess.Total) * 100
	}

	return ProgressEvent{
		SessionID:          sess.ID,
		Subject:            subject,
		Processed:          sess.Processed,
		Total:              sess.Total,
		Percent:            percent,
		Elapsed:            elapsed,
		EstimatedRemaining: time.Duration(remaining) * avg,
		TotalCostUSD:       sess.TotalCostUSD,
	}
}
