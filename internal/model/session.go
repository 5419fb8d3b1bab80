package model

import "time"

// SessionStatus represents the lifecycle state of a bulk research session.
type SessionStatus string

const (
	SessionStatusDraft            SessionStatus = "draft"
	SessionStatusReady            SessionStatus = "ready"
	SessionStatusResearching      SessionStatus = "researching"
	SessionStatusPaused           SessionStatus = "paused"
	SessionStatusResearchComplete SessionStatus = "research_complete"
	SessionStatusCancelled        SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusResearchComplete || s == SessionStatusCancelled
}

// Subject is a company queued for research within a session.
type Subject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	Industry string `json:"industry,omitempty"`
	CRMID    string `json:"crm_id,omitempty"`
}

// SelectionConfig records how the session's subjects were chosen.
type SelectionConfig struct {
	Source   string `json:"source"` // crm, csv, xlsx
	Filter   string `json:"filter,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// CompanyResult is the per-subject outcome recorded by the orchestrator.
type CompanyResult struct {
	SubjectID   string                   `json:"subject_id"`
	SubjectName string                   `json:"subject_name"`
	Success     bool                     `json:"success"`
	Hypotheses  []HypothesisWithEvidence `json:"hypotheses,omitempty"`
	Confidence  *ConfidenceBreakdown     `json:"confidence,omitempty"`
	CostUSD     float64                  `json:"cost_usd"`
	DurationMS  int64                    `json:"duration_ms"`
	Error       string                   `json:"error,omitempty"`
	CompletedAt time.Time                `json:"completed_at"`
}

// ErrorSeverity distinguishes soft warnings from hard per-item failures.
type ErrorSeverity string

const (
	SeverityWarning ErrorSeverity = "warning"
	SeverityError   ErrorSeverity = "error"
)

// SessionError records a problem encountered while processing one subject.
type SessionError struct {
	SubjectID string        `json:"subject_id"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	At        time.Time     `json:"at"`
}

// BulkSession is a long-running pausable job researching many subjects
// sequentially. CurrentIndex is monotonically non-decreasing and exactly
// resumable: pausing persists the index of the next unprocessed subject.
type BulkSession struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Selection    SelectionConfig          `json:"selection"`
	Status       SessionStatus            `json:"status"`
	Subjects     []Subject                `json:"subjects"`
	Processed    int                      `json:"processed"`
	Total        int                      `json:"total"`
	CurrentIndex int                      `json:"current_index"`
	Results      map[string]CompanyResult `json:"results"`
	Errors       []SessionError           `json:"errors"`
	TotalCostUSD float64                  `json:"total_cost_usd"`
	TotalTimeMS  int64                    `json:"total_time_ms"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	CompletedAt  *time.Time               `json:"completed_at,omitempty"`
}

// SuccessCount returns the number of successfully researched subjects.
func (s *BulkSession) SuccessCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// FailureCount returns the number of subjects whose research failed.
func (s *BulkSession) FailureCount() int {
	n := 0
	for _, r := range s.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
