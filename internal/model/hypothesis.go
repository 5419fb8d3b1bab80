package model

import "time"

// EvidenceLink records one trigger-pattern match that supports a hypothesis.
type EvidenceLink struct {
	SignalIndex    int     `json:"signal_index"`
	TriggerPattern string  `json:"trigger_pattern"`
	MatchScore     float64 `json:"match_score"`
	MatchedText    string  `json:"matched_text"`
	SourceURL      string  `json:"source_url,omitempty"`
}

// HypothesisWithEvidence is a pain point instantiated for a subject once its
// accumulated evidence crosses the surfacing threshold.
type HypothesisWithEvidence struct {
	PainPointID        string         `json:"pain_point_id"`
	PainPointName      string         `json:"pain_point_name"`
	Hypothesis         string         `json:"hypothesis"`
	TotalScore         float64        `json:"total_score"`
	EvidenceChain      []EvidenceLink `json:"evidence_chain"`
	DiscoveryQuestions []string       `json:"discovery_questions"`
	PrimaryPersonas    []string       `json:"primary_personas"`
	GeneratedAt        time.Time      `json:"generated_at"`
}
