package model

// SignalQuantityMetric scores how many signals were found against a fixed target.
type SignalQuantityMetric struct {
	Score    float64 `json:"score"`
	Found    int     `json:"found"`
	Expected int     `json:"expected"`
}

// SourceQualityMetric scores the credibility mix of the gathered sources.
type SourceQualityMetric struct {
	Score          float64 `json:"score"`
	AvgCredibility float64 `json:"avg_credibility"`
	Tier1Count     int     `json:"tier1_count"`
	Tier2Count     int     `json:"tier2_count"`
}

// SignalFreshnessMetric scores how recent the dated sources are.
type SignalFreshnessMetric struct {
	Score        float64 `json:"score"`
	RecentCount  int     `json:"recent_count"`
	UndatedCount int     `json:"undated_count"`
}

// FinancialDataMetric scores the presence of financial indicators.
type FinancialDataMetric struct {
	Score          float64 `json:"score"`
	HasRevenue     bool    `json:"has_revenue"`
	HasMargin      bool    `json:"has_margin"`
	HasGrowth      bool    `json:"has_growth"`
	StageSucceeded bool    `json:"stage_succeeded"`
}

// HypothesisEvidenceMetric scores how well-supported the surfaced hypotheses are.
type HypothesisEvidenceMetric struct {
	Score           float64 `json:"score"`
	AvgLinks        float64 `json:"avg_links"`
	StrongCount     int     `json:"strong_count"`
	HypothesisCount int     `json:"hypothesis_count"`
}

// ConfidenceBreakdown is the explainable five-metric research quality score.
// Overall is a fixed-weight linear combination of the five sub-scores,
// clamped to [0,1]. Display maps Overall onto a 1-5 scale.
type ConfidenceBreakdown struct {
	SignalQuantity     SignalQuantityMetric     `json:"signal_quantity"`
	SourceQuality      SourceQualityMetric      `json:"source_quality"`
	SignalFreshness    SignalFreshnessMetric    `json:"signal_freshness"`
	FinancialData      FinancialDataMetric      `json:"financial_data"`
	HypothesisEvidence HypothesisEvidenceMetric `json:"hypothesis_evidence"`
	Overall            float64                  `json:"overall"`
	Display            float64                  `json:"display"`
}
