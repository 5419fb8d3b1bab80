// Package confidence computes the explainable five-metric research quality
// score and its human-readable gap report. Both entry points are pure
// functions of their inputs.
package confidence

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Fixed metric weights. They sum to 1, so Overall needs clamping only to
// guard against float drift.
const (
	weightQuantity  = 0.15
	weightQuality   = 0.25
	weightFreshness = 0.20
	weightFinancial = 0.20
	weightEvidence  = 0.20
)

// expectedSignals is the fixed signal-count target for a full research run.
const expectedSignals = 15

const (
	tier1Credibility = 0.85
	tier2Credibility = 0.70

	tier1BonusPer = 0.05
	tier1BonusCap = 0.15
	tier2BonusPer = 0.05
	tier2BonusCap = 0.10
)

// Strong hypotheses have accumulated at least this much trigger weight.
const strongHypothesisScore = 1.5

var (
	revenueRe = regexp.MustCompile(`(?i)\b(revenue|annual sales|turnover|ARR)\b`)
	marginRe  = regexp.MustCompile(`(?i)\b(margin|margins|profitability|EBITDA)\b`)
	growthRe  = regexp.MustCompile(`(?i)\b(growth|growing|grew|YoY|year[- ]over[- ]year)\b`)
)

// Score aggregates stage results and surfaced hypotheses into a
// ConfidenceBreakdown. Deterministic for identical inputs.
func Score(stageResults []model.StageResult, hypotheses []model.HypothesisWithEvidence) model.ConfidenceBreakdown {
	return scoreAt(stageResults, hypotheses, time.Now().UTC())
}

// scoreAt is the clock-injected implementation behind Score.
func scoreAt(stageResults []model.StageResult, hypotheses []model.HypothesisWithEvidence, now time.Time) model.ConfidenceBreakdown {
	sources := allSources(stageResults)

	b := model.ConfidenceBreakdown{
		SignalQuantity:     scoreQuantity(sources),
		SourceQuality:      scoreQuality(sources),
		SignalFreshness:    scoreFreshness(sources, now),
		FinancialData:      scoreFinancial(stageResults),
		HypothesisEvidence: scoreEvidence(hypotheses),
	}

	overall := weightQuantity*b.SignalQuantity.Score +
		weightQuality*b.SourceQuality.Score +
		weightFreshness*b.SignalFreshness.Score +
		weightFinancial*b.FinancialData.Score +
		weightEvidence*b.HypothesisEvidence.Score

	b.Overall = clamp01(overall)
	b.Display = b.Overall*4 + 1
	return b
}

func allSources(stageResults []model.StageResult) []model.SourceReference {
	var all []model.SourceReference
	for _, sr := range stageResults {
		all = append(all, sr.Sources...)
	}
	return model.DedupeSources(all)
}

func scoreQuantity(sources []model.SourceReference) model.SignalQuantityMetric {
	found := len(sources)
	return model.SignalQuantityMetric{
		Score:    math.Min(float64(found)/float64(expectedSignals), 1),
		Found:    found,
		Expected: expectedSignals,
	}
}

func scoreQuality(sources []model.SourceReference) model.SourceQualityMetric {
	if len(sources) == 0 {
		return model.SourceQualityMetric{}
	}

	creds := make([]float64, len(sources))
	var tier1, tier2 int
	for i, s := range sources {
		creds[i] = s.CredibilityScore
		switch {
		case s.CredibilityScore >= tier1Credibility:
			tier1++
		case s.CredibilityScore >= tier2Credibility:
			tier2++
		}
	}

	avg, err := stats.Mean(creds)
	if err != nil {
		avg = 0
	}

	bonus := math.Min(float64(tier1)*tier1BonusPer, tier1BonusCap) +
		math.Min(float64(tier2)*tier2BonusPer, tier2BonusCap)

	return model.SourceQualityMetric{
		Score:          math.Min(avg+bonus, 1),
		AvgCredibility: avg,
		Tier1Count:     tier1,
		Tier2Count:     tier2,
	}
}

// precisionBase maps a date-precision class to the freshness value an
// undated source would have earned before the undated discount.
func precisionBase(p model.DatePrecision) float64 {
	switch p {
	case model.DatePrecisionExact:
		return 1.0
	case model.DatePrecisionMonth:
		return 0.8
	case model.DatePrecisionQuarter:
		return 0.6
	case model.DatePrecisionYear:
		return 0.5
	default:
		return 1.0
	}
}

const undatedDiscount = 0.3

func freshnessBucket(age time.Duration) float64 {
	const month = 30 * 24 * time.Hour
	switch {
	case age <= 3*month:
		return 1.0
	case age <= 6*month:
		return 0.7
	case age <= 12*month:
		return 0.4
	default:
		return 0.1
	}
}

func scoreFreshness(sources []model.SourceReference, now time.Time) model.SignalFreshnessMetric {
	if len(sources) == 0 {
		return model.SignalFreshnessMetric{}
	}

	const recentWindow = 3 * 30 * 24 * time.Hour

	contributions := make([]float64, 0, len(sources))
	var recent, undated int
	for _, s := range sources {
		if s.PublishedAt == nil {
			undated++
			contributions = append(contributions, undatedDiscount*precisionBase(s.DatePrecision))
			continue
		}
		age := now.Sub(*s.PublishedAt)
		if age <= recentWindow {
			recent++
		}
		contributions = append(contributions, freshnessBucket(age))
	}

	avg, err := stats.Mean(contributions)
	if err != nil {
		avg = 0
	}

	return model.SignalFreshnessMetric{
		Score:        avg,
		RecentCount:  recent,
		UndatedCount: undated,
	}
}

// Flag weights plus the stage bonus sum to exactly 1.
const (
	revenueWeight       = 0.30
	marginWeight        = 0.25
	growthWeight        = 0.25
	financialStageBonus = 0.20
)

func scoreFinancial(stageResults []model.StageResult) model.FinancialDataMetric {
	var sb strings.Builder
	var stageOK bool
	for _, sr := range stageResults {
		sb.WriteString(sr.RawContent)
		sb.WriteByte('\n')
		for _, src := range sr.Sources {
			sb.WriteString(src.Snippet)
			sb.WriteByte('\n')
		}
		if sr.Stage == model.StageFinancial && sr.Success {
			stageOK = true
		}
	}
	text := sb.String()

	m := model.FinancialDataMetric{
		HasRevenue:     revenueRe.MatchString(text),
		HasMargin:      marginRe.MatchString(text),
		HasGrowth:      growthRe.MatchString(text),
		StageSucceeded: stageOK,
	}

	score := 0.0
	if m.HasRevenue {
		score += revenueWeight
	}
	if m.HasMargin {
		score += marginWeight
	}
	if m.HasGrowth {
		score += growthWeight
	}
	if m.StageSucceeded {
		score += financialStageBonus
	}
	m.Score = math.Min(score, 1)
	return m
}

func scoreEvidence(hypotheses []model.HypothesisWithEvidence) model.HypothesisEvidenceMetric {
	if len(hypotheses) == 0 {
		return model.HypothesisEvidenceMetric{}
	}

	var totalLinks, strong int
	for _, h := range hypotheses {
		totalLinks += len(h.EvidenceChain)
		if h.TotalScore >= strongHypothesisScore {
			strong++
		}
	}

	avgLinks := float64(totalLinks) / float64(len(hypotheses))
	score := 0.5*math.Min(avgLinks/3, 1) + 0.5*(float64(strong)/float64(len(hypotheses)))

	return model.HypothesisEvidenceMetric{
		Score:           score,
		AvgLinks:        avgLinks,
		StrongCount:     strong,
		HypothesisCount: len(hypotheses),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
