package confidence

import (
	"fmt"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Gap-rule thresholds. Each rule fires independently of the others.
const (
	lowQuantityScore  = 0.5
	lowFreshnessScore = 0.4
)

// Gaps renders the deterministic gap report for a breakdown. Each sub-metric
// below its threshold contributes one fixed human-readable line.
func Gaps(b model.ConfidenceBreakdown, subject model.Subject, stageResults []model.StageResult) []string {
	var gaps []string

	if b.SignalQuantity.Score < lowQuantityScore {
		gaps = append(gaps, fmt.Sprintf(
			"Only %d of %d expected signals found for %s; consider broadening search queries",
			b.SignalQuantity.Found, b.SignalQuantity.Expected, subject.Name))
	}

	if b.SourceQuality.Tier1Count == 0 {
		gaps = append(gaps, "No tier-1 sources (credibility >= 0.85); verify key claims against primary sources")
	}

	if b.SignalFreshness.RecentCount == 0 {
		gaps = append(gaps, "No signals from the last 3 months; findings may be stale")
	} else if b.SignalFreshness.Score < lowFreshnessScore {
		gaps = append(gaps, "Most signals are older than a year; recent developments may be missed")
	}

	if !b.FinancialData.HasRevenue {
		gaps = append(gaps, "No revenue indicators found; financial sizing is unverified")
	}
	if fin := stageResultFor(stageResults, model.StageFinancial); fin != nil && !fin.Success {
		gaps = append(gaps, "Financial research stage failed; financial picture is incomplete")
	}

	if b.HypothesisEvidence.HypothesisCount == 0 {
		gaps = append(gaps, "No hypotheses crossed the evidence threshold; pain-point fit is unknown")
	} else if b.HypothesisEvidence.StrongCount == 0 {
		gaps = append(gaps, "No hypothesis has strong supporting evidence (score >= 1.5)")
	}

	return gaps
}

func stageResultFor(stageResults []model.StageResult, stage model.Stage) *model.StageResult {
	for i := range stageResults {
		if stageResults[i].Stage == stage {
			return &stageResults[i]
		}
	}
	return nil
}
