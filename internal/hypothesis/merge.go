package hypothesis

import (
	"sort"

	"github.com/sells-group/prospect-cli/internal/model"
)

type linkKey struct {
	signalIndex int
	pattern     string
}

// Merge combines two independently-matched hypothesis sets keyed by pain
// point ID. Duplicate (signal index, pattern) evidence links are discarded;
// non-duplicate scores are summed. The merged set follows the same ordering
// and cap rules as Match.
func Merge(a, b []model.HypothesisWithEvidence) []model.HypothesisWithEvidence {
	byID := make(map[string]*model.HypothesisWithEvidence)
	var order []string

	add := func(h model.HypothesisWithEvidence) {
		existing, ok := byID[h.PainPointID]
		if !ok {
			clone := h
			clone.EvidenceChain = append([]model.EvidenceLink(nil), h.EvidenceChain...)
			byID[h.PainPointID] = &clone
			order = append(order, h.PainPointID)
			return
		}

		seen := make(map[linkKey]struct{}, len(existing.EvidenceChain))
		for _, link := range existing.EvidenceChain {
			seen[linkKey{link.SignalIndex, link.TriggerPattern}] = struct{}{}
		}
		for _, link := range h.EvidenceChain {
			key := linkKey{link.SignalIndex, link.TriggerPattern}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			existing.EvidenceChain = append(existing.EvidenceChain, link)
			existing.TotalScore += link.MatchScore
		}
	}

	for _, h := range a {
		add(h)
	}
	for _, h := range b {
		add(h)
	}

	sort.Strings(order)
	merged := make([]model.HypothesisWithEvidence, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}

	sortHypotheses(merged)
	if len(merged) > maxHypotheses {
		merged = merged[:maxHypotheses]
	}
	return merged
}
