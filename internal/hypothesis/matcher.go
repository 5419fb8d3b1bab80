// Package hypothesis scores the pain-point knowledge base against gathered
// evidence and surfaces subject-specific hypotheses.
package hypothesis

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/prospect-cli/internal/knowledge"
	"github.com/sells-group/prospect-cli/internal/model"
)

const (
	// surfaceThreshold is the minimum accumulated trigger weight before a
	// pain point becomes a hypothesis.
	surfaceThreshold = 0.5
	// maxHypotheses caps how many hypotheses are surfaced per run.
	maxHypotheses = 5
)

// Signal is a normalized fact+source tuple used for matching.
type Signal struct {
	Description string `json:"description"`
	Relevance   string `json:"relevance"`
	SourceName  string `json:"source_name"`
	SourceURL   string `json:"source_url,omitempty"`
}

// matchableText concatenates the fields trigger patterns are tested against.
func (s Signal) matchableText() string {
	return strings.TrimSpace(s.Description + " " + s.Relevance + " " + s.SourceName)
}

// SignalsFromSources converts raw pipeline sources into matchable signals.
func SignalsFromSources(sources []model.SourceReference) []Signal {
	signals := make([]Signal, 0, len(sources))
	for _, src := range sources {
		signals = append(signals, Signal{
			Description: src.Snippet,
			SourceName:  src.Title,
			SourceURL:   src.URL,
		})
	}
	return signals
}

// Match tests every category-applicable pain point against every signal.
// Each pattern match appends an evidence link and adds the configured weight
// to the pain point's running total; a (signal, pattern) pair is counted at
// most once. Pain points surface only with total score >= 0.5 and at least
// one link, sorted descending by score and truncated to the top five.
func Match(signals []Signal, category, subjectName, industryLabel string, catalog *knowledge.Catalog) []model.HypothesisWithEvidence {
	now := time.Now().UTC()
	var surfaced []model.HypothesisWithEvidence

	for _, pp := range catalog.ForCategory(category) {
		var links []model.EvidenceLink
		total := 0.0

		for sigIdx, sig := range signals {
			text := sig.matchableText()
			if text == "" {
				continue
			}
			for patIdx, re := range pp.Patterns {
				matched := re.FindString(text)
				if matched == "" {
					continue
				}
				weight := pp.TriggerSignals[patIdx].Weight
				links = append(links, model.EvidenceLink{
					SignalIndex:    sigIdx,
					TriggerPattern: pp.TriggerSignals[patIdx].Pattern,
					MatchScore:     weight,
					MatchedText:    matched,
					SourceURL:      sig.SourceURL,
				})
				total += weight
			}
		}

		if total < surfaceThreshold || len(links) == 0 {
			continue
		}

		surfaced = append(surfaced, model.HypothesisWithEvidence{
			PainPointID:        pp.ID,
			PainPointName:      pp.Name,
			Hypothesis:         renderTemplate(pp.PainPoint, subjectName, industryLabel),
			TotalScore:         total,
			EvidenceChain:      links,
			DiscoveryQuestions: pp.DiscoveryQuestions,
			PrimaryPersonas:    pp.PrimaryPersonas,
			GeneratedAt:        now,
		})
	}

	sortHypotheses(surfaced)
	if len(surfaced) > maxHypotheses {
		surfaced = surfaced[:maxHypotheses]
	}
	return surfaced
}

// sortHypotheses orders by descending score with pain point ID as the
// deterministic tie-break.
func sortHypotheses(hs []model.HypothesisWithEvidence) {
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].TotalScore != hs[j].TotalScore {
			return hs[i].TotalScore > hs[j].TotalScore
		}
		return hs[i].PainPointID < hs[j].PainPointID
	})
}

// renderTemplate substitutes the subject name, industry label and the pain
// point's first declared dimension into the hypothesis template.
func renderTemplate(pp model.PainPoint, subjectName, industryLabel string) string {
	dimension := ""
	if len(pp.Dimensions) > 0 {
		dimension = pp.Dimensions[0]
	}
	if industryLabel == "" {
		industryLabel = "its"
	}
	rendered := strings.NewReplacer(
		"{{company}}", subjectName,
		"{{industry}}", industryLabel,
		"{{dimension}}", dimension,
	).Replace(pp.HypothesisTemplate)
	return strings.Join(strings.Fields(rendered), " ")
}
