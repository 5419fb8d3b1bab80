package model

import "time"

// DatePrecision describes how precisely a source's publication date is known.
type DatePrecision string

const (
	DatePrecisionExact   DatePrecision = "exact"
	DatePrecisionMonth   DatePrecision = "month"
	DatePrecisionQuarter DatePrecision = "quarter"
	DatePrecisionYear    DatePrecision = "year"
	DatePrecisionUnknown DatePrecision = "unknown"
)

// SourceReference is a single piece of gathered evidence with provenance.
// Immutable once created; deduplicated by URL within a stage.
type SourceReference struct {
	URL              string        `json:"url"`
	Title            string        `json:"title"`
	Domain           string        `json:"domain"`
	CredibilityScore float64       `json:"credibility_score"`
	PublishedAt      *time.Time    `json:"published_at,omitempty"`
	DatePrecision    DatePrecision `json:"date_precision"`
	Snippet          string        `json:"snippet"`
	RelevanceScore   float64       `json:"relevance_score"`
}

// DedupeSources returns sources with duplicate URLs removed, preserving
// first-seen order.
func DedupeSources(sources []SourceReference) []SourceReference {
	seen := make(map[string]struct{}, len(sources))
	out := make([]SourceReference, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
