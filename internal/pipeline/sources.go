package pipeline

import (
	"net/url"
	"strings"
	"time"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/tavily"
)

// domainCredibility rates well-known source domains. Anything not listed
// falls back to defaultCredibility.
var domainCredibility = map[string]float64{
	"sec.gov":          0.95,
	"reuters.com":      0.92,
	"bloomberg.com":    0.92,
	"wsj.com":          0.90,
	"ft.com":           0.90,
	"forbes.com":       0.80,
	"techcrunch.com":   0.78,
	"businesswire.com": 0.75,
	"prnewswire.com":   0.72,
	"crunchbase.com":   0.72,
	"linkedin.com":     0.70,
	"glassdoor.com":    0.62,
	"reddit.com":       0.40,
}

const (
	defaultCredibility = 0.50
	ownSiteCredibility = 0.60
)

func credibilityFor(domain, subjectDomain string) float64 {
	if c, ok := domainCredibility[domain]; ok {
		return c
	}
	if subjectDomain != "" && domain == subjectDomain {
		return ownSiteCredibility
	}
	return defaultCredibility
}

// toSourceReference converts a raw search result into an immutable
// SourceReference with derived domain, credibility and date precision.
func toSourceReference(r tavily.SearchResult, subjectDomain string) model.SourceReference {
	domain := hostOf(r.URL)
	publishedAt, precision := parsePublishedDate(r.PublishedDate)

	return model.SourceReference{
		URL:              r.URL,
		Title:            r.Title,
		Domain:           domain,
		CredibilityScore: credibilityFor(domain, subjectDomain),
		PublishedAt:      publishedAt,
		DatePrecision:    precision,
		Snippet:          r.Content,
		RelevanceScore:   r.Score,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// parsePublishedDate handles the date formats the search provider emits,
// classifying how precise the parsed value is.
func parsePublishedDate(s string) (*time.Time, model.DatePrecision) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, model.DatePrecisionUnknown
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02", "Mon, 02 Jan 2006 15:04:05 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, model.DatePrecisionExact
		}
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		t = t.UTC()
		return &t, model.DatePrecisionMonth
	}
	if t, err := time.Parse("2006", s); err == nil {
		t = t.UTC()
		return &t, model.DatePrecisionYear
	}
	return nil, model.DatePrecisionUnknown
}
