package research

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/prospect-cli/internal/hypothesis"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Analysis is the fully-typed, defaulted result of parsing the generative
// model's evidence analysis. Downstream code never sees the model's literal
// output shape.
type Analysis struct {
	Category string              `json:"category"`
	Angles   []string            `json:"angles"`
	Signals  []hypothesis.Signal `json:"signals"`
}

const systemPrompt = `You are a B2B sales research analyst. Given raw research
evidence about a company, extract discrete business signals and classify the
company. Respond with a single JSON object and nothing else:
{
  "industry_category": "one of: saas, manufacturing, financial services, healthcare, retail, all",
  "angles": ["up to 3 short keyword phrases naming the most promising research angles"],
  "signals": [
    {
      "description": "one observed fact about the company",
      "relevance": "why this matters for an outreach conversation",
      "source_name": "publication or site the fact came from",
      "source_url": "url if known"
    }
  ]
}`

// buildPrompt formats gathered evidence as the user turn of the analysis call.
func buildPrompt(subject model.Subject, result *model.PipelineResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s\n", subject.Name)
	if subject.Domain != "" {
		fmt.Fprintf(&sb, "Website: %s\n", subject.Domain)
	}
	if subject.Industry != "" {
		fmt.Fprintf(&sb, "Industry: %s\n", subject.Industry)
	}
	sb.WriteString("\nEvidence by research stage:\n")

	for _, sr := range result.StageResults {
		if !sr.Success {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n", sr.Stage)
		for _, src := range sr.Sources {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", src.Title, src.URL, src.Snippet)
		}
		if sr.RawContent != "" {
			sb.WriteString(sr.RawContent)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// parseAnalysis normalizes raw model output into an Analysis. Wrong field
// types are coerced, missing fields get defaults, and invalid array elements
// are dropped. Malformed output yields an empty Analysis, never an error.
func parseAnalysis(raw string) Analysis {
	var out Analysis

	raw = extractJSON(raw)
	if raw == "" {
		return out
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return out
	}

	out.Category = strings.ToLower(strings.TrimSpace(coerceString(doc["industry_category"])))
	out.Angles = coerceStringSlice(doc["angles"])
	if len(out.Angles) > 3 {
		out.Angles = out.Angles[:3]
	}

	items, _ := doc["signals"].([]any)
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sig := hypothesis.Signal{
			Description: strings.TrimSpace(coerceString(fields["description"])),
			Relevance:   strings.TrimSpace(coerceString(fields["relevance"])),
			SourceName:  strings.TrimSpace(coerceString(fields["source_name"])),
			SourceURL:   strings.TrimSpace(coerceString(fields["source_url"])),
		}
		if sig.Description == "" {
			continue
		}
		out.Signals = append(out.Signals, sig)
	}
	return out
}

// extractJSON strips any prose the model wrapped around the JSON object.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func coerceStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(coerceString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
