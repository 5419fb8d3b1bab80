package research

import (
	"fmt"
	"strings"
)

// FormatNotes renders an outcome as the plain-text research payload written
// back to the CRM record.
func FormatNotes(o *Outcome) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Research summary for %s\n", o.Subject.Name)
	fmt.Fprintf(&sb, "Confidence: %.1f/5 (%.0f%%)\n\n", o.Confidence.Display, o.Confidence.Overall*100)

	if len(o.Hypotheses) == 0 {
		sb.WriteString("No pain-point hypotheses crossed the evidence threshold.\n")
	}
	for i, h := range o.Hypotheses {
		fmt.Fprintf(&sb, "%d. %s (score %.2f, %d evidence links)\n", i+1, h.Hypothesis, h.TotalScore, len(h.EvidenceChain))
		for _, q := range h.DiscoveryQuestions {
			fmt.Fprintf(&sb, "   - %s\n", q)
		}
	}

	if len(o.Gaps) > 0 {
		sb.WriteString("\nResearch gaps:\n")
		for _, g := range o.Gaps {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
	}
	return sb.String()
}
