package pipeline

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/tavily"
)

// StageDef declares one evidence-gathering stage: its query templates,
// search depth, and whether its failure aborts the whole pipeline.
type StageDef struct {
	Stage    model.Stage
	Required bool
	Depth    tavily.SearchDepth
	// Templates support {{company}}, {{domain}} and {{industry}} placeholders.
	Templates []string
}

// DefaultStages returns the standard research stage order. Only the identity
// stage is required; everything after it degrades gracefully.
func DefaultStages() []StageDef {
	return []StageDef{
		{
			Stage:    model.StageIdentity,
			Required: true,
			Depth:    tavily.DepthBasic,
			Templates: []string{
				`"{{company}}" company overview`,
				`"{{company}}" {{domain}} about`,
			},
		},
		{
			Stage: model.StageNews,
			Depth: tavily.DepthBasic,
			Templates: []string{
				`"{{company}}" news announcement`,
				`"{{company}}" press release {{industry}}`,
			},
		},
		{
			Stage: model.StageFinancial,
			Depth: tavily.DepthAdvanced,
			Templates: []string{
				`"{{company}}" revenue growth funding`,
				`"{{company}}" financial results earnings`,
			},
		},
		{
			Stage: model.StageTechnology,
			Depth: tavily.DepthBasic,
			Templates: []string{
				`"{{company}}" technology stack software systems`,
			},
		},
		{
			Stage: model.StageCompetitive,
			Depth: tavily.DepthBasic,
			Templates: []string{
				`"{{company}}" competitors market position {{industry}}`,
			},
		},
	}
}

// FollowUpStages returns the stages worth re-querying once angle keywords
// are known. Identity never benefits from angles, and nothing here is
// required: a fruitless follow-up pass degrades to the first pass's results.
func FollowUpStages() []StageDef {
	var follow []StageDef
	for _, def := range DefaultStages() {
		switch def.Stage {
		case model.StageNews, model.StageCompetitive:
			def.Required = false
			follow = append(follow, def)
		}
	}
	return follow
}

// expandQueries renders a stage's templates for a subject. When angles are
// provided, one composite query built from the top angle keywords is
// appended after the base queries; base queries are never removed.
func expandQueries(def StageDef, subject model.Subject, angles []string) []string {
	replacer := strings.NewReplacer(
		"{{company}}", subject.Name,
		"{{domain}}", subject.Domain,
		"{{industry}}", subject.Industry,
	)

	queries := make([]string, 0, len(def.Templates)+1)
	for _, tmpl := range def.Templates {
		q := strings.Join(strings.Fields(replacer.Replace(tmpl)), " ")
		if q != "" {
			queries = append(queries, q)
		}
	}

	if len(angles) > 0 {
		top := angles
		if len(top) > 3 {
			top = top[:3]
		}
		composite := strings.Join(strings.Fields(subject.Name+" "+strings.Join(top, " ")), " ")
		queries = append(queries, composite)
	}

	return queries
}
