package knowledge

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/notion"
)

// LoadFromNotion queries a Notion database for active pain-point entries and
// compiles them into a catalog. The embedded catalog remains the default;
// this is for teams that maintain the knowledge base in Notion.
func LoadFromNotion(ctx context.Context, client notion.Client, dbID string) (*Catalog, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	pages, err := notion.QueryAll(ctx, client, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: load catalog from notion")
	}

	var entries []model.PainPoint
	for _, p := range pages {
		pp, err := parsePainPointPage(p)
		if err != nil {
			zap.L().Warn("knowledge: skipping malformed pain point page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, pp)
	}

	if len(entries) == 0 {
		return nil, eris.New("knowledge: notion catalog has no usable entries")
	}
	return Compile(entries), nil
}

func parsePainPointPage(p notionapi.Page) (model.PainPoint, error) {
	pp := model.PainPoint{ID: string(p.ID)}

	if prop, ok := p.Properties["Name"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			pp.Name = notion.PlainText(tp.Title)
		}
	}

	if prop, ok := p.Properties["Category"]; ok {
		if sp, ok := prop.(*notionapi.SelectProperty); ok {
			pp.Category = strings.ToLower(sp.Select.Name)
		}
	}

	// Triggers are one "pattern | weight" pair per line.
	if prop, ok := p.Properties["Triggers"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			for _, line := range strings.Split(notion.PlainText(rtp.RichText), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				sig, err := parseTriggerLine(line)
				if err != nil {
					return pp, err
				}
				pp.TriggerSignals = append(pp.TriggerSignals, sig)
			}
		}
	}

	if prop, ok := p.Properties["Hypothesis"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			pp.HypothesisTemplate = notion.PlainText(rtp.RichText)
		}
	}

	if prop, ok := p.Properties["Dimensions"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				pp.Dimensions = append(pp.Dimensions, opt.Name)
			}
		}
	}

	if prop, ok := p.Properties["DiscoveryQuestions"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			for _, line := range strings.Split(notion.PlainText(rtp.RichText), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					pp.DiscoveryQuestions = append(pp.DiscoveryQuestions, line)
				}
			}
		}
	}

	if prop, ok := p.Properties["PrimaryPersonas"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				pp.PrimaryPersonas = append(pp.PrimaryPersonas, opt.Name)
			}
		}
	}

	if prop, ok := p.Properties["Industries"]; ok {
		if msp, ok := prop.(*notionapi.MultiSelectProperty); ok {
			for _, opt := range msp.MultiSelect {
				pp.Industries = append(pp.Industries, opt.Name)
			}
		}
	}

	if pp.Name == "" {
		return pp, eris.New("missing Name property")
	}
	if len(pp.TriggerSignals) == 0 {
		return pp, eris.New("no trigger signals")
	}
	if pp.HypothesisTemplate == "" {
		return pp, eris.New("missing Hypothesis property")
	}
	return pp, nil
}

func parseTriggerLine(line string) (model.TriggerSignal, error) {
	idx := strings.LastIndex(line, "|")
	if idx < 0 {
		return model.TriggerSignal{}, eris.Errorf("trigger line %q missing weight separator", line)
	}
	weight, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
	if err != nil {
		return model.TriggerSignal{}, eris.Wrapf(err, "trigger line %q weight", line)
	}
	return model.TriggerSignal{
		Pattern: strings.TrimSpace(line[:idx]),
		Weight:  weight,
	}, nil
}
