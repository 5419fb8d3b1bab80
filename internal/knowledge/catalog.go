// Package knowledge loads and validates the pain-point catalog that drives
// evidence-to-hypothesis matching.
package knowledge

import (
	_ "embed"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/model"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// CompiledPainPoint pairs a catalog entry with its precompiled trigger
// patterns. Patterns[i] corresponds to TriggerSignals[i].
type CompiledPainPoint struct {
	model.PainPoint
	Patterns []*regexp.Regexp
}

// Catalog is the read-only pain-point knowledge base.
type Catalog struct {
	Entries []CompiledPainPoint
}

// ForCategory returns the entries applicable to the given category. Entries
// with category "all" always apply.
func (c *Catalog) ForCategory(category string) []CompiledPainPoint {
	category = strings.ToLower(strings.TrimSpace(category))
	var out []CompiledPainPoint
	for _, e := range c.Entries {
		if e.Category == "all" || strings.ToLower(e.Category) == category || category == "" {
			out = append(out, e)
		}
	}
	return out
}

// Load parses and compiles the embedded catalog.
func Load() (*Catalog, error) {
	return parse(embeddedCatalog)
}

// LoadFrom parses and compiles a catalog from raw YAML, used when the
// catalog comes from an external registry instead of the embedded copy.
func LoadFrom(data []byte) (*Catalog, error) {
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var doc struct {
		PainPoints []model.PainPoint `yaml:"pain_points"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "knowledge: parse catalog")
	}
	if len(doc.PainPoints) == 0 {
		return nil, eris.New("knowledge: catalog is empty")
	}
	return Compile(doc.PainPoints), nil
}

// Compile validates and compiles every entry's trigger patterns. An entry
// with any invalid pattern is skipped with a warning; it never fails the
// rest of the catalog.
func Compile(entries []model.PainPoint) *Catalog {
	cat := &Catalog{}
	for _, pp := range entries {
		compiled, err := compileEntry(pp)
		if err != nil {
			zap.L().Warn("knowledge: skipping pain point with invalid trigger pattern",
				zap.String("pain_point_id", pp.ID),
				zap.Error(err),
			)
			continue
		}
		cat.Entries = append(cat.Entries, compiled)
	}
	return cat
}

func compileEntry(pp model.PainPoint) (CompiledPainPoint, error) {
	patterns := make([]*regexp.Regexp, len(pp.TriggerSignals))
	for i, sig := range pp.TriggerSignals {
		re, err := regexp.Compile("(?i)" + sig.Pattern)
		if err != nil {
			return CompiledPainPoint{}, eris.Wrapf(err, "compile pattern %q", sig.Pattern)
		}
		patterns[i] = re
	}
	return CompiledPainPoint{PainPoint: pp, Patterns: patterns}, nil
}
