package model

// TriggerSignal is one weighted pattern that, when matched against evidence
// text, contributes toward surfacing a pain point as a hypothesis.
type TriggerSignal struct {
	Pattern string  `json:"pattern" yaml:"pattern"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// PainPoint is a static knowledge-base entry describing a recognizable
// business-problem pattern. The catalog is read-only after load.
type PainPoint struct {
	ID                 string          `json:"id" yaml:"id"`
	Name               string          `json:"name" yaml:"name"`
	Category           string          `json:"category" yaml:"category"`
	TriggerSignals     []TriggerSignal `json:"trigger_signals" yaml:"trigger_signals"`
	HypothesisTemplate string          `json:"hypothesis_template" yaml:"hypothesis_template"`
	Dimensions         []string        `json:"dimensions" yaml:"dimensions"`
	DiscoveryQuestions []string        `json:"discovery_questions" yaml:"discovery_questions"`
	PrimaryPersonas    []string        `json:"primary_personas" yaml:"primary_personas"`
	SecondaryPersonas  []string        `json:"secondary_personas" yaml:"secondary_personas"`
	Industries         []string        `json:"industries" yaml:"industries"`
}
