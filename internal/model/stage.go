package model

// Stage identifies one bounded unit of evidence-gathering work.
type Stage string

const (
	StageIdentity    Stage = "identity"
	StageNews        Stage = "news"
	StageFinancial   Stage = "financial"
	StageTechnology  Stage = "technology"
	StageCompetitive Stage = "competitive"
)

// StageResult records the outcome of a single stage execution. Created once
// per execution and never mutated after.
type StageResult struct {
	Stage           Stage             `json:"stage"`
	QueriesExecuted []string          `json:"queries_executed"`
	Sources         []SourceReference `json:"sources"`
	RawContent      string            `json:"raw_content"`
	ExecutionTimeMS int64             `json:"execution_time_ms"`
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
}

// PipelineMetadata summarizes resource consumption across a pipeline run.
type PipelineMetadata struct {
	CallsUsed       int      `json:"calls_used"`
	ExtractedURLs   int      `json:"extracted_urls"`
	SourcesFound    int      `json:"sources_found"`
	StagesCompleted int      `json:"stages_completed"`
	StagesFailed    int      `json:"stages_failed"`
	TotalTimeMS     int64    `json:"total_time_ms"`
	Queries         []string `json:"queries"`
}

// PipelineResult is the full output of one scheduler invocation for a subject.
type PipelineResult struct {
	StageResults []StageResult    `json:"stage_results"`
	Metadata     PipelineMetadata `json:"metadata"`
}

// StageResultFor returns the result for the named stage, or nil.
func (p *PipelineResult) StageResultFor(stage Stage) *StageResult {
	for i := range p.StageResults {
		if p.StageResults[i].Stage == stage {
			return &p.StageResults[i]
		}
	}
	return nil
}

// AllSources returns every source across all stage results, deduplicated by URL.
func (p *PipelineResult) AllSources() []SourceReference {
	var all []SourceReference
	for _, sr := range p.StageResults {
		all = append(all, sr.Sources...)
	}
	return DedupeSources(all)
}
