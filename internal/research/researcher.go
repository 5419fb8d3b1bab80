// Package research runs one full subject-cycle: evidence gathering, signal
// extraction, hypothesis matching, and confidence scoring.
package research

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/confidence"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/hypothesis"
	"github.com/sells-group/prospect-cli/internal/knowledge"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

// Options configures a Researcher.
type Options struct {
	Model     string
	MaxTokens int64
	Pipeline  pipeline.Options
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = "claude-haiku-4-5-20251001"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	return o
}

// Outcome is the full result of researching one subject.
type Outcome struct {
	Subject    model.Subject                  `json:"subject"`
	Pipeline   *model.PipelineResult          `json:"pipeline"`
	Analysis   Analysis                       `json:"analysis"`
	Hypotheses []model.HypothesisWithEvidence `json:"hypotheses"`
	Confidence model.ConfidenceBreakdown      `json:"confidence"`
	Gaps       []string                       `json:"gaps,omitempty"`
	Usage      anthropic.TokenUsage           `json:"usage"`
	CostUSD    float64                        `json:"cost_usd"`
	DurationMS int64                          `json:"duration_ms"`
}

// Researcher orchestrates a single subject-cycle. Safe for sequential reuse
// across subjects; it holds no per-subject state.
type Researcher struct {
	scheduler *pipeline.Scheduler
	llm       anthropic.Client
	catalog   *knowledge.Catalog
	calc      *cost.Calculator
	opts      Options
}

// New creates a Researcher. llm may be nil, in which case hypothesis
// matching runs on raw sources only.
func New(scheduler *pipeline.Scheduler, llm anthropic.Client, catalog *knowledge.Catalog, calc *cost.Calculator, opts Options) *Researcher {
	return &Researcher{
		scheduler: scheduler,
		llm:       llm,
		catalog:   catalog,
		calc:      calc,
		opts:      opts.withDefaults(),
	}
}

// Run researches one subject. It fails only on required-stage failure or
// context cancellation; generative-provider problems degrade to raw-source
// matching instead of failing the cycle.
func (r *Researcher) Run(ctx context.Context, subject model.Subject) (*Outcome, error) {
	start := time.Now()
	log := zap.L().With(zap.String("subject", subject.Name))

	result, err := r.scheduler.Run(ctx, subject, r.opts.Pipeline)
	if err != nil {
		return nil, err
	}

	totalCost := r.pipelineCost(result.Metadata)

	var usage anthropic.TokenUsage
	analysis := r.analyze(ctx, subject, result, &totalCost, &usage, log)

	if len(analysis.Angles) > 0 {
		r.followUp(ctx, subject, analysis.Angles, result, &totalCost, log)
	}

	category := analysis.Category
	if category == "" {
		category = subject.Industry
	}
	industryLabel := subject.Industry
	if industryLabel == "" {
		industryLabel = analysis.Category
	}

	modelHyps := hypothesis.Match(analysis.Signals, category, subject.Name, industryLabel, r.catalog)
	rawSignals := hypothesis.SignalsFromSources(result.AllSources())
	rawHyps := hypothesis.Match(rawSignals, category, subject.Name, industryLabel, r.catalog)
	merged := hypothesis.Merge(modelHyps, rawHyps)

	breakdown := confidence.Score(result.StageResults, merged)
	gaps := confidence.Gaps(breakdown, subject, result.StageResults)

	outcome := &Outcome{
		Subject:    subject,
		Pipeline:   result,
		Analysis:   analysis,
		Hypotheses: merged,
		Confidence: breakdown,
		Gaps:       gaps,
		Usage:      usage,
		CostUSD:    totalCost,
		DurationMS: time.Since(start).Milliseconds(),
	}

	log.Info("research: subject-cycle complete",
		zap.Int("sources", result.Metadata.SourcesFound),
		zap.Int("hypotheses", len(merged)),
		zap.Float64("confidence", breakdown.Overall),
		zap.Float64("cost_usd", totalCost),
	)
	return outcome, nil
}

// followUpMaxCalls caps the angle-driven second pass so it can never rival
// the first pass's budget.
const followUpMaxCalls = 4

// followUp re-runs the angle-sensitive stages with composite queries built
// from the extracted angles and folds the extra evidence into result.
func (r *Researcher) followUp(ctx context.Context, subject model.Subject, angles []string, result *model.PipelineResult, totalCost *float64, log *zap.Logger) {
	opts := r.opts.Pipeline
	opts.Stages = pipeline.FollowUpStages()
	opts.Angles = angles
	opts.MaxCalls = followUpMaxCalls

	follow, err := r.scheduler.Run(ctx, subject, opts)
	if err != nil {
		log.Warn("research: angle follow-up failed", zap.Error(err))
		return
	}

	result.StageResults = append(result.StageResults, follow.StageResults...)
	result.Metadata.CallsUsed += follow.Metadata.CallsUsed
	result.Metadata.ExtractedURLs += follow.Metadata.ExtractedURLs
	result.Metadata.SourcesFound += follow.Metadata.SourcesFound
	result.Metadata.StagesCompleted += follow.Metadata.StagesCompleted
	result.Metadata.StagesFailed += follow.Metadata.StagesFailed
	result.Metadata.TotalTimeMS += follow.Metadata.TotalTimeMS
	result.Metadata.Queries = append(result.Metadata.Queries, follow.Metadata.Queries...)
	*totalCost += r.pipelineCost(follow.Metadata)

	log.Info("research: angle follow-up complete",
		zap.Strings("angles", angles),
		zap.Int("sources", follow.Metadata.SourcesFound),
	)
}

// pipelineCost prices one scheduler invocation: searches per query, content
// extraction per URL.
func (r *Researcher) pipelineCost(meta model.PipelineMetadata) float64 {
	searches := meta.CallsUsed - meta.ExtractedURLs
	if searches < 0 {
		searches = 0
	}
	return r.calc.Searches(searches) + r.calc.Extracts(meta.ExtractedURLs)
}

// analyze runs the generative signal-extraction pass. Any failure here is
// soft: it logs a warning and returns an empty Analysis.
func (r *Researcher) analyze(ctx context.Context, subject model.Subject, result *model.PipelineResult, totalCost *float64, usage *anthropic.TokenUsage, log *zap.Logger) Analysis {
	if r.llm == nil {
		return Analysis{}
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(subject, result)},
		},
	})
	if err != nil {
		log.Warn("research: signal extraction failed, matching raw sources only", zap.Error(err))
		return Analysis{}
	}

	usage.Add(resp.Usage)
	*totalCost += r.calc.LLM(r.opts.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	resp.Usage.LogCost(r.opts.Model, "signal_extraction")

	return parseAnalysis(resp.FirstText())
}
