// Package pipeline implements the budget-constrained, multi-stage
// evidence-gathering scheduler.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/tavily"
)

const (
	errTimeBudget = "time budget exceeded"
	errCallLimit  = "call limit reached"
)

// RequiredStageError aborts a pipeline run when a required stage fails.
type RequiredStageError struct {
	Stage  model.Stage
	Reason string
}

func (e *RequiredStageError) Error() string {
	return fmt.Sprintf("pipeline: required stage %s failed: %s", e.Stage, e.Reason)
}

// Options bound a single pipeline invocation.
type Options struct {
	Stages       []StageDef
	MaxCalls     int
	TimeBudget   time.Duration
	StageTimeout time.Duration
	MaxResults   int
	// Angles are top domain keywords used to build one composite query per
	// stage in angle-aware invocations.
	Angles []string
	// ExtractTop deepens up to N of a stage's best sources via the content
	// extraction provider. Zero disables extraction.
	ExtractTop int
}

func (o Options) withDefaults() Options {
	if len(o.Stages) == 0 {
		o.Stages = DefaultStages()
	}
	if o.MaxCalls <= 0 {
		o.MaxCalls = 20
	}
	if o.TimeBudget <= 0 {
		o.TimeBudget = 2 * time.Minute
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = 30 * time.Second
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 5
	}
	return o
}

// Scheduler executes research stages strictly in declared order under time
// and call budgets. It holds no state across invocations.
type Scheduler struct {
	search tavily.Client
}

// NewScheduler creates a Scheduler backed by the given search/extract client.
func NewScheduler(search tavily.Client) *Scheduler {
	return &Scheduler{search: search}
}

// Run gathers evidence for a subject. It fails only when a required stage
// does not succeed; optional stage failures are recorded in the result.
func (s *Scheduler) Run(ctx context.Context, subject model.Subject, opts Options) (*model.PipelineResult, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("subject", subject.Name))

	start := time.Now()
	bud := newBudget(opts.MaxCalls, opts.TimeBudget, start)
	result := &model.PipelineResult{}

	for _, def := range opts.Stages {
		sr := s.runStage(ctx, def, subject, opts, bud)
		result.StageResults = append(result.StageResults, sr)
		result.Metadata.Queries = append(result.Metadata.Queries, sr.QueriesExecuted...)
		result.Metadata.SourcesFound += len(sr.Sources)
		if sr.Success {
			result.Metadata.StagesCompleted++
		} else {
			result.Metadata.StagesFailed++
		}

		if def.Required && !sr.Success {
			result.Metadata.CallsUsed = int(bud.used())
			result.Metadata.ExtractedURLs = int(bud.extractsUsed())
			result.Metadata.TotalTimeMS = time.Since(start).Milliseconds()
			return result, &RequiredStageError{Stage: def.Stage, Reason: sr.Error}
		}
	}

	result.Metadata.CallsUsed = int(bud.used())
	result.Metadata.ExtractedURLs = int(bud.extractsUsed())
	result.Metadata.TotalTimeMS = time.Since(start).Milliseconds()

	log.Info("pipeline: run complete",
		zap.Int("calls_used", result.Metadata.CallsUsed),
		zap.Int("sources_found", result.Metadata.SourcesFound),
		zap.Int("stages_completed", result.Metadata.StagesCompleted),
		zap.Int("stages_failed", result.Metadata.StagesFailed),
		zap.Int64("total_time_ms", result.Metadata.TotalTimeMS),
	)
	return result, nil
}

func failedStage(stage model.Stage, reason string) model.StageResult {
	return model.StageResult{
		Stage:   stage,
		Success: false,
		Error:   reason,
	}
}

func (s *Scheduler) runStage(ctx context.Context, def StageDef, subject model.Subject, opts Options, bud *budget) model.StageResult {
	log := zap.L().With(zap.String("subject", subject.Name), zap.String("stage", string(def.Stage)))

	// Budget prechecks never consume resources.
	if bud.timeExceeded(time.Now()) {
		log.Warn("pipeline: stage skipped", zap.String("reason", errTimeBudget))
		return failedStage(def.Stage, errTimeBudget)
	}
	if bud.remaining() == 0 {
		log.Warn("pipeline: stage skipped", zap.String("reason", errCallLimit))
		return failedStage(def.Stage, errCallLimit)
	}

	queries := expandQueries(def, subject, opts.Angles)
	stageStart := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, opts.StageTimeout)
	defer cancel()

	var mu sync.Mutex
	var executed []string
	var sources []model.SourceReference
	var snippets []string
	succeeded := 0

	g, gctx := errgroup.WithContext(stageCtx)
	for _, query := range queries {
		if !bud.tryReserve() {
			break
		}
		mu.Lock()
		executed = append(executed, query)
		mu.Unlock()

		g.Go(func() error {
			resp, err := s.search.Search(gctx, tavily.SearchRequest{
				Query:       query,
				SearchDepth: def.Depth,
				MaxResults:  opts.MaxResults,
			})
			if err != nil {
				// Per-query failures never fail the batch.
				log.Warn("pipeline: query failed", zap.String("query", query), zap.Error(err))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			succeeded++
			for _, r := range resp.Results {
				sources = append(sources, toSourceReference(r, subject.Domain))
				if r.Content != "" {
					snippets = append(snippets, r.Content)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sr := model.StageResult{
		Stage:           def.Stage,
		QueriesExecuted: executed,
		Sources:         model.DedupeSources(sources),
		ExecutionTimeMS: time.Since(stageStart).Milliseconds(),
	}

	switch {
	case len(executed) == 0:
		sr.Error = errCallLimit
	case succeeded == 0 && stageCtx.Err() != nil:
		sr.Error = "stage timeout"
	case succeeded == 0:
		sr.Error = "all queries failed"
	default:
		sr.Success = true
	}

	if sr.Success && opts.ExtractTop > 0 {
		snippets = append(snippets, s.extractTop(ctx, sr.Sources, opts.ExtractTop, bud, log)...)
	}
	sr.RawContent = strings.Join(snippets, "\n\n")

	return sr
}

// extractTop fetches raw content for a stage's highest-relevance sources.
// Extraction is best-effort: budget exhaustion or provider errors leave the
// stage result untouched. Each URL consumes one budget call; the provider
// bills extraction per URL, not per batch.
func (s *Scheduler) extractTop(ctx context.Context, sources []model.SourceReference, n int, bud *budget, log *zap.Logger) []string {
	if len(sources) == 0 {
		return nil
	}
	if n > len(sources) {
		n = len(sources)
	}

	ranked := make([]model.SourceReference, len(sources))
	copy(ranked, sources)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	urls := make([]string, 0, n)
	for _, src := range ranked[:n] {
		if !bud.tryReserve() {
			break
		}
		urls = append(urls, src.URL)
	}
	if len(urls) == 0 {
		return nil
	}
	bud.recordExtracts(len(urls))

	resp, err := s.search.Extract(ctx, urls)
	if err != nil {
		log.Warn("pipeline: extract failed", zap.Error(err))
		return nil
	}
	for _, f := range resp.FailedResults {
		log.Warn("pipeline: extract url failed", zap.String("url", f.URL), zap.String("error", f.Error))
	}

	var contents []string
	for _, r := range resp.Results {
		if r.RawContent != "" {
			contents = append(contents, r.RawContent)
		}
	}
	return contents
}
