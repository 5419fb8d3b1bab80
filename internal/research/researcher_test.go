package research

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/knowledge"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/tavily"
)

// mockSearch implements tavily.Client with function hooks.
type mockSearch struct {
	searchFn  func(req tavily.SearchRequest) (*tavily.SearchResponse, error)
	extractFn func(urls []string) (*tavily.ExtractResponse, error)
}

func (m *mockSearch) Search(ctx context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	if m.searchFn != nil {
		return m.searchFn(req)
	}
	return &tavily.SearchResponse{Query: req.Query}, nil
}

func (m *mockSearch) Extract(ctx context.Context, urls []string) (*tavily.ExtractResponse, error) {
	if m.extractFn != nil {
		return m.extractFn(urls)
	}
	return &tavily.ExtractResponse{}, nil
}

// mockLLM implements anthropic.Client.
type mockLLM struct {
	createFn func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return m.createFn(req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

func researchCatalog(t *testing.T) *knowledge.Catalog {
	t.Helper()
	cat := knowledge.Compile([]model.PainPoint{{
		ID:       "legacy-systems",
		Name:     "Legacy system drag",
		Category: "all",
		TriggerSignals: []model.TriggerSignal{
			{Pattern: "legacy system", Weight: 0.6},
			{Pattern: "manual process", Weight: 0.5},
		},
		HypothesisTemplate: "{{company}} is slowed by aging systems",
		Dimensions:         []string{"operations"},
	}})
	require.Len(t, cat.Entries, 1)
	return cat
}

func singleStageOpts() pipeline.Options {
	return pipeline.Options{
		Stages: []pipeline.StageDef{{
			Stage:     model.StageIdentity,
			Required:  true,
			Depth:     tavily.DepthBasic,
			Templates: []string{`"{{company}}" overview`},
		}},
	}
}

func TestRun_MergesModelAndRawSignals(t *testing.T) {
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			return &tavily.SearchResponse{Results: []tavily.SearchResult{
				{Title: "Acme profile", URL: "https://news.example/acme", Content: "Acme still runs a legacy system", Score: 0.9},
			}}, nil
		},
	}
	llm := &mockLLM{
		createFn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse(`{
				"industry_category": "manufacturing",
				"signals": [{"description": "Heavy manual process in the warehouse", "relevance": "ops pain"}]
			}`), nil
		},
	}

	r := New(pipeline.NewScheduler(search), llm, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Model:    "claude-haiku-4-5-20251001",
		Pipeline: singleStageOpts(),
	})

	outcome, err := r.Run(context.Background(), model.Subject{ID: "s1", Name: "Acme"})
	require.NoError(t, err)

	// One hypothesis fed by both the model signal and the raw source.
	require.Len(t, outcome.Hypotheses, 1)
	assert.Equal(t, "legacy-systems", outcome.Hypotheses[0].PainPointID)
	assert.InDelta(t, 1.1, outcome.Hypotheses[0].TotalScore, 1e-9)
	assert.Equal(t, "Acme is slowed by aging systems", outcome.Hypotheses[0].Hypothesis)

	assert.Greater(t, outcome.Confidence.Overall, 0.0)
	assert.Greater(t, outcome.CostUSD, 0.0)
	assert.Equal(t, "manufacturing", outcome.Analysis.Category)
}

func TestRun_AnglesTriggerFollowUpPass(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			mu.Lock()
			queries = append(queries, req.Query)
			mu.Unlock()
			return &tavily.SearchResponse{Results: []tavily.SearchResult{
				{Title: "Acme", URL: "https://a.example/" + req.Query, Content: "overview", Score: 0.5},
			}}, nil
		},
	}
	llm := &mockLLM{
		createFn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse(`{
				"industry_category": "manufacturing",
				"angles": ["inventory management", "warehouse automation"],
				"signals": []
			}`), nil
		},
	}

	r := New(pipeline.NewScheduler(search), llm, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Model:    "claude-haiku-4-5-20251001",
		Pipeline: singleStageOpts(),
	})

	outcome, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, queries, "Acme inventory management warehouse automation",
		"composite angle query issued in the follow-up pass")
	assert.Greater(t, len(outcome.Pipeline.StageResults), 1, "follow-up stage results folded into the run")
	assert.Greater(t, outcome.Pipeline.Metadata.CallsUsed, 1)
	assert.Equal(t, int64(1000), outcome.Usage.InputTokens)
	assert.Equal(t, int64(200), outcome.Usage.OutputTokens)
}

func TestRun_NoAnglesSkipsFollowUp(t *testing.T) {
	var calls int
	var mu sync.Mutex
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return &tavily.SearchResponse{}, nil
		},
	}
	llm := &mockLLM{
		createFn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse(`{"industry_category": "manufacturing", "signals": []}`), nil
		},
	}

	r := New(pipeline.NewScheduler(search), llm, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Pipeline: singleStageOpts(),
	})

	outcome, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "only the base pass runs without angles")
	assert.Len(t, outcome.Pipeline.StageResults, 1)
}

func TestRun_ExtractionChargedAtExtractRate(t *testing.T) {
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			return &tavily.SearchResponse{Results: []tavily.SearchResult{
				{Title: "Acme", URL: "https://a.example", Content: "overview", Score: 0.9},
			}}, nil
		},
		extractFn: func(urls []string) (*tavily.ExtractResponse, error) {
			return &tavily.ExtractResponse{
				Results: []tavily.ExtractResult{{URL: urls[0], RawContent: "deep content"}},
			}, nil
		},
	}

	opts := singleStageOpts()
	opts.ExtractTop = 1
	rates := cost.DefaultRates()
	r := New(pipeline.NewScheduler(search), nil, researchCatalog(t), cost.NewCalculator(rates), Options{
		Pipeline: opts,
	})

	outcome, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.NoError(t, err)

	// One search query plus one extracted URL, each at its own rate.
	assert.Equal(t, 2, outcome.Pipeline.Metadata.CallsUsed)
	assert.Equal(t, 1, outcome.Pipeline.Metadata.ExtractedURLs)
	assert.InDelta(t, rates.SearchPerQuery+rates.ExtractPerURL, outcome.CostUSD, 1e-9)
}

func TestRun_RequiredStageFailurePropagates(t *testing.T) {
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			return nil, errors.New("provider down")
		},
	}

	r := New(pipeline.NewScheduler(search), nil, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Pipeline: singleStageOpts(),
	})

	_, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.Error(t, err)
	var rse *pipeline.RequiredStageError
	assert.ErrorAs(t, err, &rse)
}

func TestRun_LLMFailureIsSoft(t *testing.T) {
	search := &mockSearch{
		searchFn: func(req tavily.SearchRequest) (*tavily.SearchResponse, error) {
			return &tavily.SearchResponse{Results: []tavily.SearchResult{
				{Title: "Acme", URL: "https://a.example", Content: "legacy system in use", Score: 0.8},
			}}, nil
		},
	}
	llm := &mockLLM{
		createFn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return nil, errors.New("overloaded")
		},
	}

	r := New(pipeline.NewScheduler(search), llm, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Pipeline: singleStageOpts(),
	})

	outcome, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.NoError(t, err, "LLM failure must not fail the cycle")
	require.Len(t, outcome.Hypotheses, 1, "raw-source matching still runs")
}

func TestRun_MalformedLLMOutputNeverCrashes(t *testing.T) {
	search := &mockSearch{}
	llm := &mockLLM{
		createFn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse(`{"signals": [17, "garbage", {"description": 99}], "angles": false}`), nil
		},
	}

	r := New(pipeline.NewScheduler(search), llm, researchCatalog(t), cost.NewCalculator(cost.DefaultRates()), Options{
		Pipeline: singleStageOpts(),
	})

	outcome, err := r.Run(context.Background(), model.Subject{Name: "Acme"})
	require.NoError(t, err)
	assert.NotNil(t, outcome)
}

func TestFormatNotes(t *testing.T) {
	o := &Outcome{
		Subject: model.Subject{Name: "Acme"},
		Confidence: model.ConfidenceBreakdown{
			Overall: 0.75,
			Display: 4.0,
		},
		Hypotheses: []model.HypothesisWithEvidence{{
			Hypothesis:         "Acme is slowed by aging systems",
			TotalScore:         1.2,
			EvidenceChain:      []model.EvidenceLink{{TriggerPattern: "legacy"}},
			DiscoveryQuestions: []string{"Which systems are oldest?"},
		}},
		Gaps: []string{"No revenue indicators found; financial sizing is unverified"},
	}

	notes := FormatNotes(o)
	assert.Contains(t, notes, "Research summary for Acme")
	assert.Contains(t, notes, "4.0/5")
	assert.Contains(t, notes, "Acme is slowed by aging systems")
	assert.Contains(t, notes, "Which systems are oldest?")
	assert.Contains(t, notes, "Research gaps:")
}
