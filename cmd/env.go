package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/bulk"
	"github.com/sells-group/prospect-cli/internal/cost"
	"github.com/sells-group/prospect-cli/internal/knowledge"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/notion"
	sfpkg "github.com/sells-group/prospect-cli/pkg/salesforce"
	"github.com/sells-group/prospect-cli/pkg/tavily"
)

// researchEnv holds the initialized store, clients, and researcher shared by
// the research/bulk/serve commands.
type researchEnv struct {
	Store      store.Store
	Researcher *research.Researcher
	Salesforce sfpkg.Client // nil when not configured
	Writer     bulk.ResultWriter
}

// Close releases resources held by the environment.
func (e *researchEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, all API clients, the pain-point catalog, and
// the researcher. Callers should defer env.Close().
func initEnv(ctx context.Context) (*researchEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	searchClient := tavily.NewClient(cfg.Tavily.Key,
		tavily.WithBaseURL(cfg.Tavily.BaseURL),
		tavily.WithRateLimit(cfg.Tavily.RPS),
		tavily.WithRetry(resilience.DefaultRetryConfig()),
	)
	llmClient := anthropic.NewClient(cfg.Anthropic.Key)

	catalog, err := loadCatalog(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	rates := cost.DefaultRates()
	if cfg.Pricing.SearchPerQuery > 0 {
		rates.SearchPerQuery = cfg.Pricing.SearchPerQuery
	}
	if cfg.Pricing.ExtractPerURL > 0 {
		rates.ExtractPerURL = cfg.Pricing.ExtractPerURL
	}

	researcher := research.New(
		pipeline.NewScheduler(searchClient),
		llmClient,
		catalog,
		cost.NewCalculator(rates),
		research.Options{
			Model:     cfg.Anthropic.Model,
			MaxTokens: int64(cfg.Anthropic.MaxTokens),
			Pipeline: pipeline.Options{
				MaxCalls:     cfg.Pipeline.MaxCalls,
				TimeBudget:   time.Duration(cfg.Pipeline.TimeBudgetSecs) * time.Second,
				StageTimeout: time.Duration(cfg.Pipeline.StageTimeoutSecs) * time.Second,
				MaxResults:   cfg.Pipeline.MaxResults,
			},
		},
	)

	env := &researchEnv{Store: st, Researcher: researcher}

	// Salesforce is optional: without it, results stay in the local store.
	if cfg.Salesforce.ClientID != "" {
		sfClient, err := initSalesforce()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		env.Salesforce = sfClient
		env.Writer = bulk.NewCRMWriter(sfClient, cfg.Salesforce.WriteField)
	} else {
		zap.L().Debug("salesforce not configured, CRM write-back disabled")
	}

	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// loadCatalog prefers the Notion registry when configured and falls back to
// the embedded catalog.
func loadCatalog(ctx context.Context) (*knowledge.Catalog, error) {
	if cfg.Notion.Token != "" && cfg.Notion.CatalogDB != "" {
		catalog, err := knowledge.LoadFromNotion(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.CatalogDB)
		if err != nil {
			return nil, eris.Wrap(err, "load pain-point catalog from notion")
		}
		zap.L().Info("pain-point catalog loaded from notion", zap.Int("entries", len(catalog.Entries)))
		return catalog, nil
	}

	catalog, err := knowledge.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load embedded pain-point catalog")
	}
	return catalog, nil
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RPS)), nil
}
