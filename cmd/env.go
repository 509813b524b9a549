package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orgdesk/enrich-cli/internal/batch"
	"github.com/orgdesk/enrich-cli/internal/consensus"
	"github.com/orgdesk/enrich-cli/internal/enrich"
	"github.com/orgdesk/enrich-cli/internal/fetcher"
	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/resilience"
	"github.com/orgdesk/enrich-cli/internal/source"
	"github.com/orgdesk/enrich-cli/internal/store"
	"github.com/orgdesk/enrich-cli/internal/validate"
	"github.com/orgdesk/enrich-cli/pkg/anthropic"
	"github.com/orgdesk/enrich-cli/pkg/jina"
	"github.com/orgdesk/enrich-cli/pkg/kakao"
	"github.com/orgdesk/enrich-cli/pkg/naver"
)

// env wires the full pipeline from config: store, clients, adapters,
// validator, aggregator, retry controller, and orchestrator.
type env struct {
	Store        store.Store
	Orchestrator *enrich.Orchestrator
	Controller   *resilience.Controller
	Registry     *source.Registry
	Plan         *enrich.Plan
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		HostRate:  rate.Limit(cfg.Fetch.HostRate),
		HostBurst: cfg.Fetch.HostBurst,
	})

	kakaoClient := kakao.NewClient(cfg.Kakao.Key, kakao.WithBaseURL(cfg.Kakao.BaseURL))
	naverClient := naver.NewClient(cfg.Naver.ClientID, cfg.Naver.ClientSecret, naver.WithBaseURL(cfg.Naver.BaseURL))
	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)

	registry := source.NewRegistry(
		source.NewKakaoAdapter(kakaoClient),
		source.NewNaverAdapter(naverClient),
		source.NewHomepageAdapter(httpFetcher),
		source.NewWebSearchAdapter(jinaClient),
		source.NewAIAdapter(anthropicClient, jinaClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.Passes),
	)

	// The fetchability check reuses the rate-limited fetcher with the
	// probe timeout, so validation traffic is throttled like probe traffic.
	probeTimeout := time.Duration(cfg.Enrich.ProbeTimeoutSecs) * time.Second
	urls := validateURLChecker(httpFetcher, probeTimeout)

	plan, err := loadPlan()
	if err != nil {
		st.Close()
		return nil, err
	}

	aggregator := consensus.New(validate.New(urls), sourceOrder(plan))
	controller := resilience.NewController(
		resilience.FromConfig(cfg.Retry.NetworkMaxAttempts, cfg.Retry.NetworkBaseMs,
			cfg.Retry.RateLimitMaxAttempts, cfg.Retry.RateLimitBaseMs),
		resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.CooldownSecs),
	)

	return &env{
		Store:        st,
		Orchestrator: enrich.NewOrchestrator(registry, aggregator, controller, plan),
		Controller:   controller,
		Registry:     registry,
		Plan:         plan,
	}, nil
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

// enrichOne loads (or creates) the organization, runs the orchestrator, and
// persists both the record and the outcome.
func enrichOne(ctx context.Context, env *env, orgID, name, homepage string) (*model.EnrichmentOutcome, error) {
	rec, err := env.Store.GetOrganization(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		if name == "" {
			return nil, eris.Errorf("organization %s not found and no name given", orgID)
		}
		rec = &model.OrganizationRecord{ID: orgID, Name: name, CreatedAt: time.Now().UTC()}
		if homepage != "" {
			rec.SetField(model.FieldHomepage, model.FieldState{
				Value:      homepage,
				Tier:       model.TierLastResort,
				Confidence: model.TierLastResort.Confidence(),
				Source:     "manual",
				UpdatedAt:  time.Now().UTC(),
			})
		}
	} else if err != nil {
		return nil, eris.Wrap(err, "load organization")
	}

	out := env.Orchestrator.Run(ctx, rec)

	if err := env.Store.UpsertOrganization(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "save organization")
	}
	if err := env.Store.AppendOutcome(ctx, out); err != nil {
		return nil, eris.Wrap(err, "save outcome")
	}
	return out, nil
}

func (e *env) newScheduler() *batch.Scheduler {
	return batch.New(e.Store, func(ctx context.Context, rec *model.OrganizationRecord) *model.EnrichmentOutcome {
		return e.Orchestrator.Run(ctx, rec)
	}, batch.Options{
		Concurrency:        cfg.Batch.Concurrency,
		CheckpointEvery:    cfg.Batch.CheckpointEvery,
		CheckpointInterval: time.Duration(cfg.Batch.CheckpointInterval) * time.Second,
	})
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func loadPlan() (*enrich.Plan, error) {
	path := cfg.Enrich.PlanPath
	if path == "" {
		return defaultPlanFromConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		zap.L().Debug("no plan file, using built-in plan", zap.String("path", path))
		return defaultPlanFromConfig(), nil
	}
	return enrich.LoadPlan(path)
}

// defaultPlanFromConfig overlays config values onto the built-in plan.
func defaultPlanFromConfig() *enrich.Plan {
	plan := enrich.DefaultPlan()
	if cfg.Enrich.ConfidenceThreshold > 0 {
		plan.Defaults.ConfidenceThreshold = cfg.Enrich.ConfidenceThreshold
	}
	if len(cfg.Enrich.RequiredFields) > 0 {
		plan.Defaults.RequiredFields = cfg.Enrich.RequiredFields
	}
	if cfg.Enrich.OrgBudgetSecs > 0 {
		plan.Defaults.OrgTimeoutSecs = cfg.Enrich.OrgBudgetSecs
	}
	return plan
}

// validateURLChecker adapts the rate-limited fetcher to the validator's
// fetchability check, bounded by the probe timeout.
func validateURLChecker(f fetcher.Fetcher, timeout time.Duration) validate.URLChecker {
	return validate.URLCheckerFunc(func(ctx context.Context, rawURL string) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_, err := f.Fetch(ctx, rawURL)
		return err
	})
}

// sourceOrder flattens the plan's stages into the consensus priority order.
func sourceOrder(plan *enrich.Plan) []string {
	var order []string
	seen := make(map[string]bool)
	for _, st := range plan.Stages {
		for _, s := range st.Sources {
			if !seen[s] {
				seen[s] = true
				order = append(order, s)
			}
		}
	}
	return order
}
