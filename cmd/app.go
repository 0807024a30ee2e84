package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/ai/gemini"
	"github.com/spigell/tener-recruiter/internal/db"
	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/filtering"
	"github.com/spigell/tener-recruiter/internal/interview"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/provider/manual"
	"github.com/spigell/tener-recruiter/internal/provider/mock"
	"github.com/spigell/tener-recruiter/internal/provider/unipile"
	"github.com/spigell/tener-recruiter/internal/ratelimit"
	"github.com/spigell/tener-recruiter/internal/secrets"
	"github.com/spigell/tener-recruiter/internal/store"
	"github.com/spigell/tener-recruiter/internal/workflow"
)

// application is everything a command needs, built from the config.
type application struct {
	config   *Config
	logger   *zap.Logger
	store    store.Store
	workflow *workflow.Workflow
	manual   *manual.Channel
	closers  []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// setup builds the logger, reads the config and wires the application.
func setup(ctx context.Context) (*application, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	log.Info("starting the tener", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	a := &application{config: config, logger: log}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *application) wire(ctx context.Context) error {
	cfg := a.config
	deps := workflow.Deps{Logger: a.logger}

	st, err := a.newStore(ctx)
	if err != nil {
		return err
	}
	a.store = st
	deps.Store = st

	var limiter provider.Limiter = ratelimit.NewMemory()
	if cfg.Redis.URL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		limiter = a.redisBacked(rdb, &deps)
	}

	a.manual = manual.New(a.logger)
	deps.Manual = a.manual

	channel, err := a.newChannel()
	if err != nil {
		return err
	}
	if n := cfg.RateLimit.SendsPerHour; n > 0 {
		channel = provider.NewLimited(channel, limiter, cfg.Provider.AccountID, n, time.Hour, a.logger)
	}
	deps.Channel = channel

	rules := matching.NewRules(cfg.Policy.MinYears)
	deps.Verifier = rules
	if cfg.AI != nil && cfg.AI.Enabled {
		if err := a.wireGemini(ctx, rules, &deps); err != nil {
			return err
		}
	}

	var catalog *preresume.Catalog
	if cfg.TemplatesFile != "" {
		catalog, err = preresume.LoadCatalog(cfg.TemplatesFile)
		if err != nil {
			return fmt.Errorf("loading templates: %w", err)
		}
	}
	deps.PreResume = preresume.NewService(catalog, preresume.Options{
		MaxFollowups:   cfg.Policy.PreResume.MaxFollowups,
		FollowupDelays: cfg.Policy.PreResume.FollowupDelays,
	})

	// Interview stays nil unless configured; a typed nil would look set.
	if base := strings.TrimSpace(cfg.Interview.BaseURL); base != "" {
		token, err := secrets.Optional(secrets.Source{
			Name: "interview api token",
			File: cfg.Interview.TokenFile,
			Env:  "INTERVIEW_API_TOKEN",
		})
		if err != nil {
			return err
		}
		client := interview.New(a.logger, base, cfg.Interview.Timeout)
		client.Token = token
		deps.Interview = client
		deps.Assessments = interview.NewAssessmentCache(st, client, a.logger)
	} else {
		a.logger.Info("interview service is not configured, interview passes are skipped")
	}

	wf, err := workflow.New(deps, a.policy())
	if err != nil {
		return fmt.Errorf("creating the workflow: %w", err)
	}
	a.workflow = wf
	return nil
}

func (a *application) newStore(ctx context.Context) (store.Store, error) {
	url := a.config.Database.URL
	if url == "" {
		a.logger.Warn("no database configured, state is kept in memory",
			zap.String("hint", "set database.url or TENER_DATABASE_URL"),
		)
		return store.NewMemory(), nil
	}

	pool, err := db.NewPostgresPool(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	return store.NewPostgres(pool), nil
}

// redisBacked moves event publication, inbound dedupe and the send limiter
// to Redis so several processes share them.
func (a *application) redisBacked(rdb *redis.Client, deps *workflow.Deps) provider.Limiter {
	prefix := a.config.Redis.Prefix
	deps.Publisher = events.NewRedisPublisher(rdb, a.config.Redis.EventsChannel, a.logger)
	deps.Deduper = events.NewRedisDeduper(rdb, prefix+":webhook", events.DefaultDedupeTTL)
	return ratelimit.NewRedis(rdb, prefix+":ratelimit")
}

func (a *application) newChannel() (provider.Channel, error) {
	cfg := a.config.Provider
	switch cfg.Kind {
	case "unipile":
		apiKey, err := secrets.Load(secrets.Source{
			Name: "unipile api key",
			File: cfg.APIKeyFile,
			Env:  "UNIPILE_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set provider.api-key-file or UNIPILE_API_KEY_FILE)", err)
		}
		if strings.TrimSpace(cfg.AccountID) == "" {
			return nil, fmt.Errorf("provider.account-id is required for unipile")
		}
		client := unipile.New(a.logger, apiKey, cfg.AccountID, cfg.Timeout)
		if cfg.BaseURL != "" {
			client.APIURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return client, nil
	case "mock":
		if cfg.Dataset == "" {
			a.logger.Warn("mock provider without dataset, search returns nothing")
			return mock.New(nil), nil
		}
		ch, err := mock.Load(cfg.Dataset)
		if err != nil {
			return nil, fmt.Errorf("loading mock dataset: %w", err)
		}
		return ch, nil
	case "manual":
		return a.manual, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Kind)
	}
}

func (a *application) wireGemini(ctx context.Context, fallback matching.Verifier, deps *workflow.Deps) error {
	cfg := a.config.AI
	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return err
	}

	genLogger := a.logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
	)
	deps.Verifier = gemini.NewVerifier(generator, fallback, genLogger.With(zap.Float64("minimum_fit_score", cfg.MinimumFitScore)), cfg.MinimumFitScore, cfg.Gemini.MaxLogLength)
	deps.Replier = gemini.NewReplier(generator, genLogger, cfg.Gemini.MaxLogLength)
	return nil
}

func (a *application) policy() workflow.Policy {
	cfg := a.config
	policy := workflow.DefaultPolicy()
	policy.ContactAll = cfg.Policy.ContactAll
	policy.RequireResume = cfg.Policy.RequireResume
	policy.ForcedTest = filtering.ForcedTestConfig{
		JobIDs:      cfg.Policy.ForcedTest.JobIDs,
		Identifiers: cfg.Policy.ForcedTest.Identifiers,
	}
	policy.ExcludeFile = cfg.ExcludeFile
	policy.SkipFilters = cfg.Policy.SkipFilters
	policy.AccountID = cfg.Provider.AccountID
	if cfg.Policy.ForcedScore > 0 {
		policy.ForcedScore = cfg.Policy.ForcedScore
	}
	if cfg.Policy.SearchLimit > 0 {
		policy.SearchLimit = cfg.Policy.SearchLimit
	}
	if cfg.Interview.TTLHours > 0 {
		policy.Interview.TTLHours = cfg.Interview.TTLHours
	}
	if cfg.Interview.MaxFollowups > 0 {
		policy.Interview.MaxFollowups = cfg.Interview.MaxFollowups
	}
	if len(cfg.Interview.FollowupDelays) > 0 {
		policy.Interview.FollowupDelays = cfg.Interview.FollowupDelays
	}
	return policy
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
