package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/workhuntr/internal/ai"
	"github.com/kiranshivaraju/workhuntr/internal/cache"
	"github.com/kiranshivaraju/workhuntr/internal/classify"
	"github.com/kiranshivaraju/workhuntr/internal/config"
	"github.com/kiranshivaraju/workhuntr/internal/enrich"
	"github.com/kiranshivaraju/workhuntr/internal/match"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
	"github.com/kiranshivaraju/workhuntr/internal/pipeline"
	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/internal/scheduler"
	"github.com/kiranshivaraju/workhuntr/internal/search"
	"github.com/kiranshivaraju/workhuntr/internal/store"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// localUserID owns every row written in --sqlite mode unless --user is given.
const localUserID = "00000000-0000-0000-0000-000000000001"

// options holds the persistent flags shared by all subcommands.
type options struct {
	verbose bool

	sqlitePath string
	userID     string

	// Local-mode stand-ins for the preferences, billing and resume tables.
	tier        string
	roles       []string
	workTypes   []string
	zip         string
	companyURLs []string
	searchMode  string
	resumePath  string

	// Set by discover to replace the built queries.
	queries   []string
	targetATS string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "hunter",
		Short:         "Discover and score job postings",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	f := root.PersistentFlags()
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&opts.sqlitePath, "sqlite", "", "run locally against this SQLite file instead of Postgres and Redis")
	f.StringVar(&opts.userID, "user", localUserID, "user id to run the pipeline for")
	f.StringVar(&opts.tier, "tier", quota.TierFree, "subscription tier in --sqlite mode (free, pro, premium)")
	f.StringSliceVar(&opts.roles, "roles", nil, "target roles in --sqlite mode")
	f.StringSliceVar(&opts.workTypes, "work-type", nil, "work types in --sqlite mode (remote, hybrid, in-person)")
	f.StringVar(&opts.zip, "zip", "", "location zip code in --sqlite mode")
	f.StringSliceVar(&opts.companyURLs, "company-url", nil, "target company career sites in --sqlite mode")
	f.StringVar(&opts.searchMode, "search-mode", "", "combined, urls_only or search_only in --sqlite mode")
	f.StringVar(&opts.resumePath, "resume", "", "resume text file in --sqlite mode")

	root.AddCommand(
		newDiscoverCmd(opts),
		newScoreCmd(opts),
		newEnrichCmd(opts),
		newImportCmd(opts),
		newJobsCmd(opts),
		newQueriesCmd(opts),
		newClassifyCmd(),
		newServeSweepCmd(opts),
	)
	return root
}

func (o *options) user() (uuid.UUID, error) {
	id, err := uuid.Parse(o.userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--user must be a valid UUID: %w", err)
	}
	return id, nil
}

func (o *options) preferences() models.UserPreferences {
	p := models.UserPreferences{
		TargetRoles:       o.roles,
		WorkTypes:         models.NormalizeWorkTypes(o.workTypes),
		TargetCompanyURLs: o.companyURLs,
		SearchMode:        o.searchMode,
		AutoDiscovery:     true,
	}
	if o.zip != "" {
		p.LocationZip = &o.zip
	}
	return p
}

// app is the assembled pipeline for one CLI invocation.
type app struct {
	cfg    *config.Config
	coord  *pipeline.Coordinator
	runner *pipeline.Runner
	jobs   store.JobStore
	users  scheduler.UserLister
	close  func()
}

// sources are the readers and stores the pipeline is assembled from.
type sources struct {
	prefs   pipeline.PreferencesReader
	resumes pipeline.ResumeReader
	tiers   quota.TierReader
	jobs    store.JobStore
	runs    pipeline.RunStore
}

func (o *options) openApp(ctx context.Context) (*app, error) {
	if o.sqlitePath != "" {
		return o.openLocal(ctx)
	}
	return o.openRemote(ctx)
}

// openLocal backs the pipeline with SQLite and flag-supplied preferences.
// Without Redis the weekly quota is not enforced and search pages are not cached.
func (o *options) openLocal(ctx context.Context) (*app, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	userID, err := o.user()
	if err != nil {
		return nil, err
	}

	db, err := store.OpenSQLite(ctx, o.sqlitePath)
	if err != nil {
		return nil, err
	}

	coord, runner, err := o.assemble(cfg, sources{
		prefs:   flagPreferences{prefs: o.preferences()},
		resumes: resumeFile(o.resumePath),
		tiers:   fixedTier(o.tier),
		jobs:    db,
		runs:    db,
	}, nil, nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, coord: coord, runner: runner, jobs: db, users: singleUser(userID), close: func() { db.Close() }}, nil
}

// openRemote connects to the same Postgres and Redis as the server.
func (o *options) openRemote(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}

	pg := store.NewPostgresStore(pool)
	coord, runner, err := o.assemble(cfg, sources{
		prefs:   pg,
		resumes: pg,
		tiers:   pg,
		jobs:    pg,
		runs:    pg,
	}, redisCache, metrics.New())
	if err != nil {
		redisCache.Close()
		pool.Close()
		return nil, err
	}

	return &app{cfg: cfg, coord: coord, runner: runner, jobs: pg, users: pg, close: func() {
		redisCache.Close()
		pool.Close()
	}}, nil
}

// assemble wires the coordinator and runner. c may be nil.
func (o *options) assemble(cfg *config.Config, src sources, c cache.Cache, m *metrics.Metrics) (*pipeline.Coordinator, *pipeline.Runner, error) {
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("create AI provider: %w", err)
	}
	searchClient, err := search.NewClient(cfg.Search)
	if err != nil {
		return nil, nil, fmt.Errorf("create search client: %w", err)
	}
	if !cfg.Search.HasCredentials() {
		slog.Warn("search provider credentials missing; discovery will fail",
			"search_provider", cfg.Search.Provider)
	}
	if c != nil {
		searchClient = search.NewCachedClient(searchClient, c, cfg.Search.CacheTTL)
	}

	pipelineOpts := pipeline.OptionsFromConfig(cfg.Pipeline, cfg.Search, true)
	pipelineOpts.Queries = o.queries
	pipelineOpts.TargetATS = o.targetATS

	gate := quota.NewGate(src.tiers, c)
	coord := pipeline.NewCoordinator(pipeline.Deps{
		Preferences:  src.prefs,
		Resumes:      src.resumes,
		Gate:         gate,
		Search:       searchClient,
		Limiter:      pipeline.NewSearchLimiter(cfg.Search.MinInterval),
		Deduplicator: classify.Deduplicator{ExcludeKeywords: cfg.Pipeline.ExcludeKeywords},
		Enricher:     enrich.NewExtractor(provider, cfg.AI.InferenceTimeout, m),
		Scorer:       match.NewScorer(provider, cfg.AI.InferenceTimeout, match.Heuristic{}, cfg.Pipeline.ResumeMaxBytes, m),
		Jobs:         src.jobs,
		Metrics:      m,
	}, pipelineOpts)

	return coord, pipeline.NewRunner(coord, gate, src.runs, c, m, cfg.Pipeline.RunTimeout), nil
}
