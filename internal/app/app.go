package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ideadigest/internal/config"
	"ideadigest/internal/digest"
	"ideadigest/internal/infrastructure/llm"
	"ideadigest/internal/infrastructure/scheduler"
	"ideadigest/internal/infrastructure/source"
	"ideadigest/internal/infrastructure/storage"
	"ideadigest/internal/infrastructure/telegram"
	"ideadigest/internal/logging"
	"ideadigest/internal/ports"
	"ideadigest/internal/usecase"
)

// Application wires configuration to adapters and use cases.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	store    ports.Storage
	notifier ports.Notifier
	registry *source.Registry
	pipeline *usecase.Pipeline
	digest   *digest.Generator
	closer   io.Closer
}

// New builds a runnable application instance. The storage backend,
// sources and optional clients all come from configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, closer, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Fetch.Timeout()}
	registry := source.NewRegistry()
	registry.Register(source.NewHackerNews(httpClient, ""))
	registry.Register(source.NewGitHubTrending(httpClient, "", "", cfg.Sources.GitHub.Since, cfg.Fetch.Delay()))
	registry.Register(source.NewProductHunt(httpClient, cfg.Sources.ProductHunt.Token, "", "", cfg.Fetch.Delay()))

	var insight ports.InsightClient
	if cfg.Groq.APIKey != "" {
		insight = llm.NewGroqClient(cfg.Groq.APIKey, cfg.Groq.Model, "")
	}

	var notifier ports.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "")
	}

	generator := digest.NewGenerator(store, insight, digest.Config{
		Limit:            cfg.Digest.Limit,
		Days:             cfg.Digest.Days,
		OutputDir:        cfg.Digest.OutputDir,
		IncludeUngrouped: true,
	}, baseLogger.With("component", "digest"))

	app := &Application{
		cfg:      cfg,
		log:      baseLogger,
		store:    store,
		notifier: notifier,
		registry: registry,
		digest:   generator,
		closer:   closer,
	}

	app.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sources:       app.enabledSources(),
		Storage:       store,
		Digest:        generator,
		Notifier:      notifier,
		Themes:        cfg.ScoringThemes(),
		Logger:        baseLogger.With("component", "pipeline"),
		FetchLimit:    cfg.Fetch.LimitPerSource,
		RetentionDays: cfg.Retention.Days,
		MaxRecords:    cfg.Retention.MaxRecords,
		AutoCleanup:   cfg.Retention.AutoCleanup,
	})

	return app, nil
}

func openStorage(cfg config.Config) (ports.Storage, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil, nil
	case config.BackendSQLite:
		store, err := storage.OpenSQLite(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendPostgres:
		store, err := storage.OpenPostgres(cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendAirtable:
		at := cfg.Storage.Airtable
		return storage.NewAirtable(at.APIKey, at.BaseID, at.Table, "", cfg.Fetch.Timeout()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// enabledSources resolves the configured source list; an empty list
// enables every registered source.
func (a *Application) enabledSources() []ports.Source {
	names := a.cfg.Sources.Enabled
	if len(names) == 0 {
		names = a.registry.Names()
	}

	var sources []ports.Source
	for _, name := range names {
		src, err := a.registry.Resolve(name)
		if err != nil {
			a.log.Warn("skipping unknown source", "source", name)
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context, opts usecase.Options) usecase.RunSummary {
	return a.pipeline.Run(ctx, opts)
}

// GenerateDigest renders a digest for the given date and delivers it
// when a notifier is configured.
func (a *Application) GenerateDigest(ctx context.Context, date time.Time) (digest.Result, error) {
	result, err := a.digest.Generate(ctx, date)
	if err != nil {
		return digest.Result{}, err
	}

	if a.notifier != nil && result.Content != "" {
		if err := a.notifier.PublishDigest(ctx, result.Content); err != nil {
			a.log.Warn("digest delivery failed", "error", err)
		}
	}
	return result, nil
}

// Cleanup removes records older than the retention window and enforces
// the record ceiling.
func (a *Application) Cleanup(ctx context.Context) (retention, ceiling int, err error) {
	retention, err = a.store.Cleanup(ctx, a.cfg.Retention.Days)
	if err != nil {
		return 0, 0, fmt.Errorf("retention cleanup: %w", err)
	}
	ceiling, err = a.store.EnforceCeiling(ctx, a.cfg.Retention.MaxRecords)
	if err != nil {
		return retention, 0, fmt.Errorf("ceiling cleanup: %w", err)
	}
	return retention, ceiling, nil
}

// Stats reports what the configured backend currently holds.
func (a *Application) Stats(ctx context.Context) (ports.StorageStats, error) {
	return a.store.Stats(ctx)
}

// Schedule runs the pipeline on the configured cron expression until
// ctx is cancelled.
func (a *Application) Schedule(ctx context.Context, opts usecase.Options) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, a.pipeline, opts, a.log.With("component", "scheduler"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.log.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Timezone)

	<-ctx.Done()
	return sched.Stop(context.Background())
}

// Close releases backend resources.
func (a *Application) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
