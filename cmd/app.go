package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/config"
	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/internal/library"
	"github.com/MimeLyc/shorts-publisher/internal/llm"
	"github.com/MimeLyc/shorts-publisher/internal/media"
	"github.com/MimeLyc/shorts-publisher/internal/metadata"
	"github.com/MimeLyc/shorts-publisher/internal/notify"
	"github.com/MimeLyc/shorts-publisher/internal/persistence"
	"github.com/MimeLyc/shorts-publisher/internal/pipeline"
	"github.com/MimeLyc/shorts-publisher/internal/publish"
	"github.com/MimeLyc/shorts-publisher/internal/slot"
	"github.com/MimeLyc/shorts-publisher/internal/trending"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// loadConfig reads an optional .env file and then the process environment.
func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, err
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}

type application struct {
	store  jobs.Store
	runner *pipeline.Runner
}

func (a *application) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn("Failed to close job store: %v", err)
	}
}

// openStore is enough for the read-only inspection commands.
func openStore(ctx context.Context, cfg *config.Config) (jobs.Store, error) {
	store, err := persistence.Open(ctx, cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return store, nil
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine, err := newEngine(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &application{
		store:  store,
		runner: pipeline.NewRunner(engine),
	}, nil
}

func newEngine(ctx context.Context, cfg *config.Config, store jobs.Store) (*pipeline.Engine, error) {
	source, err := library.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open asset source: %w", err)
	}

	var generator metadata.Generator
	if cfg.LLM.APIKey != "" {
		client, err := llm.NewClient(&llm.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		generator = client
	} else {
		log.Info("LLM_API_KEY not set, metadata falls back to file names")
	}

	keywords, err := trending.NewProvider(ctx, cfg.YouTube.APIKey, cfg.YouTube.RegionCode,
		trendingCache(cfg, store), cfg.Metadata.TrendingCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create trending provider: %w", err)
	}

	publisher, err := publish.NewYouTubePublisher(ctx, cfg.YouTube)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	return pipeline.NewEngine(pipeline.Dependencies{
		Store:       store,
		Source:      source,
		Resolver:    metadata.NewResolver(generator, keywords, cfg.Metadata.FallbackHashtags),
		Scheduler:   slot.New(cfg.Schedule.Windows, cfg.Schedule.Location),
		Thumbnailer: media.NewThumbnailer(cfg.Thumbnail.FFmpegPath, cfg.ThumbnailDir(), cfg.Thumbnail.BrandColor),
		Publisher:   publisher,
		Notifier:    notify.FromConfig(cfg.Notification),
	}, pipeline.Options{
		MaxUploadsPerRun:     cfg.Schedule.MaxUploadsPerRun,
		MaxRetryAttempts:     cfg.Schedule.MaxRetryAttempts,
		DiscoveryConcurrency: cfg.Schedule.DiscoveryConcurrency,
		PublicVisibility:     publisher.Public(),
	}), nil
}

// trendingCache shares the redis connection when the job store lives there.
func trendingCache(cfg *config.Config, store jobs.Store) trending.Cache {
	if rs, ok := store.(*persistence.RedisStore); ok {
		return trending.NewRedisCache(rs.Client())
	}
	return trending.NewMemoryCache(cfg.Metadata.TrendingCacheTTL)
}

// runWithComponents starts the periodic trigger and the HTTP server and
// blocks until ctx is cancelled or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, cron cronEngine, server httpServer) error {
	cron.Start()
	log.Info("Cron trigger started with expression %q", cfg.HTTP.CronExpr)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		serveErr <- server.ListenAndServe(cfg.HTTP.Addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}

	select {
	case <-cron.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for the running pipeline pass")
	}
	return runErr
}
