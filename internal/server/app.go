// Package server builds the application's dependencies and runs its stages.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/analysis"
	"github.com/JakeFAU/channel-ranker/internal/api"
	"github.com/JakeFAU/channel-ranker/internal/archive"
	gcsarchive "github.com/JakeFAU/channel-ranker/internal/archive/gcs"
	localarchive "github.com/JakeFAU/channel-ranker/internal/archive/local"
	memoryarchive "github.com/JakeFAU/channel-ranker/internal/archive/memory"
	"github.com/JakeFAU/channel-ranker/internal/clock/system"
	"github.com/JakeFAU/channel-ranker/internal/config"
	"github.com/JakeFAU/channel-ranker/internal/discovery"
	"github.com/JakeFAU/channel-ranker/internal/enrichment"
	"github.com/JakeFAU/channel-ranker/internal/extractor/ytdlp"
	"github.com/JakeFAU/channel-ranker/internal/id/uuid"
	"github.com/JakeFAU/channel-ranker/internal/normalize"
	memorypublisher "github.com/JakeFAU/channel-ranker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/channel-ranker/internal/publisher/pubsub"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/scoring"
	"github.com/JakeFAU/channel-ranker/internal/search/headless"
	"github.com/JakeFAU/channel-ranker/internal/search/static"
	pgstore "github.com/JakeFAU/channel-ranker/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  ranker.Clock
	ids    ranker.IDGenerator

	pool           *pgxpool.Pool
	runs           *pgstore.SearchRunStore
	videos         *pgstore.VideoStore
	channels       *pgstore.ChannelStore
	analyses       *pgstore.AnalysisStore
	scores         *pgstore.ScoreStore
	rankings       *pgstore.RankingStore
	enrichClaims   *pgstore.ClaimStore
	analysisClaims *pgstore.ClaimStore

	archive         *archive.Archiver
	publisher       ranker.Publisher
	gcsStore        *gcsarchive.BlobStore
	pubsubPublisher *gcppublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	app.logger.Info("building application dependencies")

	if err := app.setupDatabase(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupArchive(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.ConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool

	if a.cfg.DB.MigrateOnStart {
		if err := pgstore.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if a.runs, err = pgstore.NewSearchRunStore(pool); err != nil {
		return err
	}
	if a.videos, err = pgstore.NewVideoStore(pool); err != nil {
		return err
	}
	if a.channels, err = pgstore.NewChannelStore(pool); err != nil {
		return err
	}
	if a.analyses, err = pgstore.NewAnalysisStore(pool); err != nil {
		return err
	}
	if a.scores, err = pgstore.NewScoreStore(pool); err != nil {
		return err
	}
	if a.rankings, err = pgstore.NewRankingStore(pool); err != nil {
		return err
	}
	stale := a.cfg.Claims.StaleAfter
	if a.enrichClaims, err = pgstore.NewClaimStore(pool, ranker.StageEnrichment, stale, a.clock); err != nil {
		return err
	}
	if a.analysisClaims, err = pgstore.NewClaimStore(pool, ranker.StageAnalysis, stale, a.clock); err != nil {
		return err
	}
	a.logger.Info("postgres stores initialized", zap.Duration("claim_stale_after", stale))
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	var (
		blobs ranker.BlobStore
		err   error
	)
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsStore, err = gcsarchive.New(client, gcsarchive.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobs = a.gcsStore
		a.logger.Info("archiving extractor dumps to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case config.ArchiveLocal:
		blobs, err = localarchive.New(localarchive.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving extractor dumps locally", zap.String("path", a.cfg.Archive.LocalDir))
	case config.ArchiveMemory:
		blobs = memoryarchive.NewBlobStore()
		a.logger.Info("archiving extractor dumps in memory")
	default:
		a.logger.Info("extractor dump archive disabled")
		return nil
	}
	a.archive = archive.New(blobs, a.cfg.Archive.Prefix)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(client, a.cfg.PubSubTopics())
	a.publisher = a.pubsubPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("enriched_topic", a.cfg.PubSub.EnrichedTopic),
		zap.String("scored_topic", a.cfg.PubSub.ScoredTopic),
	)
	return nil
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if err := pgstore.Migrate(ctx, a.pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("migrations applied")
	return nil
}

// searchSource builds the configured source; the returned func releases it.
func (a *App) searchSource() (ranker.SearchSource, func(), error) {
	switch a.cfg.Search.Mode {
	case config.SearchModeHeadless:
		src, err := headless.New(headless.Config{
			BaseURL:           a.cfg.Search.BaseURL,
			MaxParallel:       a.cfg.Search.MaxParallel,
			UserAgent:         a.cfg.Search.UserAgent,
			NavigationTimeout: a.cfg.SearchTimeout(),
			MaxScrolls:        a.cfg.Search.MaxScrolls,
			ScrollPause:       a.cfg.ScrollPause(),
		}, a.logger.Named("search"))
		if err != nil {
			return nil, nil, fmt.Errorf("headless search init failed: %w", err)
		}
		return src, src.Close, nil
	default:
		src := static.New(static.Config{
			BaseURL:   a.cfg.Search.BaseURL,
			UserAgent: a.cfg.Search.UserAgent,
			Timeout:   a.cfg.SearchTimeout(),
		}, a.logger.Named("search"))
		return src, func() {}, nil
	}
}

// Discover runs every query in the locale through the search source.
func (a *App) Discover(ctx context.Context, queries []string, locale ranker.Locale) (discovery.Summary, error) {
	src, release, err := a.searchSource()
	if err != nil {
		return discovery.Summary{}, err
	}
	defer release()

	runner, err := discovery.NewRunner(discovery.Deps{
		Runs:   a.runs,
		Videos: a.videos,
		Source: src,
		Mode:   a.cfg.Search.Mode,
		Clock:  a.clock,
		IDs:    a.ids,
		Logger: a.logger.Named("discovery"),
	}, a.cfg.Discovery.Config)
	if err != nil {
		return discovery.Summary{}, err
	}
	return runner.Run(ctx, queries, locale)
}

// Normalize converts pending raw records.
func (a *App) Normalize(ctx context.Context) (normalize.Summary, error) {
	n, err := normalize.NewNormalizer(
		a.videos,
		a.clock,
		a.cfg.Normalize.Thresholds,
		a.cfg.Normalize.BatchSize,
		a.logger.Named("normalize"),
	)
	if err != nil {
		return normalize.Summary{}, err
	}
	return n.Run(ctx, a.cfg.Normalize.Limit)
}

// Enrich drains the enrichment candidates with a worker pool.
func (a *App) Enrich(ctx context.Context) (enrichment.Summary, error) {
	extractor := ytdlp.New(a.cfg.Enrichment.Extractor, a.clock, a.logger.Named("ytdlp"))
	pool, err := enrichment.NewPool(enrichment.Deps{
		Claims:    a.enrichClaims,
		Channels:  a.channels,
		Extractor: extractor,
		Archive:   a.archive,
		Publisher: a.publisher,
		Clock:     a.clock,
		Logger:    a.logger.Named("enrichment"),
	}, a.cfg.Enrichment.Worker, a.ids)
	if err != nil {
		return enrichment.Summary{}, err
	}
	return pool.Run(ctx)
}

// Analyze qualifies enriched channels.
func (a *App) Analyze(ctx context.Context) (analysis.Summary, error) {
	workerID, err := a.ids.NewID()
	if err != nil {
		return analysis.Summary{}, fmt.Errorf("analysis worker id: %w", err)
	}
	runner, err := analysis.NewRunner(analysis.RunnerDeps{
		Claims:   a.analysisClaims,
		Channels: a.channels,
		Analyses: a.analyses,
		Clock:    a.clock,
		WorkerID: workerID,
		Logger:   a.logger.Named("analysis"),
	}, a.cfg.Analysis.Config)
	if err != nil {
		return analysis.Summary{}, err
	}
	return runner.Run(ctx, a.cfg.Analysis.Limit)
}

// Score re-scores every stored analysis.
func (a *App) Score(ctx context.Context) (scoring.Summary, error) {
	runner, err := scoring.NewRunner(a.analyses, a.scores, a.publisher, a.clock, a.cfg.Scoring, a.logger.Named("scoring"))
	if err != nil {
		return scoring.Summary{}, err
	}
	return runner.Run(ctx)
}

// Pipeline runs every stage once, in order.
func (a *App) Pipeline(ctx context.Context, queries []string, locale ranker.Locale) error {
	if len(queries) > 0 {
		if _, err := a.Discover(ctx, queries, locale); err != nil {
			return err
		}
	}
	if _, err := a.Normalize(ctx); err != nil {
		return err
	}
	if _, err := a.Enrich(ctx); err != nil {
		return err
	}
	if _, err := a.Analyze(ctx); err != nil {
		return err
	}
	if _, err := a.Score(ctx); err != nil {
		return err
	}
	return nil
}

// Serve runs the reporting API until the context is canceled.
func (a *App) Serve(ctx context.Context) error {
	apiServer := api.NewServer(a.rankings, a.cfg.Auth, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases clients and the database pool.
func (a *App) Close() {
	if a.pubsubPublisher != nil {
		if err := a.pubsubPublisher.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.logger.Info("shutdown complete")
}
