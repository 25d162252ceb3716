// Package cmd defines the ranker CLI: one subcommand per pipeline stage plus
// migrate, serve and pipeline.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/analysis"
	"github.com/JakeFAU/channel-ranker/internal/config"
	"github.com/JakeFAU/channel-ranker/internal/discovery"
	"github.com/JakeFAU/channel-ranker/internal/enrichment"
	"github.com/JakeFAU/channel-ranker/internal/logging"
	"github.com/JakeFAU/channel-ranker/internal/normalize"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/scoring"
	"github.com/JakeFAU/channel-ranker/internal/server"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the surface subcommands use. Tests swap in a fake through newApp.
type App interface {
	Migrate(ctx context.Context) error
	Discover(ctx context.Context, queries []string, locale ranker.Locale) (discovery.Summary, error)
	Normalize(ctx context.Context) (normalize.Summary, error)
	Enrich(ctx context.Context) (enrichment.Summary, error)
	Analyze(ctx context.Context) (analysis.Summary, error)
	Score(ctx context.Context) (scoring.Summary, error)
	Pipeline(ctx context.Context, queries []string, locale ranker.Locale) error
	Serve(ctx context.Context) error
	Close()
}

type runtime struct {
	app    App
	cfg    config.Config
	logger *zap.Logger
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return server.Build(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "ranker",
		Short: "Discover and rank long-form channels in a niche",
		Long: `ranker crawls search results, enriches candidate channels with yt-dlp,
detects each channel's current publishing cycle and scores it. Every stage
reads only the work the previous stage left behind, so any stage can be
re-run or run from several processes at once.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, &runtime{app: appInstance, cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(appKey).(*runtime); ok && rt != nil {
				rt.app.Close()
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RANKER_* env vars override it")

	cmd.AddCommand(
		newMigrateCmd(),
		newDiscoverCmd(),
		newNormalizeCmd(),
		newEnrichCmd(),
		newAnalyzeCmd(),
		newScoreCmd(),
		newServeCmd(),
		newPipelineCmd(),
	)
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(appKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// Execute runs the root command with a context canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
