package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return rt.app.Migrate(cmd.Context())
		},
	}
}

type searchFlags struct {
	queries []string
	locale  string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.queries, "query", "q", nil, "search query (repeatable); defaults to discovery.queries")
	cmd.Flags().StringVar(&f.locale, "locale", "", "search locale, en or es; defaults to discovery.locale")
}

func (f *searchFlags) resolve(rt *runtime) ([]string, ranker.Locale, error) {
	queries := f.queries
	if len(queries) == 0 {
		queries = rt.cfg.Discovery.Queries
	}
	raw := f.locale
	if raw == "" {
		raw = rt.cfg.Discovery.Locale
	}
	locale, err := ranker.ParseLocale(raw)
	if err != nil {
		return nil, "", err
	}
	return queries, locale, nil
}

func newDiscoverCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run search queries and record raw results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			queries, locale, err := flags.resolve(rt)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return errors.New("no queries: pass --query or set discovery.queries")
			}
			summary, err := rt.app.Discover(cmd.Context(), queries, locale)
			return finish(rt, "discover", summary, err)
		},
	}
	flags.register(cmd)
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Parse and validate pending raw search results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := rt.app.Normalize(cmd.Context())
			return finish(rt, "normalize", summary, err)
		},
	}
}

func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Claim candidate channels and fetch their metadata with yt-dlp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := rt.app.Enrich(cmd.Context())
			return finish(rt, "enrich", summary, err)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Detect publishing cycles and qualify enriched channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := rt.app.Analyze(cmd.Context())
			return finish(rt, "analyze", summary, err)
		},
	}
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Recompute ranking scores for every analyzed channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := rt.app.Score(cmd.Context())
			return finish(rt, "score", summary, err)
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only reporting API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return rt.app.Serve(cmd.Context())
		},
	}
}

func newPipelineCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run every stage once, in order",
		Long: `pipeline runs discover (when queries are given), normalize, enrich,
analyze and score in sequence against the shared database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			queries, locale, err := flags.resolve(rt)
			if err != nil {
				return err
			}
			err = rt.app.Pipeline(cmd.Context(), queries, locale)
			return finish(rt, "pipeline", nil, err)
		},
	}
	flags.register(cmd)
	return cmd
}

// finish logs the stage summary. An interrupt is a clean stop.
func finish(rt *runtime, stage string, summary any, err error) error {
	if errors.Is(err, context.Canceled) {
		rt.logger.Warn("stage interrupted", zap.String("stage", stage), zap.Any("summary", summary))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	rt.logger.Info("stage finished", zap.String("stage", stage), zap.Any("summary", summary))
	return nil
}
