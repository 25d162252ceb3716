package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/analysis"
	"github.com/JakeFAU/channel-ranker/internal/config"
	"github.com/JakeFAU/channel-ranker/internal/discovery"
	"github.com/JakeFAU/channel-ranker/internal/enrichment"
	"github.com/JakeFAU/channel-ranker/internal/normalize"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/scoring"
)

type fakeApp struct {
	calls   []string
	queries []string
	locale  ranker.Locale
	err     error
	closed  bool
}

func (f *fakeApp) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeApp) Migrate(context.Context) error { return f.record("migrate") }

func (f *fakeApp) Discover(_ context.Context, queries []string, locale ranker.Locale) (discovery.Summary, error) {
	f.queries, f.locale = queries, locale
	return discovery.Summary{Queries: len(queries)}, f.record("discover")
}

func (f *fakeApp) Normalize(context.Context) (normalize.Summary, error) {
	return normalize.Summary{}, f.record("normalize")
}

func (f *fakeApp) Enrich(context.Context) (enrichment.Summary, error) {
	return enrichment.Summary{}, f.record("enrich")
}

func (f *fakeApp) Analyze(context.Context) (analysis.Summary, error) {
	return analysis.Summary{}, f.record("analyze")
}

func (f *fakeApp) Score(context.Context) (scoring.Summary, error) {
	return scoring.Summary{}, f.record("score")
}

func (f *fakeApp) Pipeline(_ context.Context, queries []string, locale ranker.Locale) error {
	f.queries, f.locale = queries, locale
	return f.record("pipeline")
}

func (f *fakeApp) Serve(context.Context) error { return f.record("serve") }

func (f *fakeApp) Close() { f.closed = true }

// useFakeApp swaps newApp for the duration of a test; callers must not run in parallel.
func useFakeApp(t *testing.T, fake *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&discardWriter{})
	root.SetErr(&discardWriter{})
	return root.ExecuteContext(context.Background())
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStageCommandsDispatch(t *testing.T) {
	for _, stage := range []string{"migrate", "normalize", "enrich", "analyze", "score", "serve"} {
		t.Run(stage, func(t *testing.T) {
			fake := &fakeApp{}
			useFakeApp(t, fake)
			require.NoError(t, execute(t, stage))
			require.Equal(t, []string{stage}, fake.calls)
			require.True(t, fake.closed)
		})
	}
}

func TestDiscoverFlags(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	require.NoError(t, execute(t, "discover", "-q", "recetas", "-q", "pan casero", "--locale", "es-419"))
	require.Equal(t, []string{"recetas", "pan casero"}, fake.queries)
	require.Equal(t, ranker.LocaleES, fake.locale)
}

func TestDiscoverRequiresQueries(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	err := execute(t, "discover")
	require.ErrorContains(t, err, "no queries")
	require.Empty(t, fake.calls)
}

func TestDiscoverRejectsLocale(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	require.Error(t, execute(t, "discover", "-q", "x", "--locale", "fr"))
}

func TestPipelineUsesConfigDefaults(t *testing.T) {
	t.Setenv("RANKER_DISCOVERY_LOCALE", "es")
	fake := &fakeApp{}
	useFakeApp(t, fake)

	require.NoError(t, execute(t, "pipeline"))
	require.Equal(t, []string{"pipeline"}, fake.calls)
	require.Equal(t, ranker.LocaleES, fake.locale)
}

func TestStageErrorsAreWrapped(t *testing.T) {
	fake := &fakeApp{err: errors.New("db down")}
	useFakeApp(t, fake)

	err := execute(t, "score")
	require.ErrorContains(t, err, "score: db down")
}

func TestInterruptIsCleanStop(t *testing.T) {
	fake := &fakeApp{err: context.Canceled}
	useFakeApp(t, fake)

	require.NoError(t, execute(t, "enrich"))
}

func TestBadConfigFile(t *testing.T) {
	fake := &fakeApp{}
	useFakeApp(t, fake)

	require.Error(t, execute(t, "--config", "/nonexistent/ranker.yaml", "score"))
	require.Empty(t, fake.calls)
}
