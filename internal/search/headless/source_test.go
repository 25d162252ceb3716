package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, nil)
	require.Error(t, err)
	_, err = New(Config{MaxScrolls: -1}, nil)
	require.Error(t, err)

	src, err := New(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, 2, cap(src.limiter))
	require.Equal(t, 45*time.Second, src.cfg.NavigationTimeout)
	require.Equal(t, 750*time.Millisecond, src.cfg.ScrollPause)
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	src := &Source{limiter: make(chan struct{}, 1)}
	require.NoError(t, src.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, src.acquire(ctx), context.Canceled)

	src.release()
	require.NoError(t, src.acquire(context.Background()))
}

func TestReleaseWithoutLimiter(t *testing.T) {
	t.Parallel()

	src := &Source{}
	require.NoError(t, src.acquire(context.Background()))
	src.release()
}

func TestLanguageHeaders(t *testing.T) {
	t.Parallel()

	require.Equal(t, "es-419,es;q=0.9", languageHeaders(ranker.LocaleES)["Accept-Language"])
	require.Equal(t, "en-US,en;q=0.9", languageHeaders(ranker.LocaleEN)["Accept-Language"])
}
