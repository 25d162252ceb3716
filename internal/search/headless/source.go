// Package headless renders search-results pages in headless Chrome and reads
// the embedded ytInitialData document.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/search"
	"github.com/JakeFAU/channel-ranker/internal/search/initialdata"
)

const (
	countScript   = `document.querySelectorAll('ytd-video-renderer').length`
	scrollScript  = `window.scrollTo(0, document.documentElement.scrollHeight)`
	payloadScript = `JSON.stringify(window.ytInitialData || null)`
)

// Config controls the headless source.
type Config struct {
	BaseURL           string
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	MaxScrolls        int
	ScrollPause       time.Duration
}

// Source implements ranker.SearchSource with chromedp.
type Source struct {
	cfg         Config
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts a Chrome allocator. Call Close to release it.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.MaxScrolls < 0 {
		return nil, fmt.Errorf("max scrolls must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = 750 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Source{
		cfg:         cfg,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (s *Source) Close() {
	s.allocCancel()
}

// Search renders the results page, scrolls until it stops growing, and parses
// the ytInitialData payload.
func (s *Source) Search(ctx context.Context, query string, locale ranker.Locale) ([]ranker.SearchResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()
	// Tie the tab to the caller's context as well as the allocator.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	target := search.ResultsURL(s.cfg.BaseURL, query, locale)
	var payload string
	actions := []chromedp.Action{
		s.networkSetupAction(locale),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		s.scrollAction(),
		chromedp.Evaluate(payloadScript, &payload),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if payload == "" || payload == "null" {
		return nil, initialdata.ErrNotFound
	}

	results, err := initialdata.Parse([]byte(payload))
	if err != nil {
		return nil, err
	}
	metrics.ObserveSearch("headless", string(locale), len(results))
	s.logger.Debug("headless search complete",
		zap.String("query", query),
		zap.String("locale", string(locale)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (s *Source) networkSetupAction(locale ranker.Locale) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := network.SetExtraHTTPHeaders(languageHeaders(locale)).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// scrollAction scrolls until the renderer count stops growing or MaxScrolls
// is reached.
func (s *Source) scrollAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var last int
		if err := chromedp.Evaluate(countScript, &last).Do(ctx); err != nil {
			return fmt.Errorf("count results: %w", err)
		}
		for i := 0; i < s.cfg.MaxScrolls; i++ {
			if err := chromedp.Evaluate(scrollScript, nil).Do(ctx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := chromedp.Sleep(s.cfg.ScrollPause).Do(ctx); err != nil {
				return fmt.Errorf("scroll pause: %w", err)
			}
			var count int
			if err := chromedp.Evaluate(countScript, &count).Do(ctx); err != nil {
				return fmt.Errorf("count results: %w", err)
			}
			if count <= last {
				return nil
			}
			last = count
		}
		return nil
	})
}

func (s *Source) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Source) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

func languageHeaders(locale ranker.Locale) network.Headers {
	return network.Headers{"Accept-Language": search.AcceptLanguage(locale)}
}
