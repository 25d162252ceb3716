// Package static fetches search-results pages over plain HTTP with colly and
// extracts the embedded ytInitialData script payload.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
	"github.com/JakeFAU/channel-ranker/internal/search"
	"github.com/JakeFAU/channel-ranker/internal/search/initialdata"
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Source implements ranker.SearchSource using the Colly collector.
type Source struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Source.
func New(cfg Config, logger *zap.Logger) *Source {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Source{cfg: cfg, logger: logger, baseCollector: c}
}

// Search fetches one results page and parses its ytInitialData.
func (s *Source) Search(ctx context.Context, query string, locale ranker.Locale) ([]ranker.SearchResult, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)
	configureHooks(collector, locale, &body, &fetchErr)

	target := search.ResultsURL(s.cfg.BaseURL, query, locale)
	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		return nil, err
	}

	doc, err := initialdata.Extract(body)
	if err != nil {
		return nil, err
	}
	results, err := initialdata.Parse(doc)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSearch("static", string(locale), len(results))
	s.logger.Debug("static search complete",
		zap.String("query", query),
		zap.String("locale", string(locale)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func configureHooks(hooks collectorHooks, locale ranker.Locale, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", search.AcceptLanguage(locale))
	})
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
