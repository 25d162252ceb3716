package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/channel-ranker/internal/metrics"
	"github.com/JakeFAU/channel-ranker/internal/ranker"
)

// Pool fans enrichment out to a fixed set of workers.
type Pool struct {
	workers []*Worker
	logger  *zap.Logger
}

// NewPool builds cfg.Concurrency workers with fresh IDs from ids.
func NewPool(deps Deps, cfg Config, ids ranker.IDGenerator) (*Pool, error) {
	if ids == nil {
		return nil, errors.New("enrichment: id generator is required")
	}
	cfg = cfg.withDefaults()
	workers := make([]*Worker, 0, cfg.Concurrency)
	for range cfg.Concurrency {
		id, err := ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate worker id: %w", err)
		}
		w, err := NewWorker(id, deps, cfg)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: workers, logger: logger}, nil
}

// Run starts all workers and blocks until every one has drained or ctx ends.
// Worker errors are joined; one failing worker does not stop the others.
func (p *Pool) Run(ctx context.Context) (Summary, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
		errs    []error
	)
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			s, err := wk.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			summary.add(s)
			if err != nil {
				p.logger.Error("enrichment worker stopped", zap.String("worker_id", wk.ID()), zap.Error(err))
				errs = append(errs, fmt.Errorf("worker %s: %w", wk.ID(), err))
			}
		}(w)
	}
	wg.Wait()

	p.logger.Info("enrichment finished",
		zap.Int("workers", len(p.workers)),
		zap.Int("claimed", summary.Claimed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("transient", summary.Transient),
		zap.Int("permanent", summary.Permanent),
		zap.Int("conflicts", summary.Conflicts),
		zap.Int("lost", summary.Lost),
	)
	metrics.ObserveStage(stage, "conflict", summary.Conflicts)
	return summary, errors.Join(errs...)
}

// Size reports the number of workers.
func (p *Pool) Size() int { return len(p.workers) }
