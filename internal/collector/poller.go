package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campus-noc/ipreg/internal/domain"
)

// Reconciler is the slice of the lifecycle service the poller needs.
type Reconciler interface {
	Reconcile(ctx context.Context, source string, table map[string]string) domain.ReconcileResult
}

// PollSummary aggregates one polling round over every source.
type PollSummary struct {
	Sources       int
	FailedSources int
	Created       int
	Updated       int
	Errors        int
}

// Poller collects from every source in parallel and reconciles each
// table into the inventory. A failing device never blocks or fails the
// round; it is counted and the rest proceed.
type Poller struct {
	sources    []Source
	reconciler Reconciler
	logger     *slog.Logger
	timeout    time.Duration
}

func NewPoller(sources []Source, reconciler Reconciler, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{sources: sources, reconciler: reconciler, logger: logger, timeout: timeout}
}

func (p *Poller) Run(ctx context.Context) PollSummary {
	summary := PollSummary{Sources: len(p.sources)}

	type outcome struct {
		source string
		table  map[string]string
		err    error
	}
	results := make(chan outcome, len(p.sources))

	var wg sync.WaitGroup
	for _, source := range p.sources {
		wg.Add(1)
		go func(source Source) {
			defer wg.Done()
			collectCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			table, err := source.Collect(collectCtx)
			results <- outcome{source: source.Name(), table: table, err: err}
		}(source)
	}
	wg.Wait()
	close(results)

	// Reconciliation runs sequentially; the parallelism is for the
	// slow part, talking to devices.
	for r := range results {
		if r.err != nil {
			summary.FailedSources++
			p.logger.Warn("source failed", "source", r.source, "err", r.err.Error())
			continue
		}

		result := p.reconciler.Reconcile(ctx, r.source, r.table)
		summary.Created += result.Created
		summary.Updated += result.Updated
		summary.Errors += result.Errors
	}

	p.logger.Info("polling round finished",
		"sources", summary.Sources,
		"failed_sources", summary.FailedSources,
		"created", summary.Created,
		"updated", summary.Updated,
		"errors", summary.Errors)
	return summary
}

// RunForever polls on a fixed interval until the context is canceled.
func (p *Poller) RunForever(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("non-positive polling interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Run(ctx)
		}
	}
}
