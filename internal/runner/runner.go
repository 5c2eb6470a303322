// Package runner orchestrates ingestion runs: it fans out one worker per
// source adapter, pushes candidates through normalize → dedup → store
// writer, isolates per-adapter failures, and aggregates a run report.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habergo/habergo/internal/adapter"
	"github.com/habergo/habergo/internal/dedup"
	"github.com/habergo/habergo/internal/normalize"
	"github.com/habergo/habergo/internal/store"
	"github.com/habergo/habergo/internal/types"
)

// Runner executes ingestion runs. Nothing throws past it: all
// operator-visible behavior is the RunReport and the log.
type Runner struct {
	adapters   []adapter.Adapter
	normalizer *normalize.Normalizer
	engine     *dedup.Engine
	writer     *store.Writer
	store      store.Store
	logger     *slog.Logger

	mu      sync.Mutex
	busy    map[types.Outlet]bool
	lastRun map[types.Outlet]time.Time

	now      func() time.Time
	newRunID func() string
}

// New creates a run orchestrator.
func New(adapters []adapter.Adapter, n *normalize.Normalizer, e *dedup.Engine, w *store.Writer, s store.Store, logger *slog.Logger) *Runner {
	return &Runner{
		adapters:   adapters,
		normalizer: n,
		engine:     e,
		writer:     w,
		store:      s,
		logger:     logger.With("component", "runner"),
		busy:       make(map[types.Outlet]bool),
		lastRun:    make(map[types.Outlet]time.Time),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// RunOnce executes one run across all adapters and returns the finalized
// report. Adapters whose prior run has not finished are skipped, never
// queued: bounded lag is preferable to unbounded backlog.
func (r *Runner) RunOnce(ctx context.Context) *types.RunReport {
	report := &types.RunReport{
		RunID:     r.newRunID(),
		StartedAt: r.now().UTC(),
		Status:    types.RunStatusRunning,
		Adapters:  make([]types.AdapterReport, len(r.adapters)),
	}
	logger := r.logger.With("run_id", report.RunID)
	logger.Info("run starting", "adapters", len(r.adapters))

	var wg sync.WaitGroup
	for i, ad := range r.adapters {
		outlet := ad.Outlet()

		since, ok := r.claim(outlet)
		if !ok {
			logger.Warn("outlet run still in progress, skipping", "outlet", outlet)
			report.Adapters[i] = types.AdapterReport{Outlet: outlet, Skipped: true}
			continue
		}

		wg.Add(1)
		go func(i int, ad adapter.Adapter, since time.Time) {
			defer wg.Done()
			rep := r.runAdapter(ctx, logger, ad, since)
			report.Adapters[i] = rep
			r.release(ad.Outlet(), report.StartedAt, !rep.Fatal)
		}(i, ad, since)
	}
	wg.Wait()

	report.FinishedAt = r.now().UTC()
	report.Status = types.RunStatusCompleted
	for _, a := range report.Adapters {
		if a.Fatal {
			// Partial ingestion is still useful and stays committed.
			report.Status = types.RunStatusPartiallyFailed
			break
		}
	}

	if err := r.store.SaveRunReport(ctx, report); err != nil {
		logger.Error("run report save failed", "error", err)
	}

	totals := report.Totals()
	logger.Info("run finished",
		"status", report.Status,
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"fetched", totals.Fetched,
		"accepted", totals.Accepted,
		"duplicate", totals.Duplicate,
		"rejected", totals.Rejected,
		"failed", totals.Failed,
	)
	return report
}

// claim marks an outlet busy and returns its since cursor. Returns false
// when the outlet is already running.
func (r *Runner) claim(outlet types.Outlet) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy[outlet] {
		return time.Time{}, false
	}
	r.busy[outlet] = true
	return r.lastRun[outlet], true
}

// release frees an outlet and, when the run was not adapter-fatal,
// advances its since cursor to the run's start time. A fatal run leaves
// the cursor untouched so the next trigger re-covers its window.
func (r *Runner) release(outlet types.Outlet, startedAt time.Time, advance bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy[outlet] = false
	if advance {
		r.lastRun[outlet] = startedAt
	}
}

// runAdapter drains one adapter's candidate sequence through the
// pipeline. Per-item failures never escalate to the adapter level;
// adapter-level failures never abort the run.
func (r *Runner) runAdapter(ctx context.Context, logger *slog.Logger, ad adapter.Adapter, since time.Time) types.AdapterReport {
	outlet := ad.Outlet()
	rep := types.AdapterReport{Outlet: outlet}
	logger = logger.With("outlet", outlet)

	candidates, err := ad.FetchCandidates(ctx, since)
	if err != nil {
		logger.Error("adapter failed", "error", err)
		rep.Fatal = true
		rep.Error = err.Error()
		return rep
	}

	for cand := range candidates {
		if cand.Err != nil {
			var parseErr *types.ParseError
			if errors.As(cand.Err, &parseErr) {
				rep.Rejected++
			} else {
				rep.Failed++
			}
			logger.Warn("candidate failed", "error", cand.Err)
			continue
		}

		rep.Fetched++
		r.ingest(ctx, logger, cand.Raw, &rep)
	}

	logger.Info("adapter done",
		"fetched", rep.Fetched,
		"accepted", rep.Accepted,
		"duplicate", rep.Duplicate,
		"rejected", rep.Rejected,
		"failed", rep.Failed,
	)
	return rep
}

// ingest pushes one raw candidate through normalize → dedup → commit and
// records the outcome.
func (r *Runner) ingest(ctx context.Context, logger *slog.Logger, raw *types.RawArticle, rep *types.AdapterReport) {
	article, err := r.normalizer.Normalize(raw)
	if err != nil {
		rep.Rejected++
		logger.Debug("candidate rejected", "url", raw.URL, "error", err)
		return
	}
	rep.Normalized++

	decision, err := r.engine.Decide(ctx, article)
	if err != nil {
		rep.Failed++
		logger.Warn("dedup decision failed", "id", article.ID, "error", err)
		return
	}

	persisted, effective, err := r.writer.Commit(ctx, article, decision)
	if err != nil {
		rep.Failed++
		logger.Warn("commit failed", "id", article.ID, "error", err)
		return
	}

	switch effective.Kind {
	case types.DecisionNew:
		rep.Accepted++
		r.engine.Observe(persisted)
	case types.DecisionExactDuplicate, types.DecisionNearDuplicate:
		rep.Duplicate++
		r.engine.Observe(persisted)
	case types.DecisionRefetch:
		rep.Duplicate++
	}
}
