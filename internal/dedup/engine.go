// Package dedup decides whether a normalized candidate is a new story, a
// duplicate of a previously stored article (possibly from another outlet),
// or a re-fetch of an already-known article.
package dedup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/store"
	"github.com/habergo/habergo/internal/types"
)

// Index is the read access the engine needs over the existing store.
// Satisfied by store.Store.
type Index interface {
	GetArticle(ctx context.Context, id string) (*types.Article, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*types.Article, error)
	GroupForArticle(ctx context.Context, articleID string) (*types.DedupGroup, error)
}

// Engine implements the dedup decision procedure. Reads may be stale by at
// most one in-flight commit; the store writer re-checks the decision at
// commit time, so a stale verdict here is safe.
type Engine struct {
	index     Index
	window    *window
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a dedup engine with the configured similarity threshold and
// recent-candidate window size.
func New(cfg *config.DedupConfig, index Index, logger *slog.Logger) *Engine {
	return &Engine{
		index:     index,
		window:    newWindow(cfg.WindowSize),
		threshold: cfg.SimilarityThreshold,
		logger:    logger.With("component", "dedup"),
		now:       time.Now,
	}
}

// Decide classifies a candidate, in order: re-fetch by id, exact duplicate
// by fingerprint, near-duplicate by title similarity within the recent
// window, else new. Similarity comparison failures (empty token sets)
// degrade to "no match": a false negative is preferable to an incorrect
// merge.
func (e *Engine) Decide(ctx context.Context, a *types.Article) (types.Decision, error) {
	// 1. Same id: idempotent re-ingestion of the same outlet/URL.
	if _, err := e.index.GetArticle(ctx, a.ID); err == nil {
		return types.Decision{Kind: types.DecisionRefetch, MatchedID: a.ID}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Decision{}, err
	}

	// 2. Same fingerprint: exact text match from any outlet.
	if prior, err := e.index.FindByFingerprint(ctx, a.Fingerprint); err == nil {
		d := types.Decision{Kind: types.DecisionExactDuplicate, MatchedID: prior.ID}
		if g, err := e.index.GroupForArticle(ctx, prior.ID); err == nil {
			d.GroupID = g.GroupID
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.Decision{}, err
		}
		return d, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Decision{}, err
	}

	// 3. Fuzzy title match against recent candidates in the same
	// publish-day window.
	if d, ok := e.fuzzyMatch(ctx, a); ok {
		return d, nil
	}

	// 4. New story; a group is created lazily on first match.
	return types.Decision{Kind: types.DecisionNew}, nil
}

// Observe records a committed candidate in the recent window. Only
// committed rows participate in future fuzzy comparisons.
func (e *Engine) Observe(a *types.Article) {
	tokens := tokenize(a.Title)
	if len(tokens) == 0 {
		return
	}
	e.window.add(windowEntry{
		id:     a.ID,
		tokens: tokens,
		day:    e.publishDay(a),
	})
}

// fuzzyMatch scans the window oldest-first and returns the first entry on
// the candidate's publish day whose title similarity reaches the
// threshold. Oldest-first scanning makes the earliest-created matching
// group win when several match.
func (e *Engine) fuzzyMatch(ctx context.Context, a *types.Article) (types.Decision, bool) {
	tokens := tokenize(a.Title)
	if len(tokens) == 0 {
		return types.Decision{}, false
	}
	day := e.publishDay(a)

	for _, entry := range e.window.snapshot() {
		if entry.day != day || entry.id == a.ID {
			continue
		}
		score := similarity(tokens, entry.tokens)
		if score < e.threshold {
			continue
		}

		e.logger.Debug("fuzzy match",
			"candidate", a.ID,
			"matched", entry.id,
			"score", score,
		)

		d := types.Decision{Kind: types.DecisionNearDuplicate, MatchedID: entry.id}
		if g, err := e.index.GroupForArticle(ctx, entry.id); err == nil {
			d.GroupID = g.GroupID
		}
		return d, true
	}

	return types.Decision{}, false
}

// publishDay buckets a candidate by UTC publish day, falling back to the
// current day when the publish timestamp is unknown.
func (e *Engine) publishDay(a *types.Article) string {
	t := e.now().UTC()
	if a.PublishedAt != nil {
		t = a.PublishedAt.UTC()
	}
	return t.Format("2006-01-02")
}

// tokenize produces the case-folded title token set.
func tokenize(title string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(title))
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// similarity is the token-overlap ratio (Jaccard) of two token sets.
// Returns 0 when either set is empty.
func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
