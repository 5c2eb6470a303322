package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habergo/habergo/internal/types"
)

// Writer is the only component with write access to the article
// collection. It applies a dedup decision atomically: the insert and the
// group update happen under one serialization point, and the decision is
// re-checked against the store at commit time so a stale read cannot
// produce a second group for the same fingerprint.
type Writer struct {
	store  Store
	logger *slog.Logger

	// mu serializes commits. Conflicting writes from other processes
	// surface as types.ErrConflict from the backend and are absorbed by
	// re-reading.
	mu sync.Mutex

	now        func() time.Time
	newGroupID func() string
}

// NewWriter creates a store writer over the given backend.
func NewWriter(s Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:      s,
		logger:     logger.With("component", "store_writer"),
		now:        time.Now,
		newGroupID: uuid.NewString,
	}
}

// Commit persists a normalized candidate according to the dedup decision
// and returns the stored row together with the effective decision. The
// effective decision may differ from the proposed one when a concurrent
// commit won the race: a proposed New becomes ExactDuplicate when another
// writer stored the same fingerprint first, and a conflicting id insert
// becomes Refetch.
func (w *Writer) Commit(ctx context.Context, a *types.Article, d types.Decision) (*types.Article, types.Decision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Re-check by id: idempotent re-ingestion causes no writes.
	if existing, err := w.store.GetArticle(ctx, a.ID); err == nil {
		return existing, types.Decision{Kind: types.DecisionRefetch, MatchedID: existing.ID}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, types.Decision{}, err
	}

	effective := d
	var matched *types.Article

	// Re-check by fingerprint: an exact match that appeared since the
	// engine's read upgrades the decision.
	prior, err := w.store.FindByFingerprint(ctx, a.Fingerprint)
	switch {
	case err == nil:
		matched = prior
		effective = types.Decision{Kind: types.DecisionExactDuplicate, MatchedID: prior.ID}
	case errors.Is(err, ErrNotFound):
		if d.Kind == types.DecisionNearDuplicate {
			m, err := w.store.GetArticle(ctx, d.MatchedID)
			switch {
			case err == nil:
				matched = m
			case errors.Is(err, ErrNotFound):
				// The fuzzy match vanished; degrade to a new story rather
				// than guess at a merge.
				effective = types.Decision{Kind: types.DecisionNew}
			default:
				return nil, types.Decision{}, err
			}
		} else {
			effective = types.Decision{Kind: types.DecisionNew}
		}
	default:
		return nil, types.Decision{}, err
	}

	row := *a
	row.FetchedAt = w.now().UTC()
	if matched != nil {
		row.FirstSeenOutlet = matched.FirstSeenOutlet
	}

	if err := w.store.InsertArticle(ctx, &row); err != nil {
		if errors.Is(err, types.ErrConflict) {
			// Another writer inserted this id between our re-check and the
			// insert; observe its effect.
			existing, getErr := w.store.GetArticle(ctx, a.ID)
			if getErr != nil {
				return nil, types.Decision{}, fmt.Errorf("conflicting insert for %s: %w", a.ID, getErr)
			}
			return existing, types.Decision{Kind: types.DecisionRefetch, MatchedID: existing.ID}, nil
		}
		return nil, types.Decision{}, err
	}

	if matched != nil {
		groupID, err := w.joinGroup(ctx, matched, &row, effective.Kind == types.DecisionNearDuplicate)
		if err != nil {
			return nil, types.Decision{}, err
		}
		effective.GroupID = groupID
	}

	w.logger.Debug("committed",
		"id", row.ID,
		"outlet", row.Outlet,
		"decision", effective.Kind.String(),
		"group", effective.GroupID,
	)

	return &row, effective, nil
}

// joinGroup adds the new row to the matched article's dedup group,
// creating the group lazily on first match with the prior article as
// representative. Transient backend conflicts are retried until the write
// serializes.
func (w *Writer) joinGroup(ctx context.Context, matched, row *types.Article, fuzzy bool) (string, error) {
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		group, err := w.store.GroupForArticle(ctx, matched.ID)
		switch {
		case err == nil:
			if err := w.store.AddGroupMember(ctx, group.GroupID, row.ID); err != nil {
				if errors.Is(err, types.ErrConflict) {
					continue
				}
				return "", err
			}
			return group.GroupID, nil

		case errors.Is(err, ErrNotFound):
			g := &types.DedupGroup{
				GroupID:          w.newGroupID(),
				MemberIDs:        []string{matched.ID, row.ID},
				RepresentativeID: matched.ID,
				Fuzzy:            fuzzy,
				CreatedAt:        w.now().UTC(),
			}
			if err := w.store.InsertGroup(ctx, g); err != nil {
				if errors.Is(err, types.ErrConflict) {
					// A concurrent writer created the group; re-read and join it.
					continue
				}
				return "", err
			}
			return g.GroupID, nil

		default:
			return "", err
		}
	}

	return "", fmt.Errorf("group update for %s: %w", row.ID, types.ErrConflict)
}
