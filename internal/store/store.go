// Package store owns the persistent article collection. All mutation goes
// through the Writer; backends only provide primitive reads and inserts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/habergo/habergo/internal/types"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ArticleQuery selects articles for downstream consumers.
type ArticleQuery struct {
	Outlet        types.Outlet
	Fingerprint   string
	PublishedFrom time.Time
	PublishedTo   time.Time
	Limit         int
}

// Store is the persistence backend for articles, dedup groups, and run
// reports.
type Store interface {
	// GetArticle looks up an article by id. Returns ErrNotFound.
	GetArticle(ctx context.Context, id string) (*types.Article, error)

	// FindByFingerprint returns the earliest-stored article with the given
	// content fingerprint, or ErrNotFound.
	FindByFingerprint(ctx context.Context, fingerprint string) (*types.Article, error)

	// InsertArticle inserts a new article row. Inserting an existing id
	// returns types.ErrConflict.
	InsertArticle(ctx context.Context, a *types.Article) error

	// ListArticles returns articles matching the query, most recently
	// fetched first.
	ListArticles(ctx context.Context, q ArticleQuery) ([]*types.Article, error)

	// GetGroup looks up a dedup group by id. Returns ErrNotFound.
	GetGroup(ctx context.Context, groupID string) (*types.DedupGroup, error)

	// GroupForArticle returns the group containing the given article id,
	// or ErrNotFound. An article belongs to at most one group.
	GroupForArticle(ctx context.Context, articleID string) (*types.DedupGroup, error)

	// InsertGroup creates a new dedup group. An existing group id returns
	// types.ErrConflict.
	InsertGroup(ctx context.Context, g *types.DedupGroup) error

	// AddGroupMember appends an article to an existing group. Appending an
	// existing member is a no-op.
	AddGroupMember(ctx context.Context, groupID, articleID string) error

	// SaveRunReport persists a finalized run report.
	SaveRunReport(ctx context.Context, r *types.RunReport) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
