package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

// FeedAdapter ingests a feed-backed outlet. One outlet commonly exposes
// several category feeds; all of them are fetched per run.
type FeedAdapter struct {
	outlet  types.Outlet
	feeds   []string
	gate    Gate
	fetcher Fetcher
	parser  *gofeed.Parser
	logger  *slog.Logger
}

// NewFeedAdapter creates an adapter for a feed-backed outlet.
func NewFeedAdapter(cfg config.OutletConfig, gate Gate, fetcher Fetcher, logger *slog.Logger) *FeedAdapter {
	return &FeedAdapter{
		outlet:  types.Outlet(cfg.Name),
		feeds:   cfg.Feeds,
		gate:    gate,
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
		logger:  logger.With("component", "feed_adapter", "outlet", cfg.Name),
	}
}

func (a *FeedAdapter) Outlet() types.Outlet { return a.outlet }

// FetchCandidates fetches and parses the outlet's feed documents. Items
// older than since are skipped. The run is adapter-fatal only when every
// feed document fails: with at least one readable feed, partial discovery
// is still useful.
func (a *FeedAdapter) FetchCandidates(ctx context.Context, since time.Time) (<-chan Candidate, error) {
	type feedResult struct {
		url   string
		items []*gofeed.Item
		err   error
	}

	results := make([]feedResult, 0, len(a.feeds))
	okCount := 0
	deniedCount := 0

	for _, feedURL := range a.feeds {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		feed, err := a.fetchFeed(ctx, feedURL)
		if err != nil {
			if errors.Is(err, types.ErrDenied) {
				// A policy no-op, not a failure: skip the feed without retry.
				a.logger.Info("feed disallowed by crawl policy", "feed", feedURL)
				deniedCount++
				continue
			}
			a.logger.Warn("feed fetch failed", "feed", feedURL, "error", err)
			results = append(results, feedResult{url: feedURL, err: err})
			continue
		}

		okCount++
		results = append(results, feedResult{url: feedURL, items: feed.Items})
	}

	if okCount == 0 && deniedCount < len(a.feeds) {
		return nil, fmt.Errorf("all %d feed documents failed for %s", len(a.feeds), a.outlet)
	}

	out := make(chan Candidate)
	go func() {
		defer close(out)
		seen := make(map[string]struct{})

		for _, res := range results {
			if res.err != nil {
				if !emit(ctx, out, Candidate{Err: &types.FetchError{URL: res.url, Err: res.err}}) {
					return
				}
				continue
			}
			for _, item := range res.items {
				cand, skip := a.toCandidate(item, since, seen)
				if skip {
					continue
				}
				if !emit(ctx, out, cand) {
					return
				}
			}
		}
	}()

	return out, nil
}

// fetchFeed downloads one feed document through the gate and parses it.
func (a *FeedAdapter) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	resp, err := gatedFetchRetry(ctx, a.gate, a.fetcher, a.outlet, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := a.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return feed, nil
}

// toCandidate converts a feed item, applying the since cursor and per-run
// URL dedup across category feeds.
func (a *FeedAdapter) toCandidate(item *gofeed.Item, since time.Time, seen map[string]struct{}) (Candidate, bool) {
	if item == nil {
		return Candidate{}, true
	}
	if item.Link == "" {
		return Candidate{Err: &types.ParseError{Outlet: a.outlet, Err: errors.New("feed item without link")}}, false
	}
	if _, dup := seen[item.Link]; dup {
		return Candidate{}, true
	}
	seen[item.Link] = struct{}{}

	if !since.IsZero() && item.PublishedParsed != nil && item.PublishedParsed.Before(since) {
		return Candidate{}, true
	}

	return Candidate{Raw: &types.RawArticle{
		Outlet:       a.outlet,
		URL:          item.Link,
		Title:        item.Title,
		Body:         itemContent(item),
		PublishedRaw: itemPublished(item),
	}}, false
}

// itemContent picks the richest available text for a feed item.
func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	if item.Description != "" {
		return item.Description
	}
	return item.Title
}

// itemPublished prefers the published date, falling back to updated.
func itemPublished(item *gofeed.Item) string {
	if item.Published != "" {
		return item.Published
	}
	return item.Updated
}

// emit sends a candidate unless the context is done.
func emit(ctx context.Context, out chan<- Candidate, c Candidate) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
