// Package adapter implements the per-outlet source adapters. Each outlet
// is one interchangeable variant of the same contract: feed-backed outlets
// parse a structured feed document, listing-scrape outlets walk a listing
// page and fetch each article page. Every outbound fetch goes through the
// compliance gate.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/habergo/habergo/internal/types"
)

// Fetcher is the HTTP transport used for feed documents, listing pages,
// and article pages.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)
}

// Gate authorizes and throttles outbound fetches. Adapters must not
// bypass it.
type Gate interface {
	Authorize(ctx context.Context, outlet types.Outlet, rawURL string) error
	Wait(ctx context.Context, outlet types.Outlet) error
}

// Candidate is one element of an adapter's output sequence: either a raw
// article or a per-item failure. Per-item failures never abort the
// remaining candidates.
type Candidate struct {
	Raw *types.RawArticle
	Err error
}

// Adapter produces raw article candidates for one outlet.
//
// FetchCandidates performs the discovery fetch synchronously: a non-nil
// error means no candidates could be discovered (a feed-document or
// listing-page failure) and aborts the adapter for this run. The returned
// channel is a finite sequence, closed when exhausted or when ctx is done.
type Adapter interface {
	Outlet() types.Outlet
	FetchCandidates(ctx context.Context, since time.Time) (<-chan Candidate, error)
}

// gatedFetch runs authorize → throttle → fetch for one URL. A denied path
// surfaces as types.ErrDenied, which callers skip without retry.
func gatedFetch(ctx context.Context, gate Gate, fetcher Fetcher, outlet types.Outlet, rawURL string) (*types.Response, error) {
	if err := gate.Authorize(ctx, outlet, rawURL); err != nil {
		return nil, err
	}
	if err := gate.Wait(ctx, outlet); err != nil {
		return nil, err
	}
	return fetcher.Fetch(ctx, rawURL)
}

// gatedFetchRetry is gatedFetch with a single retry for retryable fetch
// errors. Malformed content and policy denials are never retried.
func gatedFetchRetry(ctx context.Context, gate Gate, fetcher Fetcher, outlet types.Outlet, rawURL string) (*types.Response, error) {
	resp, err := gatedFetch(ctx, gate, fetcher, outlet, rawURL)
	if err == nil {
		return resp, nil
	}

	var fetchErr *types.FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.IsRetryable() {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	return gatedFetch(ctx, gate, fetcher, outlet, rawURL)
}
