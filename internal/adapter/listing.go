package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

// ListingAdapter ingests an outlet without a feed: it scrapes the listing
// page for candidate article links, then fetches each article page for
// body text. Selector configuration decides whether extraction uses CSS
// or XPath.
type ListingAdapter struct {
	outlet  types.Outlet
	cfg     config.ListingConfig
	gate    Gate
	fetcher Fetcher
	logger  *slog.Logger
}

// candidateLink is one article link discovered on the listing page.
type candidateLink struct {
	url   string
	title string
}

// NewListingAdapter creates an adapter for a listing-scrape outlet.
func NewListingAdapter(cfg config.OutletConfig, gate Gate, fetcher Fetcher, logger *slog.Logger) *ListingAdapter {
	return &ListingAdapter{
		outlet:  types.Outlet(cfg.Name),
		cfg:     cfg.Listing,
		gate:    gate,
		fetcher: fetcher,
		logger:  logger.With("component", "listing_adapter", "outlet", cfg.Name),
	}
}

func (a *ListingAdapter) Outlet() types.Outlet { return a.outlet }

// FetchCandidates fetches the listing page and streams one candidate per
// discovered article. A listing-page failure is adapter-fatal: without it
// no candidates can be discovered. Article-page failures are per-item.
func (a *ListingAdapter) FetchCandidates(ctx context.Context, _ time.Time) (<-chan Candidate, error) {
	resp, err := gatedFetch(ctx, a.gate, a.fetcher, a.outlet, a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("listing page %s: %w", a.cfg.URL, err)
	}

	links, err := a.extractLinks(resp)
	if err != nil {
		return nil, fmt.Errorf("listing page %s: %w", a.cfg.URL, err)
	}
	a.logger.Debug("listing parsed", "links", len(links))

	out := make(chan Candidate)
	go func() {
		defer close(out)
		for _, link := range links {
			if ctx.Err() != nil {
				return
			}
			cand, skip := a.fetchArticle(ctx, link)
			if skip {
				continue
			}
			if !emit(ctx, out, cand) {
				return
			}
		}
	}()

	return out, nil
}

// fetchArticle fetches one article page and extracts its fields. Policy
// denials skip the candidate without retry; fetch failures (after one
// retry) surface as per-item failures.
func (a *ListingAdapter) fetchArticle(ctx context.Context, link candidateLink) (Candidate, bool) {
	resp, err := gatedFetchRetry(ctx, a.gate, a.fetcher, a.outlet, link.url)
	if err != nil {
		if errors.Is(err, types.ErrDenied) {
			a.logger.Debug("article disallowed by crawl policy", "url", link.url)
			return Candidate{}, true
		}
		if ctx.Err() != nil {
			return Candidate{}, true
		}
		return Candidate{Err: err}, false
	}

	raw, err := a.extractArticle(resp, link)
	if err != nil {
		return Candidate{Err: err}, false
	}
	return Candidate{Raw: raw}, false
}

// extractLinks pulls candidate article links from the listing page,
// filtering by path prefix and minimum title length, deduplicating, and
// capping at the configured per-run maximum.
func (a *ListingAdapter) extractLinks(resp *types.Response) ([]candidateLink, error) {
	base, err := url.Parse(a.cfg.URL)
	if err != nil {
		return nil, err
	}

	var found []candidateLink
	collect := func(href, text string) {
		if link, ok := a.filterLink(base, href, text); ok {
			found = append(found, link)
		}
	}

	switch a.cfg.SelectorType {
	case "xpath":
		doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, fmt.Errorf("parse listing html: %w", err)
		}
		nodes, err := htmlquery.QueryAll(doc, a.cfg.LinkSelector)
		if err != nil {
			return nil, fmt.Errorf("link selector %q: %w", a.cfg.LinkSelector, err)
		}
		for _, node := range nodes {
			collect(htmlquery.SelectAttr(node, "href"), htmlquery.InnerText(node))
		}
	default: // css
		doc, err := resp.Document()
		if err != nil {
			return nil, fmt.Errorf("parse listing html: %w", err)
		}
		doc.Find(a.cfg.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			text := sel.Text()
			if strings.TrimSpace(text) == "" {
				text, _ = sel.Attr("title")
			}
			collect(href, text)
		})
	}

	seen := make(map[string]struct{}, len(found))
	links := make([]candidateLink, 0, len(found))
	for _, link := range found {
		if _, dup := seen[link.url]; dup {
			continue
		}
		seen[link.url] = struct{}{}
		links = append(links, link)
		if a.cfg.MaxArticles > 0 && len(links) >= a.cfg.MaxArticles {
			break
		}
	}
	return links, nil
}

// filterLink decides whether one anchor counts as an article link.
func (a *ListingAdapter) filterLink(base *url.URL, href, text string) (candidateLink, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return candidateLink{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return candidateLink{}, false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return candidateLink{}, false
	}
	if resolved.Host != base.Host {
		return candidateLink{}, false
	}

	if len(a.cfg.PathPrefixes) > 0 {
		matched := false
		for _, prefix := range a.cfg.PathPrefixes {
			if strings.HasPrefix(resolved.Path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return candidateLink{}, false
		}
	}

	title := strings.Join(strings.Fields(text), " ")
	if a.cfg.MinTitleLen > 0 && len(title) < a.cfg.MinTitleLen {
		return candidateLink{}, false
	}

	return candidateLink{url: resolved.String(), title: title}, true
}

// extractArticle pulls title, body, and date from an article page, falling
// back to the listing link text when the page has no title under the
// configured selector.
func (a *ListingAdapter) extractArticle(resp *types.Response, link candidateLink) (*types.RawArticle, error) {
	raw := &types.RawArticle{
		Outlet: a.outlet,
		URL:    link.url,
		Title:  link.title,
	}

	switch a.cfg.SelectorType {
	case "xpath":
		doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, &types.ParseError{Outlet: a.outlet, URL: link.url, Err: err}
		}
		if a.cfg.TitleSelector != "" {
			if node, err := htmlquery.Query(doc, a.cfg.TitleSelector); err == nil && node != nil {
				if title := strings.TrimSpace(htmlquery.InnerText(node)); title != "" {
					raw.Title = title
				}
			}
		}
		if a.cfg.BodySelector != "" {
			nodes, _ := htmlquery.QueryAll(doc, a.cfg.BodySelector)
			var parts []string
			for _, node := range nodes {
				parts = append(parts, htmlquery.InnerText(node))
			}
			raw.Body = strings.Join(parts, "\n")
		}
		if a.cfg.DateSelector != "" {
			if node, err := htmlquery.Query(doc, a.cfg.DateSelector); err == nil && node != nil {
				raw.PublishedRaw = strings.TrimSpace(htmlquery.SelectAttr(node, "datetime"))
				if raw.PublishedRaw == "" {
					raw.PublishedRaw = strings.TrimSpace(htmlquery.InnerText(node))
				}
			}
		}
	default: // css
		doc, err := resp.Document()
		if err != nil {
			return nil, &types.ParseError{Outlet: a.outlet, URL: link.url, Err: err}
		}
		if a.cfg.TitleSelector != "" {
			if title := strings.TrimSpace(doc.Find(a.cfg.TitleSelector).First().Text()); title != "" {
				raw.Title = title
			}
		}
		if a.cfg.BodySelector != "" {
			var parts []string
			doc.Find(a.cfg.BodySelector).Each(func(_ int, sel *goquery.Selection) {
				parts = append(parts, sel.Text())
			})
			raw.Body = strings.Join(parts, "\n")
		}
		if a.cfg.DateSelector != "" {
			dateSel := doc.Find(a.cfg.DateSelector).First()
			raw.PublishedRaw, _ = dateSel.Attr("datetime")
			raw.PublishedRaw = strings.TrimSpace(raw.PublishedRaw)
			if raw.PublishedRaw == "" {
				raw.PublishedRaw = strings.TrimSpace(dateSel.Text())
			}
		}
	}

	return raw, nil
}
