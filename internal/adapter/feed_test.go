package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

func rssDoc(items ...string) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title>`
	for _, it := range items {
		doc += it
	}
	return doc + `</channel></rss>`
}

func rssItem(link, title, pubDate string) string {
	item := fmt.Sprintf(`<item><link>%s</link><title>%s</title><description>açıklama metni</description>`, link, title)
	if pubDate != "" {
		item += "<pubDate>" + pubDate + "</pubDate>"
	}
	return item + "</item>"
}

func feedOutlet(feeds ...string) config.OutletConfig {
	return config.OutletConfig{Name: "ntv", Kind: "feed", Feeds: feeds}
}

func TestFeedAdapterEmitsItems(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://ntv.example.com/rss"] = rssDoc(
		rssItem("https://ntv.example.com/haber/1", "Birinci haber", "Mon, 24 Aug 2026 10:00:00 +0300"),
		rssItem("https://ntv.example.com/haber/2", "İkinci haber", ""),
	)

	a := NewFeedAdapter(feedOutlet("https://ntv.example.com/rss"), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cands := drain(t, ch)

	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	first := cands[0]
	if first.Err != nil {
		t.Fatalf("unexpected candidate error: %v", first.Err)
	}
	if first.Raw.URL != "https://ntv.example.com/haber/1" {
		t.Errorf("unexpected URL: %s", first.Raw.URL)
	}
	if first.Raw.Title != "Birinci haber" {
		t.Errorf("unexpected title: %q", first.Raw.Title)
	}
	if first.Raw.Body == "" {
		t.Error("body should fall back to the item description")
	}
	if first.Raw.PublishedRaw == "" {
		t.Error("published raw should carry the pubDate string")
	}
	if first.Raw.Outlet != "ntv" {
		t.Errorf("unexpected outlet: %s", first.Raw.Outlet)
	}
}

func TestFeedAdapterSinceCursor(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://ntv.example.com/rss"] = rssDoc(
		rssItem("https://ntv.example.com/haber/old", "Eski haber", "Sun, 23 Aug 2026 10:00:00 +0000"),
		rssItem("https://ntv.example.com/haber/new", "Yeni haber", "Mon, 24 Aug 2026 10:00:00 +0000"),
		rssItem("https://ntv.example.com/haber/undated", "Tarihsiz haber", ""),
	)

	a := NewFeedAdapter(feedOutlet("https://ntv.example.com/rss"), gate, fetcher, testLogger())

	since := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	ch, err := a.FetchCandidates(context.Background(), since)
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	// The dated-old item is dropped; undated items pass through.
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if c.Raw.URL == "https://ntv.example.com/haber/old" {
			t.Error("item older than the cursor must be skipped")
		}
	}
}

func TestFeedAdapterDedupsAcrossCategoryFeeds(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	shared := rssItem("https://ntv.example.com/haber/shared", "Ortak haber", "")
	fetcher.pages["https://ntv.example.com/rss/gundem"] = rssDoc(shared,
		rssItem("https://ntv.example.com/haber/a", "Gündem haberi", ""))
	fetcher.pages["https://ntv.example.com/rss/ekonomi"] = rssDoc(shared,
		rssItem("https://ntv.example.com/haber/b", "Ekonomi haberi", ""))

	a := NewFeedAdapter(feedOutlet(
		"https://ntv.example.com/rss/gundem",
		"https://ntv.example.com/rss/ekonomi",
	), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	if len(cands) != 3 {
		t.Fatalf("expected 3 unique candidates, got %d", len(cands))
	}
}

func TestFeedAdapterPartialFeedFailure(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://ntv.example.com/rss/ok"] = rssDoc(
		rssItem("https://ntv.example.com/haber/1", "Sağlam haber", ""))
	fetcher.errs["https://ntv.example.com/rss/broken"] = &types.FetchError{
		URL: "https://ntv.example.com/rss/broken", StatusCode: 500, Err: errors.New("server error"),
	}

	a := NewFeedAdapter(feedOutlet(
		"https://ntv.example.com/rss/ok",
		"https://ntv.example.com/rss/broken",
	), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("one readable feed keeps the adapter alive: %v", err)
	}
	cands := drain(t, ch)

	var items, failures int
	for _, c := range cands {
		if c.Err != nil {
			failures++
		} else {
			items++
		}
	}
	if items != 1 || failures != 1 {
		t.Errorf("expected 1 item and 1 per-item failure, got %d and %d", items, failures)
	}
}

func TestFeedAdapterAllFeedsFailedIsFatal(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.errs["https://ntv.example.com/rss/a"] = &types.FetchError{URL: "a", StatusCode: 500, Err: errors.New("down")}
	fetcher.errs["https://ntv.example.com/rss/b"] = &types.FetchError{URL: "b", StatusCode: 503, Err: errors.New("down")}

	a := NewFeedAdapter(feedOutlet(
		"https://ntv.example.com/rss/a",
		"https://ntv.example.com/rss/b",
	), gate, fetcher, testLogger())

	if _, err := a.FetchCandidates(context.Background(), time.Time{}); err == nil {
		t.Fatal("all feeds failing must abort the adapter")
	}
}

func TestFeedAdapterDeniedFeedIsNotFatal(t *testing.T) {
	gate := &fakeGate{denied: map[string]bool{"https://ntv.example.com/rss/private": true}}
	fetcher := newFakeFetcher()

	a := NewFeedAdapter(feedOutlet("https://ntv.example.com/rss/private"), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("a denied feed is a policy no-op, not a failure: %v", err)
	}
	if cands := drain(t, ch); len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
	if fetcher.fetchCount("https://ntv.example.com/rss/private") != 0 {
		t.Error("denied feed must never be fetched")
	}
}

func TestFeedAdapterItemWithoutLink(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://ntv.example.com/rss"] = rssDoc(
		`<item><title>Linksiz haber</title></item>`,
		rssItem("https://ntv.example.com/haber/1", "Normal haber", ""),
	)

	a := NewFeedAdapter(feedOutlet("https://ntv.example.com/rss"), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	var parseErrs int
	for _, c := range cands {
		var pe *types.ParseError
		if errors.As(c.Err, &pe) {
			parseErrs++
		}
	}
	if parseErrs != 1 {
		t.Errorf("item without link should surface as a parse error, got %d", parseErrs)
	}
}
