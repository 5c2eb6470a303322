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

func listingOutlet(listing config.ListingConfig) config.OutletConfig {
	return config.OutletConfig{Name: "hurriyet", Kind: "listing", Listing: listing}
}

func cssListing() config.ListingConfig {
	return config.ListingConfig{
		URL:           "https://hurriyet.example.com/gundem",
		SelectorType:  "css",
		LinkSelector:  "a.news-link",
		PathPrefixes:  []string{"/haber/"},
		TitleSelector: "h1.title",
		BodySelector:  "div.content p",
		DateSelector:  "time.published",
		MinTitleLen:   10,
		MaxArticles:   50,
	}
}

func articlePage(title, body, date string) string {
	return fmt.Sprintf(`<html><body>
<h1 class="title">%s</h1>
<div class="content"><p>%s</p></div>
<time class="published" datetime="%s">bugün</time>
</body></html>`, title, body, date)
}

func TestListingAdapterScrapesArticles(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://hurriyet.example.com/gundem"] = `<html><body>
<a class="news-link" href="/haber/ekonomi-haberi-basligi">Ekonomi haberi başlığı</a>
<a class="news-link" href="https://hurriyet.example.com/haber/spor-haberi-basligi">Spor haberi başlığı</a>
</body></html>`
	fetcher.pages["https://hurriyet.example.com/haber/ekonomi-haberi-basligi"] =
		articlePage("Ekonomi haberi tam başlığı", "Gövde metni burada.", "2026-08-24T10:00:00+03:00")
	fetcher.pages["https://hurriyet.example.com/haber/spor-haberi-basligi"] =
		articlePage("Spor haberi tam başlığı", "Spor gövdesi.", "2026-08-24T11:00:00+03:00")

	a := NewListingAdapter(listingOutlet(cssListing()), gate, fetcher, testLogger())

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
	if first.Raw.URL != "https://hurriyet.example.com/haber/ekonomi-haberi-basligi" {
		t.Errorf("relative links must resolve against the listing URL, got %s", first.Raw.URL)
	}
	if first.Raw.Title != "Ekonomi haberi tam başlığı" {
		t.Errorf("page title should override link text, got %q", first.Raw.Title)
	}
	if first.Raw.Body != "Gövde metni burada." {
		t.Errorf("unexpected body: %q", first.Raw.Body)
	}
	if first.Raw.PublishedRaw != "2026-08-24T10:00:00+03:00" {
		t.Errorf("datetime attribute preferred over element text, got %q", first.Raw.PublishedRaw)
	}
}

func TestListingAdapterListingFailureIsFatal(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.errs["https://hurriyet.example.com/gundem"] = &types.FetchError{
		URL: "https://hurriyet.example.com/gundem", StatusCode: 500, Err: errors.New("down"),
	}

	a := NewListingAdapter(listingOutlet(cssListing()), gate, fetcher, testLogger())

	if _, err := a.FetchCandidates(context.Background(), time.Time{}); err == nil {
		t.Fatal("a listing-page failure must abort the adapter")
	}
}

func TestListingAdapterFiltersLinks(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://hurriyet.example.com/gundem"] = `<html><body>
<a class="news-link" href="/haber/gecerli-haber-basligi">Geçerli haber başlığı</a>
<a class="news-link" href="/video/klip">Video klip sayfası burada</a>
<a class="news-link" href="/arsiv/haber/eski-haber-basligi">Eski arşiv haber başlığı</a>
<a class="news-link" href="/haber/kisa">Kısa</a>
<a class="news-link" href="https://other-site.example.com/haber/dis-baglanti">Dış bağlantı haberi</a>
<a class="news-link" href="/haber/gecerli-haber-basligi">Geçerli haber başlığı</a>
</body></html>`
	fetcher.pages["https://hurriyet.example.com/haber/gecerli-haber-basligi"] =
		articlePage("Geçerli haber", "Gövde.", "")

	a := NewListingAdapter(listingOutlet(cssListing()), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	// Off-prefix, mid-path prefix, short-title, off-host, and duplicate
	// links are all dropped.
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Raw.URL != "https://hurriyet.example.com/haber/gecerli-haber-basligi" {
		t.Errorf("unexpected URL: %s", cands[0].Raw.URL)
	}
}

func TestListingAdapterMaxArticlesCap(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()

	listing := `<html><body>`
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("/haber/uzun-haber-basligi-%d", i)
		listing += fmt.Sprintf(`<a class="news-link" href="%s">Uzun haber başlığı %d</a>`, u, i)
		fetcher.pages["https://hurriyet.example.com"+u] = articlePage(fmt.Sprintf("Haber %d", i), "Gövde.", "")
	}
	listing += `</body></html>`
	fetcher.pages["https://hurriyet.example.com/gundem"] = listing

	cfg := cssListing()
	cfg.MaxArticles = 3
	a := NewListingAdapter(listingOutlet(cfg), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if cands := drain(t, ch); len(cands) != 3 {
		t.Errorf("expected cap of 3 candidates, got %d", len(cands))
	}
}

func TestListingAdapterDeniedArticleSkipped(t *testing.T) {
	gate := &fakeGate{denied: map[string]bool{
		"https://hurriyet.example.com/haber/kapali-haber-basligi": true,
	}}
	fetcher := newFakeFetcher()
	fetcher.pages["https://hurriyet.example.com/gundem"] = `<html><body>
<a class="news-link" href="/haber/kapali-haber-basligi">Kapalı haber başlığı</a>
<a class="news-link" href="/haber/acik-haber-basligi">Açık haber başlığı</a>
</body></html>`
	fetcher.pages["https://hurriyet.example.com/haber/acik-haber-basligi"] =
		articlePage("Açık haber", "Gövde.", "")

	a := NewListingAdapter(listingOutlet(cssListing()), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	if len(cands) != 1 {
		t.Fatalf("denied article should be skipped silently, got %d candidates", len(cands))
	}
	if cands[0].Err != nil {
		t.Errorf("unexpected candidate error: %v", cands[0].Err)
	}
}

func TestListingAdapterArticleFailureIsPerItem(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://hurriyet.example.com/gundem"] = `<html><body>
<a class="news-link" href="/haber/bozuk-haber-basligi">Bozuk haber başlığı</a>
<a class="news-link" href="/haber/saglam-haber-basligi">Sağlam haber başlığı</a>
</body></html>`
	fetcher.errs["https://hurriyet.example.com/haber/bozuk-haber-basligi"] = &types.FetchError{
		URL: "https://hurriyet.example.com/haber/bozuk-haber-basligi", StatusCode: 500, Err: errors.New("down"),
	}
	fetcher.pages["https://hurriyet.example.com/haber/saglam-haber-basligi"] =
		articlePage("Sağlam haber", "Gövde.", "")

	a := NewListingAdapter(listingOutlet(cssListing()), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	var ok, failed int
	for _, c := range cands {
		if c.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("expected 1 ok and 1 failed candidate, got %d and %d", ok, failed)
	}
}

func TestListingAdapterXPathSelectors(t *testing.T) {
	gate := &fakeGate{}
	fetcher := newFakeFetcher()
	fetcher.pages["https://hurriyet.example.com/gundem"] = `<html><body>
<a class="news-link" href="/haber/xpath-haber-basligi">XPath haber başlığı</a>
</body></html>`
	fetcher.pages["https://hurriyet.example.com/haber/xpath-haber-basligi"] =
		articlePage("XPath haber tam başlığı", "XPath gövdesi.", "2026-08-24T09:00:00Z")

	cfg := config.ListingConfig{
		URL:           "https://hurriyet.example.com/gundem",
		SelectorType:  "xpath",
		LinkSelector:  `//a[@class="news-link"]`,
		PathPrefixes:  []string{"/haber/"},
		TitleSelector: `//h1[@class="title"]`,
		BodySelector:  `//div[@class="content"]/p`,
		DateSelector:  `//time[@class="published"]`,
		MinTitleLen:   10,
	}
	a := NewListingAdapter(listingOutlet(cfg), gate, fetcher, testLogger())

	ch, err := a.FetchCandidates(context.Background(), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	cands := drain(t, ch)

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	raw := cands[0].Raw
	if raw.Title != "XPath haber tam başlığı" {
		t.Errorf("unexpected title: %q", raw.Title)
	}
	if raw.Body != "XPath gövdesi." {
		t.Errorf("unexpected body: %q", raw.Body)
	}
	if raw.PublishedRaw != "2026-08-24T09:00:00Z" {
		t.Errorf("unexpected date: %q", raw.PublishedRaw)
	}
}
