// Package normalize converts raw outlet candidates into canonical article
// records: cleaned text, parsed timestamps, canonical URLs, and the
// content-derived identifiers the dedup engine keys on.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

// fallbackDateFormats are tried for every outlet after its own formats.
var fallbackDateFormats = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer is a stateless transform from RawArticle to Article.
type Normalizer struct {
	dateFormats map[types.Outlet][]string
	logger      *slog.Logger
}

// New creates a Normalizer with the per-outlet date formats from config.
func New(cfg *config.Config, logger *slog.Logger) *Normalizer {
	formats := make(map[types.Outlet][]string, len(cfg.Outlets))
	for _, o := range cfg.Outlets {
		if len(o.DateFormats) > 0 {
			formats[types.Outlet(o.Name)] = o.DateFormats
		}
	}
	return &Normalizer{
		dateFormats: formats,
		logger:      logger.With("component", "normalizer"),
	}
}

// Normalize converts a raw candidate into a canonical Article. It returns
// a *types.ParseError when title or body is empty after cleaning; such
// candidates are dropped and counted as rejected.
func (n *Normalizer) Normalize(raw *types.RawArticle) (*types.Article, error) {
	canonical, err := CanonicalURL(raw.URL)
	if err != nil {
		return nil, &types.ParseError{Outlet: raw.Outlet, URL: raw.URL, Err: err}
	}

	title := CleanText(raw.Title)
	body := CleanText(raw.Body)

	if title == "" {
		return nil, &types.ParseError{Outlet: raw.Outlet, URL: raw.URL, Err: errors.New("empty title after cleaning")}
	}
	if body == "" {
		return nil, &types.ParseError{Outlet: raw.Outlet, URL: raw.URL, Err: errors.New("empty body after cleaning")}
	}

	publishedAt := n.parsePublished(raw.Outlet, raw.PublishedRaw)
	if publishedAt == nil && raw.PublishedRaw != "" {
		n.logger.Debug("unparseable publish date",
			"outlet", raw.Outlet,
			"value", raw.PublishedRaw,
		)
	}

	return &types.Article{
		ID:              ArticleID(raw.Outlet, canonical),
		Outlet:          raw.Outlet,
		URL:             canonical,
		Title:           title,
		Body:            body,
		PublishedAt:     publishedAt,
		Fingerprint:     Fingerprint(title, body),
		FirstSeenOutlet: raw.Outlet,
	}, nil
}

// parsePublished tries the outlet's known date layouts, then the shared
// fallback list. A date that parses under no layout yields nil; the store
// writer's fetch time then stands in for ordering purposes.
func (n *Normalizer) parsePublished(outlet types.Outlet, value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range n.dateFormats[outlet] {
		if t, err := time.Parse(layout, value); err == nil {
			u := t.UTC()
			return &u
		}
	}
	for _, layout := range fallbackDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// CleanText strips markup from a text fragment and collapses whitespace.
// Plain text passes through with whitespace collapsed.
func CleanText(fragment string) string {
	if fragment == "" {
		return ""
	}

	var sb strings.Builder
	if strings.ContainsRune(fragment, '<') {
		nodes, err := xhtml.ParseFragment(strings.NewReader(fragment), nil)
		if err != nil {
			// Treat unparseable markup as opaque text.
			sb.WriteString(fragment)
		} else {
			for _, node := range nodes {
				collectText(node, &sb)
			}
		}
	} else {
		// Feed items often carry entity-escaped plain text.
		sb.WriteString(html.UnescapeString(fragment))
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}

// collectText appends the text content of a node tree, skipping script,
// style, and other non-content subtrees.
func collectText(node *xhtml.Node, sb *strings.Builder) {
	if node.Type == xhtml.ElementNode {
		switch node.Data {
		case "script", "style", "noscript", "iframe", "template":
			return
		}
	}
	if node.Type == xhtml.TextNode {
		sb.WriteString(node.Data)
		sb.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

// CanonicalURL normalizes an article URL:
// - lowercases scheme and host
// - removes query, fragment, and default ports
// - trims the trailing slash (except root)
// Query stripping makes the URL stable across tracking parameters, so the
// derived id survives re-fetches.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidURL, rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""

	// Remove default ports
	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	// Remove trailing slash (except root "/")
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// ArticleID derives the stable article identifier from (outlet, canonical
// URL). Re-fetches of the same URL from the same outlet map to the same id.
func ArticleID(outlet types.Outlet, canonicalURL string) string {
	return digest(string(outlet) + "|" + canonicalURL)
}

// Fingerprint computes the content digest over normalized title and body,
// case-folded and whitespace-collapsed so trivial formatting differences
// collapse to the same value.
func Fingerprint(title, body string) string {
	return digest(foldText(title) + "\n" + foldText(body))
}

// foldText case-folds and collapses whitespace for fingerprinting.
func foldText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// digest creates a compact 128-bit hex hash.
func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:16])
}
