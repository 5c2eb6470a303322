package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for habergo.
type Config struct {
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Compliance ComplianceConfig `mapstructure:"compliance" yaml:"compliance"`
	Dedup      DedupConfig      `mapstructure:"dedup"      yaml:"dedup"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"   yaml:"schedule"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Outlets    []OutletConfig   `mapstructure:"outlets"    yaml:"outlets"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// ComplianceConfig controls the crawl-policy gate.
type ComplianceConfig struct {
	// UserAgent is the crawl identity sent on every request and matched
	// against robots.txt user-agent sections.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`

	// MinInterval is the default minimum time between requests to the same
	// outlet. Outlets may override it; a larger robots.txt crawl-delay wins.
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`

	// PolicyTTL bounds how stale a cached robots.txt may be before it is
	// re-fetched.
	PolicyTTL time.Duration `mapstructure:"policy_ttl" yaml:"policy_ttl"`
}

// DedupConfig controls the deduplication engine.
type DedupConfig struct {
	// SimilarityThreshold is the minimum title token-overlap ratio for a
	// near-duplicate match. Tuned empirically.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`

	// WindowSize bounds the recent-candidate buffer scanned by the fuzzy
	// rule.
	WindowSize int `mapstructure:"window_size" yaml:"window_size"`
}

// StorageConfig controls the article store.
type StorageConfig struct {
	Type              string `mapstructure:"type"               yaml:"type"` // mongo, memory
	URI               string `mapstructure:"uri"                yaml:"uri"`
	Database          string `mapstructure:"database"           yaml:"database"`
	ArticleCollection string `mapstructure:"article_collection" yaml:"article_collection"`
	GroupCollection   string `mapstructure:"group_collection"   yaml:"group_collection"`
	RunCollection     string `mapstructure:"run_collection"     yaml:"run_collection"`
}

// ScheduleConfig controls recurring runs.
type ScheduleConfig struct {
	// Spec is a cron expression, e.g. "0 * * * *" for hourly.
	Spec string `mapstructure:"spec" yaml:"spec"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// OutletConfig describes one news source.
type OutletConfig struct {
	Name string `mapstructure:"name" yaml:"name"`

	// Kind selects the adapter variant: "feed" or "listing".
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Feeds lists the feed document URLs for feed-backed outlets. Several
	// category feeds per outlet are common.
	Feeds []string `mapstructure:"feeds" yaml:"feeds"`

	// Listing configures the scrape variant for outlets without a feed.
	Listing ListingConfig `mapstructure:"listing" yaml:"listing"`

	// MinInterval overrides compliance.min_interval for this outlet.
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`

	// DateFormats are the outlet's known published-date layouts, tried
	// before the shared fallback list.
	DateFormats []string `mapstructure:"date_formats" yaml:"date_formats"`
}

// ListingConfig describes how to scrape a listing page and its articles.
type ListingConfig struct {
	URL string `mapstructure:"url" yaml:"url"`

	// SelectorType selects the extraction engine: "css" or "xpath".
	SelectorType string `mapstructure:"selector_type" yaml:"selector_type"`

	// LinkSelector extracts candidate article links from the listing page.
	LinkSelector string `mapstructure:"link_selector" yaml:"link_selector"`

	// PathPrefixes restrict discovered links to paths starting with one of
	// the given prefixes.
	PathPrefixes []string `mapstructure:"path_prefixes" yaml:"path_prefixes"`

	// TitleSelector, BodySelector and DateSelector extract fields from an
	// article page.
	TitleSelector string `mapstructure:"title_selector" yaml:"title_selector"`
	BodySelector  string `mapstructure:"body_selector"  yaml:"body_selector"`
	DateSelector  string `mapstructure:"date_selector"  yaml:"date_selector"`

	// MinTitleLen drops navigation links masquerading as articles.
	MinTitleLen int `mapstructure:"min_title_len" yaml:"min_title_len"`

	// MaxArticles caps article-page fetches per run.
	MaxArticles int `mapstructure:"max_articles" yaml:"max_articles"`
}

// DefaultConfig returns a Config with sensible defaults and the standard
// outlet set.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			RequestTimeout:  15 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     5 * 1024 * 1024, // 5MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Compliance: ComplianceConfig{
			UserAgent:   "habergo/1.0 (+https://github.com/habergo/habergo)",
			MinInterval: 2 * time.Second,
			PolicyTTL:   1 * time.Hour,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.5,
			WindowSize:          256,
		},
		Storage: StorageConfig{
			Type:              "mongo",
			URI:               "mongodb://localhost:27017",
			Database:          "habergo",
			ArticleCollection: "articles",
			GroupCollection:   "dedup_groups",
			RunCollection:     "run_reports",
		},
		Schedule: ScheduleConfig{
			Spec: "0 * * * *", // hourly
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Outlets: defaultOutlets(),
	}
}

// defaultOutlets is the standard source set: four feed-backed outlets and
// one listing-scrape outlet.
func defaultOutlets() []OutletConfig {
	return []OutletConfig{
		{
			Name: "sozcu",
			Kind: "feed",
			Feeds: []string{
				"https://www.sozcu.com.tr/feed/",
				"https://www.sozcu.com.tr/kategori/gundem/feed/",
				"https://www.sozcu.com.tr/kategori/ekonomi/feed/",
				"https://www.sozcu.com.tr/kategori/dunya/feed/",
				"https://www.sozcu.com.tr/kategori/spor/feed/",
			},
		},
		{
			Name: "bbcturkce",
			Kind: "feed",
			Feeds: []string{
				"https://feeds.bbci.co.uk/turkce/rss.xml",
			},
		},
		{
			Name: "sputnik",
			Kind: "feed",
			Feeds: []string{
				"https://tr.sputniknews.com/export/rss2/archive/index.xml",
			},
		},
		{
			Name: "ntv",
			Kind: "feed",
			Feeds: []string{
				"https://www.ntv.com.tr/gundem.rss",
				"https://www.ntv.com.tr/ekonomi.rss",
				"https://www.ntv.com.tr/dunya.rss",
				"https://www.ntv.com.tr/turkiye.rss",
				"https://www.ntv.com.tr/teknoloji.rss",
			},
		},
		{
			Name: "hurriyet",
			Kind: "listing",
			Listing: ListingConfig{
				URL:           "https://www.hurriyet.com.tr/",
				SelectorType:  "css",
				LinkSelector:  "a[href]",
				PathPrefixes:  []string{"/haber/", "/gundem/", "/ekonomi/", "/spor/"},
				TitleSelector: "h1",
				BodySelector:  "article",
				DateSelector:  "time",
				MinTitleLen:   15,
				MaxArticles:   50,
			},
			DateFormats: []string{"02.01.2006 15:04", "02.01.2006"},
		},
	}
}
