package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/habergo/habergo/internal/config"
	"github.com/habergo/habergo/internal/types"
)

// PolicyFetcher fetches crawl-policy documents. Satisfied by the HTTP
// fetcher; tests substitute a fake.
type PolicyFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)
}

// Gate wraps every outbound fetch: it checks the outlet's crawl policy and
// enforces a per-outlet minimum interval between requests. Adapters must
// not bypass it.
//
// The gate has an explicit lifecycle: constructed at process start, policy
// cache refreshed on TTL, torn down with the process. The clock is
// injectable so tests can drive the throttle deterministically.
type Gate struct {
	agentToken string
	ttl        time.Duration
	fetcher    PolicyFetcher
	logger     *slog.Logger

	mu       sync.Mutex
	policies map[string]*policyEntry // by host
	throttle map[types.Outlet]*outletThrottle

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// policyEntry caches parsed robots.txt rules for one host.
type policyEntry struct {
	rules     *robotsRules // nil when the policy could not be fetched
	fetchedAt time.Time
}

// outletThrottle tracks the last authorized request per outlet. The mutex
// is held across the throttle wait so concurrent waiters for the same
// outlet serialize.
type outletThrottle struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

// NewGate creates a compliance gate from configuration. Per-outlet
// intervals default to compliance.min_interval unless the outlet overrides
// them.
func NewGate(cfg *config.Config, pf PolicyFetcher, logger *slog.Logger) *Gate {
	g := &Gate{
		agentToken: agentToken(cfg.Compliance.UserAgent),
		ttl:        cfg.Compliance.PolicyTTL,
		fetcher:    pf,
		logger:     logger.With("component", "compliance"),
		policies:   make(map[string]*policyEntry),
		throttle:   make(map[types.Outlet]*outletThrottle),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, o := range cfg.Outlets {
		interval := o.MinInterval
		if interval <= 0 {
			interval = cfg.Compliance.MinInterval
		}
		g.throttle[types.Outlet(o.Name)] = &outletThrottle{interval: interval}
	}
	return g
}

// Authorize checks whether the outlet's crawl policy allows fetching the
// given URL. A disallowed path returns ErrDenied — a normal negative
// result, not a failure. A policy document that cannot be fetched is
// treated as allowing everything.
func (g *Gate) Authorize(ctx context.Context, outlet types.Outlet, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", types.ErrInvalidURL, rawURL)
	}

	rules := g.rulesFor(ctx, u.Scheme+"://"+u.Host, outlet)
	if rules == nil {
		return nil // no policy available: allow
	}

	if !rules.allows(u.Path) {
		g.logger.Debug("path disallowed by crawl policy",
			"outlet", outlet,
			"path", u.Path,
		)
		return fmt.Errorf("%w: %s", types.ErrDenied, u.Path)
	}
	return nil
}

// Wait blocks cooperatively until the outlet's minimum inter-request
// interval has elapsed since its last authorized request, then records the
// new request timestamp. Returns early with the context error on
// cancellation, leaving the timestamp untouched.
func (g *Gate) Wait(ctx context.Context, outlet types.Outlet) error {
	t := g.outletThrottle(outlet)

	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := g.now().Sub(t.last)
	if wait := t.interval - elapsed; wait > 0 {
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
	t.last = g.now()
	return nil
}

// Interval returns the effective minimum interval for an outlet.
func (g *Gate) Interval(outlet types.Outlet) time.Duration {
	t := g.outletThrottle(outlet)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// rulesFor returns cached rules for a host, refreshing on TTL expiry.
// Policy staleness is tolerated up to the TTL; re-fetching on every
// request would be wasteful.
func (g *Gate) rulesFor(ctx context.Context, origin string, outlet types.Outlet) *robotsRules {
	g.mu.Lock()
	entry, ok := g.policies[origin]
	fresh := ok && g.now().Sub(entry.fetchedAt) < g.ttl
	g.mu.Unlock()

	if fresh {
		return entry.rules
	}

	rules := g.fetchPolicy(ctx, origin)

	g.mu.Lock()
	g.policies[origin] = &policyEntry{rules: rules, fetchedAt: g.now()}
	g.mu.Unlock()

	// A robots.txt crawl-delay larger than the configured interval raises
	// the outlet's throttle floor.
	if rules != nil && rules.crawlDelay > 0 {
		t := g.outletThrottle(outlet)
		t.mu.Lock()
		if rules.crawlDelay > t.interval {
			g.logger.Info("raising outlet interval to robots crawl-delay",
				"outlet", outlet,
				"crawl_delay", rules.crawlDelay,
			)
			t.interval = rules.crawlDelay
		}
		t.mu.Unlock()
	}

	return rules
}

// fetchPolicy downloads and parses a host's robots.txt.
func (g *Gate) fetchPolicy(ctx context.Context, origin string) *robotsRules {
	resp, err := g.fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil {
		g.logger.Debug("robots.txt unavailable, allowing all", "origin", origin, "error", err)
		return nil
	}
	if !resp.IsSuccess() {
		return nil
	}
	return parseRobotsTxt(string(resp.Body), g.agentToken)
}

func (g *Gate) outletThrottle(outlet types.Outlet) *outletThrottle {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.throttle[outlet]
	if !ok {
		t = &outletThrottle{}
		g.throttle[outlet] = t
	}
	return t
}

// agentToken extracts the product token from a User-Agent string, the part
// robots.txt user-agent sections are matched against.
func agentToken(userAgent string) string {
	token := userAgent
	if idx := strings.IndexAny(token, "/ "); idx > 0 {
		token = token[:idx]
	}
	return strings.ToLower(token)
}

// sleepContext blocks for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
