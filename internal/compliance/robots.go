package compliance

import (
	"fmt"
	"strings"
	"time"
)

// robotsRules holds parsed robots.txt rules for one host, as they apply to
// the configured crawl identity.
type robotsRules struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
}

// allows checks a URL path against the parsed rules. Allow rules override
// disallow rules, per the de-facto robots.txt standard.
func (r *robotsRules) allows(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, pattern := range r.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range r.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

// parseRobotsTxt parses robots.txt content, keeping only the sections that
// apply to agentToken or the wildcard agent.
func parseRobotsTxt(content, agentToken string) *robotsRules {
	rules := &robotsRules{}
	agentToken = strings.ToLower(agentToken)

	inOurSection := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		// Remove comments
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			inOurSection = agent == "*" || strings.Contains(agent, agentToken)
		case "disallow":
			if inOurSection && value != "" {
				rules.disallowed = append(rules.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				rules.allowed = append(rules.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					rules.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
	}

	return rules
}

// matchRobotsPattern checks if a URL path matches a robots.txt pattern.
// Supports * (any sequence) and $ (end of URL) wildcards.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	// Handle $ anchor at end
	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}

	// Handle * wildcards
	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}

	// Simple prefix match
	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

// matchWildcard handles * wildcard matching in robots.txt patterns.
func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			// First part must match from the start
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
