package types

import (
	"time"
)

// Outlet identifies one configured news source.
type Outlet string

// RawArticle is an outlet-specific candidate as produced by a source adapter.
// It is transient: it exists only within one adapter invocation and is never
// persisted.
type RawArticle struct {
	// Outlet is the source that produced this candidate.
	Outlet Outlet

	// URL is the article URL as discovered (not yet canonicalized).
	URL string

	// Title is the raw title text, possibly containing markup.
	Title string

	// Body is the raw body, HTML or plain text.
	Body string

	// PublishedRaw is the unparsed published-date string, if any.
	PublishedRaw string
}

// Article is the canonical, persisted record shape.
type Article struct {
	// ID is derived from (outlet, canonical URL) and is stable across
	// re-fetches of the same URL from the same outlet.
	ID string `bson:"_id" json:"id"`

	// Outlet is the source this row was ingested from.
	Outlet Outlet `bson:"outlet" json:"outlet"`

	// URL is the canonical, query-stripped article URL.
	URL string `bson:"url" json:"url"`

	// Title is the normalized title text.
	Title string `bson:"title" json:"title"`

	// Body is the normalized body text.
	Body string `bson:"body" json:"body"`

	// PublishedAt is the parsed publish timestamp in UTC. Nil when the
	// outlet's date string could not be parsed.
	PublishedAt *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`

	// FetchedAt is set by the store writer at commit time.
	FetchedAt time.Time `bson:"fetched_at" json:"fetched_at"`

	// Fingerprint is a content-derived digest over normalized title+body,
	// used for exact-duplicate detection across outlets.
	Fingerprint string `bson:"fingerprint" json:"fingerprint"`

	// FirstSeenOutlet is the outlet that contributed the first-stored copy
	// of this story. Equals Outlet for rows that are not duplicates.
	FirstSeenOutlet Outlet `bson:"first_seen_outlet" json:"first_seen_outlet"`
}

// DedupGroup is a set of stored articles judged to represent the same
// real-world story. Groups grow by appending members and are never deleted.
type DedupGroup struct {
	GroupID          string    `bson:"_id" json:"group_id"`
	MemberIDs        []string  `bson:"member_ids" json:"member_ids"`
	RepresentativeID string    `bson:"representative_id" json:"representative_id"`
	// Fuzzy marks groups formed by near-duplicate similarity rather than an
	// exact fingerprint match, for downstream auditability.
	Fuzzy     bool      `bson:"fuzzy" json:"fuzzy"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Contains reports whether id is already a member of the group.
func (g *DedupGroup) Contains(id string) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// DecisionKind classifies a dedup engine verdict for one candidate.
type DecisionKind int

const (
	// DecisionNew means the candidate is a fresh story.
	DecisionNew DecisionKind = iota

	// DecisionRefetch means a row with the same id already exists; the
	// candidate is an idempotent re-ingestion and causes no writes.
	DecisionRefetch

	// DecisionExactDuplicate means an existing row has the same fingerprint.
	DecisionExactDuplicate

	// DecisionNearDuplicate means the candidate matched an existing story
	// under the fuzzy title-similarity rule.
	DecisionNearDuplicate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNew:
		return "new"
	case DecisionRefetch:
		return "refetch"
	case DecisionExactDuplicate:
		return "exact_duplicate"
	case DecisionNearDuplicate:
		return "near_duplicate"
	default:
		return "unknown"
	}
}

// Decision is the dedup engine's verdict for one candidate.
type Decision struct {
	Kind DecisionKind

	// MatchedID is the id of the existing article the candidate matched
	// (the fingerprint owner for exact matches, the window entry for fuzzy
	// matches). Empty for New and Refetch.
	MatchedID string

	// GroupID is the existing group the candidate should join, when the
	// matched article already belongs to one. Empty when the group must be
	// created lazily at commit time.
	GroupID string
}

// RunStatus is the terminal state of an orchestrator run.
type RunStatus string

const (
	RunStatusScheduled       RunStatus = "scheduled"
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
)

// AdapterReport holds per-adapter counters for one run.
type AdapterReport struct {
	Outlet     Outlet `bson:"outlet" json:"outlet"`
	Fetched    int    `bson:"fetched" json:"fetched"`
	Normalized int    `bson:"normalized" json:"normalized"`
	Accepted   int    `bson:"accepted" json:"accepted"`
	Duplicate  int    `bson:"duplicate" json:"duplicate"`
	Rejected   int    `bson:"rejected" json:"rejected"`
	Failed     int    `bson:"failed" json:"failed"`

	// Fatal is set when the adapter aborted at the adapter level (listing
	// page or feed document fetch failure).
	Fatal bool `bson:"fatal" json:"fatal"`

	// Error is the adapter-level error summary, when Fatal is set.
	Error string `bson:"error,omitempty" json:"error,omitempty"`

	// Skipped is set when the run skipped this outlet because a prior run
	// for it had not finished.
	Skipped bool `bson:"skipped" json:"skipped"`
}

// RunReport is the audit record for one orchestrator execution. It is
// created at run start, finalized at run end, and never mutated afterwards.
type RunReport struct {
	RunID      string          `bson:"_id" json:"run_id"`
	StartedAt  time.Time       `bson:"started_at" json:"started_at"`
	FinishedAt time.Time       `bson:"finished_at" json:"finished_at"`
	Status     RunStatus       `bson:"status" json:"status"`
	Adapters   []AdapterReport `bson:"adapters" json:"adapters"`
}

// Totals sums the per-adapter counters.
func (r *RunReport) Totals() AdapterReport {
	var t AdapterReport
	for _, a := range r.Adapters {
		t.Fetched += a.Fetched
		t.Normalized += a.Normalized
		t.Accepted += a.Accepted
		t.Duplicate += a.Duplicate
		t.Rejected += a.Rejected
		t.Failed += a.Failed
	}
	return t
}
