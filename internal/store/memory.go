package store

import (
	"context"
	"sort"
	"sync"

	"github.com/habergo/habergo/internal/types"
)

// MemoryStore is an in-memory Store used in tests and for dry runs.
type MemoryStore struct {
	mu            sync.RWMutex
	articles      map[string]*types.Article
	byFingerprint map[string][]string // fingerprint -> article ids, insertion order
	groups        map[string]*types.DedupGroup
	groupByMember map[string]string // article id -> group id
	reports       []*types.RunReport
	insertSeq     []string // article ids in insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:      make(map[string]*types.Article),
		byFingerprint: make(map[string][]string),
		groups:        make(map[string]*types.DedupGroup),
		groupByMember: make(map[string]string),
	}
}

func (s *MemoryStore) GetArticle(_ context.Context, id string) (*types.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, fingerprint string) (*types.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byFingerprint[fingerprint]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	copied := *s.articles[ids[0]]
	return &copied, nil
}

func (s *MemoryStore) InsertArticle(_ context.Context, a *types.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.articles[a.ID]; exists {
		return types.ErrConflict
	}
	copied := *a
	s.articles[a.ID] = &copied
	s.byFingerprint[a.Fingerprint] = append(s.byFingerprint[a.Fingerprint], a.ID)
	s.insertSeq = append(s.insertSeq, a.ID)
	return nil
}

func (s *MemoryStore) ListArticles(_ context.Context, q ArticleQuery) ([]*types.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Article
	for _, id := range s.insertSeq {
		a := s.articles[id]
		if q.Outlet != "" && a.Outlet != q.Outlet {
			continue
		}
		if q.Fingerprint != "" && a.Fingerprint != q.Fingerprint {
			continue
		}
		if !q.PublishedFrom.IsZero() && (a.PublishedAt == nil || a.PublishedAt.Before(q.PublishedFrom)) {
			continue
		}
		if !q.PublishedTo.IsZero() && (a.PublishedAt == nil || a.PublishedAt.After(q.PublishedTo)) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) GetGroup(_ context.Context, groupID string) (*types.DedupGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGroup(g), nil
}

func (s *MemoryStore) GroupForArticle(_ context.Context, articleID string) (*types.DedupGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groupID, ok := s.groupByMember[articleID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGroup(s.groups[groupID]), nil
}

func (s *MemoryStore) InsertGroup(_ context.Context, g *types.DedupGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.GroupID]; exists {
		return types.ErrConflict
	}
	s.groups[g.GroupID] = copyGroup(g)
	for _, id := range g.MemberIDs {
		s.groupByMember[id] = g.GroupID
	}
	return nil
}

func (s *MemoryStore) AddGroupMember(_ context.Context, groupID, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if g.Contains(articleID) {
		return nil
	}
	g.MemberIDs = append(g.MemberIDs, articleID)
	s.groupByMember[articleID] = groupID
	return nil
}

func (s *MemoryStore) SaveRunReport(_ context.Context, r *types.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *r
	copied.Adapters = append([]types.AdapterReport(nil), r.Adapters...)
	s.reports = append(s.reports, &copied)
	return nil
}

// RunReports returns all saved run reports, oldest first.
func (s *MemoryStore) RunReports() []*types.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*types.RunReport(nil), s.reports...)
}

// GroupCount returns the number of dedup groups.
func (s *MemoryStore) GroupCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// ArticleCount returns the number of stored articles.
func (s *MemoryStore) ArticleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func copyGroup(g *types.DedupGroup) *types.DedupGroup {
	copied := *g
	copied.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &copied
}
