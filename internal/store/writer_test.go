package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/habergo/habergo/internal/types"
)

func testWriter(t *testing.T) (*Writer, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore()
	w := NewWriter(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	seq := 0
	w.newGroupID = func() string { seq++; return fmt.Sprintf("grp-%d", seq) }
	return w, st
}

func testArticle(id, outlet, fingerprint string) *types.Article {
	return &types.Article{
		ID:              id,
		Outlet:          types.Outlet(outlet),
		URL:             "https://" + outlet + ".example.com/" + id,
		Title:           "başlık " + id,
		Body:            "gövde",
		Fingerprint:     fingerprint,
		FirstSeenOutlet: types.Outlet(outlet),
	}
}

func TestCommitNew(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	row, d, err := w.Commit(ctx, testArticle("id-1", "ntv", "fp-1"), types.Decision{Kind: types.DecisionNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionNew {
		t.Fatalf("expected new, got %s", d.Kind)
	}
	if row.FetchedAt.IsZero() {
		t.Error("fetched at must be stamped")
	}
	if st.ArticleCount() != 1 {
		t.Errorf("expected 1 article, got %d", st.ArticleCount())
	}
	if st.GroupCount() != 0 {
		t.Errorf("no group for a new story, got %d", st.GroupCount())
	}
}

func TestCommitRefetchIsNoop(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	first, _, err := w.Commit(ctx, testArticle("id-1", "ntv", "fp-1"), types.Decision{Kind: types.DecisionNew})
	if err != nil {
		t.Fatal(err)
	}

	// Re-ingesting the same id with changed text writes nothing.
	changed := testArticle("id-1", "ntv", "fp-changed")
	changed.Title = "güncellenmiş başlık"
	row, d, err := w.Commit(ctx, changed, types.Decision{Kind: types.DecisionNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionRefetch {
		t.Fatalf("expected refetch, got %s", d.Kind)
	}
	if row.Title != first.Title {
		t.Errorf("stored row must be unchanged, got title %q", row.Title)
	}
	if st.ArticleCount() != 1 {
		t.Errorf("expected 1 article, got %d", st.ArticleCount())
	}
}

func TestCommitExactDuplicateJoinsGroup(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	if _, _, err := w.Commit(ctx, testArticle("id-ntv", "ntv", "fp-shared"), types.Decision{Kind: types.DecisionNew}); err != nil {
		t.Fatal(err)
	}

	row, d, err := w.Commit(ctx, testArticle("id-sozcu", "sozcu", "fp-shared"),
		types.Decision{Kind: types.DecisionExactDuplicate, MatchedID: "id-ntv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionExactDuplicate {
		t.Fatalf("expected exact duplicate, got %s", d.Kind)
	}
	if d.GroupID == "" {
		t.Fatal("expected a group id")
	}
	if row.FirstSeenOutlet != "ntv" {
		t.Errorf("first seen outlet must come from the matched article, got %s", row.FirstSeenOutlet)
	}

	group, err := st.GetGroup(ctx, d.GroupID)
	if err != nil {
		t.Fatal(err)
	}
	if group.RepresentativeID != "id-ntv" {
		t.Errorf("representative should be the prior article, got %s", group.RepresentativeID)
	}
	if group.Fuzzy {
		t.Error("exact match group must not be tagged fuzzy")
	}
	if len(group.MemberIDs) != 2 || !group.Contains("id-ntv") || !group.Contains("id-sozcu") {
		t.Errorf("unexpected members: %v", group.MemberIDs)
	}
}

func TestCommitNearDuplicateCreatesFuzzyGroup(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	if _, _, err := w.Commit(ctx, testArticle("id-1", "ntv", "fp-1"), types.Decision{Kind: types.DecisionNew}); err != nil {
		t.Fatal(err)
	}

	_, d, err := w.Commit(ctx, testArticle("id-2", "sozcu", "fp-2"),
		types.Decision{Kind: types.DecisionNearDuplicate, MatchedID: "id-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionNearDuplicate {
		t.Fatalf("expected near duplicate, got %s", d.Kind)
	}

	group, err := st.GetGroup(ctx, d.GroupID)
	if err != nil {
		t.Fatal(err)
	}
	if !group.Fuzzy {
		t.Error("fuzzy match group must be tagged fuzzy")
	}
}

func TestCommitThirdMemberJoinsExistingGroup(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	w.Commit(ctx, testArticle("id-1", "ntv", "fp-shared"), types.Decision{Kind: types.DecisionNew})
	_, d2, _ := w.Commit(ctx, testArticle("id-2", "sozcu", "fp-shared"),
		types.Decision{Kind: types.DecisionExactDuplicate, MatchedID: "id-1"})
	_, d3, err := w.Commit(ctx, testArticle("id-3", "bbcturkce", "fp-shared"),
		types.Decision{Kind: types.DecisionExactDuplicate, MatchedID: "id-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d3.GroupID != d2.GroupID {
		t.Errorf("third member must join the existing group, got %s and %s", d2.GroupID, d3.GroupID)
	}
	if st.GroupCount() != 1 {
		t.Errorf("expected exactly 1 group, got %d", st.GroupCount())
	}
	group, _ := st.GetGroup(ctx, d3.GroupID)
	if len(group.MemberIDs) != 3 {
		t.Errorf("expected 3 members, got %v", group.MemberIDs)
	}
}

func TestCommitUpgradesStaleNewToExactDuplicate(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	// Another commit stored the same fingerprint after the engine's read.
	if _, _, err := w.Commit(ctx, testArticle("id-1", "ntv", "fp-1"), types.Decision{Kind: types.DecisionNew}); err != nil {
		t.Fatal(err)
	}

	_, d, err := w.Commit(ctx, testArticle("id-2", "sozcu", "fp-1"), types.Decision{Kind: types.DecisionNew})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionExactDuplicate {
		t.Fatalf("stale new must upgrade to exact duplicate, got %s", d.Kind)
	}
	if st.GroupCount() != 1 {
		t.Errorf("expected a group, got %d", st.GroupCount())
	}
}

func TestCommitDegradesVanishedFuzzyMatchToNew(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	_, d, err := w.Commit(ctx, testArticle("id-2", "sozcu", "fp-2"),
		types.Decision{Kind: types.DecisionNearDuplicate, MatchedID: "id-gone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Kind != types.DecisionNew {
		t.Fatalf("vanished match must degrade to new, got %s", d.Kind)
	}
	if st.GroupCount() != 0 {
		t.Errorf("no group expected, got %d", st.GroupCount())
	}
}

func TestCommitConcurrentSameFingerprint(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	// Both goroutines carry a stale New decision for the same text from
	// different outlets. Exactly one row wins New; the other becomes an
	// exact duplicate in the same group.
	var wg sync.WaitGroup
	outlets := []string{"ntv", "sozcu"}
	for i := range outlets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := testArticle(fmt.Sprintf("id-%d", i), outlets[i], "fp-shared")
			if _, _, err := w.Commit(ctx, a, types.Decision{Kind: types.DecisionNew}); err != nil {
				t.Errorf("commit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if st.ArticleCount() != 2 {
		t.Errorf("expected 2 article rows, got %d", st.ArticleCount())
	}
	if st.GroupCount() != 1 {
		t.Errorf("expected exactly 1 group, got %d", st.GroupCount())
	}
}

func TestCommitConcurrentSameID(t *testing.T) {
	w, st := testWriter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := w.Commit(ctx, testArticle("id-1", "ntv", "fp-1"), types.Decision{Kind: types.DecisionNew}); err != nil {
				t.Errorf("commit: %v", err)
			}
		}()
	}
	wg.Wait()

	if st.ArticleCount() != 1 {
		t.Errorf("expected 1 article row, got %d", st.ArticleCount())
	}
}
