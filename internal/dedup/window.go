package dedup

import (
	"sync"
)

// windowEntry is one recently observed candidate: its id, its title token
// set, and its publish day. Entries are compared outlet-agnostically.
type windowEntry struct {
	id     string
	tokens map[string]struct{}
	day    string
}

// window is a bounded, insertion-ordered buffer of recent candidates. It
// keeps the near-duplicate check's cost independent of ingestion volume:
// the fuzzy rule only ever scans the last N committed candidates.
type window struct {
	mu      sync.Mutex
	entries []windowEntry
	next    int
	full    bool
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{entries: make([]windowEntry, size)}
}

// add records a candidate, evicting the oldest entry once full.
func (w *window) add(e windowEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[w.next] = e
	w.next++
	if w.next == len(w.entries) {
		w.next = 0
		w.full = true
	}
}

// snapshot returns the current entries, oldest first.
func (w *window) snapshot() []windowEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		return append([]windowEntry(nil), w.entries[:w.next]...)
	}
	out := make([]windowEntry, 0, len(w.entries))
	out = append(out, w.entries[w.next:]...)
	out = append(out, w.entries[:w.next]...)
	return out
}
