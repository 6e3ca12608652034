package commands

import "sync"

// DefaultHistoryLimit bounds terminal history.
const DefaultHistoryLimit = 100

// History remembers submitted lines for recall. Previous walks back from the
// newest entry; Next walks forward and returns "" past the newest.
type History struct {
	mu      sync.Mutex
	limit   int
	entries []string
	// pos is 0 at the end of history and -n when n entries back.
	pos int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records a line and resets the recall position.
func (h *History) Push(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pos = 0
	if len(h.entries) >= h.limit {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, line)
}

// Previous returns the entry before the current position, stopping at the
// oldest.
func (h *History) Previous() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return "", false
	}
	h.pos = max(h.pos-1, -len(h.entries))
	return h.entries[len(h.entries)+h.pos], true
}

// Next returns the entry after the current position, or false once back at
// the end.
func (h *History) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == 0 {
		return "", false
	}
	h.pos = min(h.pos+1, 0)
	if h.pos == 0 {
		return "", false
	}
	return h.entries[len(h.entries)+h.pos], true
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Entries returns the recorded lines, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}
