package server

import (
	"sync"
	"time"
)

// LogEntry is a compact per-request record kept in memory for
// debugging. It never contains file contents, only metadata.
type LogEntry struct {
	ConnID     string `json:"conn_id"`
	TimeUnixMs int64  `json:"time_unix_ms"`
	RemoteAddr string `json:"remote_addr"`
	Op         byte   `json:"op"`
	OpName     string `json:"op_name"`
	Path       string `json:"path"`
	Status     byte   `json:"status"`
	Err        string `json:"err,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// logHub keeps a fixed-capacity ring of recent request records.
type logHub struct {
	mu      sync.Mutex
	ring    []LogEntry
	cap     int
	nextPos int
	count   int
}

func newLogHub(capacity int) *logHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &logHub{ring: make([]LogEntry, capacity), cap: capacity}
}

func (h *logHub) add(e LogEntry) {
	if e.TimeUnixMs == 0 {
		e.TimeUnixMs = time.Now().UnixMilli()
	}

	h.mu.Lock()
	h.ring[h.nextPos] = e
	h.nextPos = (h.nextPos + 1) % h.cap
	if h.count < h.cap {
		h.count++
	}
	h.mu.Unlock()
}

// snapshot returns up to limit recent entries, oldest first.
// limit <= 0 means everything retained.
func (h *logHub) snapshot(limit int) []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	if limit == 0 {
		return nil
	}

	start := h.nextPos - h.count
	if start < 0 {
		start += h.cap
	}
	start = (start + (h.count - limit)) % h.cap

	out := make([]LogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, h.ring[(start+i)%h.cap])
	}
	return out
}
