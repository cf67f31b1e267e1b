package server

import (
	"sync"
	"time"

	"astrafs-server/internal/proto"
)

// StatsSnapshot is a point-in-time copy of the collected counters.
type StatsSnapshot struct {
	StartedUnix int64             `json:"started_unix"`
	UptimeSec   int64             `json:"uptime_sec"`
	TotalReq    uint64            `json:"total_requests"`
	TotalErr    uint64            `json:"total_errors"`
	AvgMs       uint64            `json:"avg_ms"`
	ByOp        map[string]uint64 `json:"by_op"`
}

// statsHub keeps lightweight request counters. One per server.
type statsHub struct {
	mu sync.Mutex

	started    time.Time
	totalReq   uint64
	totalErr   uint64
	totalDurMs uint64
	byOp       [256]uint64
}

func newStatsHub() *statsHub {
	return &statsHub{started: time.Now()}
}

func (h *statsHub) add(op byte, status byte, durMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalReq++
	h.byOp[op]++
	if status != proto.StatusOK {
		h.totalErr++
	}
	if durMs > 0 {
		h.totalDurMs += uint64(durMs)
	}
}

func (h *statsHub) snapshot() StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	by := make(map[string]uint64)
	for i, c := range h.byOp {
		if c == 0 {
			continue
		}
		by[proto.OpName(byte(i))] = c
	}

	avg := uint64(0)
	if h.totalReq > 0 {
		avg = h.totalDurMs / h.totalReq
	}

	now := time.Now()
	return StatsSnapshot{
		StartedUnix: h.started.Unix(),
		UptimeSec:   int64(now.Sub(h.started).Seconds()),
		TotalReq:    h.totalReq,
		TotalErr:    h.totalErr,
		AvgMs:       avg,
		ByOp:        by,
	}
}
