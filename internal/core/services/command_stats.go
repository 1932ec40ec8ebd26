package services

import (
	"sync"
	"time"
)

// CommandStats counts commands issued by the admin service, per event name.
// A nil *CommandStats is valid and records nothing.
type CommandStats struct {
	mu sync.RWMutex

	delivered   map[string]int64
	undelivered map[string]int64
	lastEvent   string
	lastAt      time.Time
}

type CommandStatsSnapshot struct {
	Delivered   map[string]int64 `json:"delivered"`
	Undelivered map[string]int64 `json:"undelivered"`
	LastEvent   string           `json:"lastEvent,omitempty"`
	LastAt      *time.Time       `json:"lastAt,omitempty"`
}

func NewCommandStats() *CommandStats {
	return &CommandStats{
		delivered:   make(map[string]int64),
		undelivered: make(map[string]int64),
	}
}

func (m *CommandStats) RecordBroadcast(event string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[event]++
	m.touch(event)
}

// RecordUndelivered counts a command that was persisted but reached no peer.
func (m *CommandStats) RecordUndelivered(event string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undelivered[event]++
	m.touch(event)
}

func (m *CommandStats) touch(event string) {
	m.lastEvent = event
	m.lastAt = time.Now().UTC()
}

func (m *CommandStats) Snapshot() CommandStatsSnapshot {
	snap := CommandStatsSnapshot{
		Delivered:   map[string]int64{},
		Undelivered: map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.delivered {
		snap.Delivered[k] = v
	}
	for k, v := range m.undelivered {
		snap.Undelivered[k] = v
	}
	if !m.lastAt.IsZero() {
		at := m.lastAt
		snap.LastEvent = m.lastEvent
		snap.LastAt = &at
	}
	return snap
}
