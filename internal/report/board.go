package report

import (
	"context"
	"sort"
	"sync"
)

// Board keeps the latest reading of every channel for concurrent readers.
// It is written by the report stage and read by the HTTP API.
type Board struct {
	mu       sync.RWMutex
	readings map[string][]Reading // by sensor, indexed by channel
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{readings: make(map[string][]Reading)}
}

// Write implements Sink.
func (b *Board) Write(_ context.Context, readings []Reading) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range readings {
		rows := b.readings[r.Sensor]
		for len(rows) <= r.Index {
			rows = append(rows, Reading{})
		}
		rows[r.Index] = r
		b.readings[r.Sensor] = rows
	}
	return nil
}

// Sensor returns the latest readings of one sensor.
func (b *Board) Sensor(name string) ([]Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows, ok := b.readings[name]
	if !ok {
		return nil, false
	}
	out := make([]Reading, len(rows))
	copy(out, rows)
	return out, true
}

// All returns every latest reading ordered by sensor and channel.
func (b *Board) All() []Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.readings))
	for name := range b.readings {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Reading
	for _, name := range names {
		out = append(out, b.readings[name]...)
	}
	return out
}
