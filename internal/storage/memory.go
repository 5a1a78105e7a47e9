package storage

import (
	"context"
	"sync"

	"github.com/example/viewtrack/internal/record"
)

// Memory is the device-local primary tier. Single process, in memory,
// versioned so concurrent read-modify-write cycles surface conflicts
// instead of losing updates.
type Memory struct {
	mu       sync.Mutex
	records  []record.ViewingRecord
	version  uint64
	watchers []func()
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Records: cloneRecords(m.records), Version: m.version}, nil
}

func (m *Memory) Store(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	if s.Version != m.version {
		m.mu.Unlock()
		return ErrVersionConflict
	}
	m.records = cloneRecords(s.Records)
	m.version++
	watchers := append([]func(){}, m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return nil
}

func (m *Memory) Replace(_ context.Context, records []record.ViewingRecord) error {
	m.mu.Lock()
	m.records = cloneRecords(records)
	m.version++
	watchers := append([]func(){}, m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return nil
}

func (m *Memory) Watch(_ context.Context, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
	return nil
}

func cloneRecords(in []record.ViewingRecord) []record.ViewingRecord {
	out := make([]record.ViewingRecord, len(in))
	copy(out, in)
	return out
}
