package cache

import (
	"context"
	"iter"
	"sync"

	"github.com/cockroachdb/errors"
)

type memoryEntry struct {
	value    any
	items    []any
	sequence bool
	complete bool
}

// Memory keeps entries in process memory. Values are stored as-is (no
// copying). Nothing survives a restart; it is meant for tests and dry runs.
type Memory struct {
	modeState
	name    string
	cfg     config
	mutex   sync.Mutex
	entries map[string]*memoryEntry
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an in-memory Backend. name only shows up in Location.
func NewMemory(name string, opts ...Option) *Memory {
	return &Memory{
		name:    name,
		cfg:     applyOptions(opts),
		entries: make(map[string]*memoryEntry),
	}
}

func (m *Memory) Configure(mode Mode) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.set(mode, nil)
}

func (m *Memory) entryKey(key string) (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	if m.mode == ModeSingleton {
		return "", nil
	}
	return key, nil
}

func (m *Memory) Location(key string) string {
	if m.mode == ModeSingleton {
		return "memory:" + m.name
	}
	return "memory:" + m.name + "/" + key
}

func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return false, err
	}
	e, ok := m.entries[k]
	return ok && (!e.sequence || e.complete), nil
}

func (m *Memory) Get(_ context.Context, key string) (any, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return nil, err
	}
	e, ok := m.entries[k]
	if !ok || e.sequence {
		return nil, errors.Wrapf(ErrNotFound, "%s", m.Location(key))
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, val any) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return err
	}
	m.entries[k] = &memoryEntry{value: val, complete: true}
	return nil
}

func (m *Memory) SupportsSequences() bool { return true }

func (m *Memory) Iterate(_ context.Context, key string) iter.Seq2[any, error] {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return errSeq(err)
	}
	e, ok := m.entries[k]
	if !ok || !e.sequence {
		return errSeq(errors.Wrapf(ErrNotFound, "%s", m.Location(key)))
	}
	items := e.items
	return func(yield func(any, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (m *Memory) OpenSequence(_ context.Context, key string) (SequenceWriter, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return nil, err
	}
	e := &memoryEntry{sequence: true, complete: m.cfg.commit == CommitEachItem}
	m.entries[k] = e
	return &memorySequence{m: m, e: e}, nil
}

func (m *Memory) Remove(_ context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k, err := m.entryKey(key)
	if err != nil {
		return false, err
	}
	_, ok := m.entries[k]
	delete(m.entries, k)
	return ok, nil
}

func (m *Memory) Close() error { return nil }

type memorySequence struct {
	m *Memory
	e *memoryEntry
}

func (s *memorySequence) Append(_ context.Context, item any) error {
	s.m.mutex.Lock()
	s.e.items = append(s.e.items, item)
	s.m.mutex.Unlock()
	return nil
}

func (s *memorySequence) Commit(_ context.Context) error {
	s.m.mutex.Lock()
	s.e.complete = true
	s.m.mutex.Unlock()
	return nil
}

func (s *memorySequence) Close() error { return nil }
