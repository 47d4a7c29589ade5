package storage

import (
	"sync"

	"github.com/pkg/errors"
)

// MemFS is an in-memory FS used by tests and the client/server round-trip
// suites; it is safe for concurrent use across sessions.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

// Put seeds a file's contents ahead of a read session, bypassing Open/Write.
func (m *MemFS) Put(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = append([]byte(nil), data...)
}

// Get returns the current contents written for id, for assertions in tests.
func (m *MemFS) Get(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[id]
	return append([]byte(nil), data...), ok
}

type memHandle struct {
	id   string
	mode Mode
}

func (m *MemFS) Open(id []byte, mode Mode) (Handle, error) {
	key := string(id)
	if mode == ModeRead {
		m.mu.RLock()
		_, ok := m.files[key]
		m.mu.RUnlock()
		if !ok {
			return nil, ErrNotFound
		}
	} else {
		m.mu.Lock()
		if _, ok := m.files[key]; !ok {
			m.files[key] = nil
		}
		m.mu.Unlock()
	}
	return &memHandle{id: key, mode: mode}, nil
}

func (m *MemFS) Close(h Handle) error {
	if _, ok := h.(*memHandle); !ok {
		return errors.New("storage.MemFS.Close: not a memHandle")
	}
	return nil
}

func (m *MemFS) Read(h Handle, offset int64, buf []byte) (int, error) {
	mh, ok := h.(*memHandle)
	if !ok {
		return 0, errors.New("storage.MemFS.Read: not a memHandle")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data := m.files[mh.id]
	if offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return n, nil
}

func (m *MemFS) Write(h Handle, offset int64, data []byte) (int, error) {
	mh, ok := h.(*memHandle)
	if !ok {
		return 0, errors.New("storage.MemFS.Write: not a memHandle")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.files[mh.id]
	end := offset + int64(len(data))
	if int64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	m.files[mh.id] = existing
	return len(data), nil
}
