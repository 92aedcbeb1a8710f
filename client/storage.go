package client

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
)

// ErrNoSnapshot is returned by Load when nothing has been saved.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Storage persists conversation snapshots. Load returns ErrNoSnapshot when
// empty.
type Storage interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	Clear() error
}

// MemoryStorage keeps the snapshot in process memory. Useful for tests and
// for callers that persist elsewhere.
type MemoryStorage struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, ErrNoSnapshot
	}
	out := *m.snap
	return &out, nil
}

func (m *MemoryStorage) Save(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snap
	m.snap = &copied
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

// FileStorage persists the snapshot as gzipped JSON at a fixed path.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a file-backed store at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Load() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (f *FileStorage) Save(snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}

	file, err := os.Create(f.path)
	if err != nil {
		return err
	}

	writer := gzip.NewWriter(file)
	if _, err := writer.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FileStorage) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
