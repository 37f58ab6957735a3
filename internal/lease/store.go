/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lease

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRoom is returned by stores for room names they cannot persist.
var ErrInvalidRoom = errors.New("invalid room name")

// Occupancy maps a slot index to its lease expiry.
type Occupancy map[int]time.Time

// Store persists per-room occupancy. Implementations are read-modify-write;
// the allocator serializes access within a process only.
type Store interface {
	Load(room string) (Occupancy, error)
	Save(room string, occ Occupancy) error
	Delete(room string) error
}

// MemoryStore keeps occupancy in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]Occupancy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]Occupancy)}
}

func (m *MemoryStore) Load(room string) (Occupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occ := make(Occupancy, len(m.rooms[room]))
	maps.Copy(occ, m.rooms[room])

	return occ, nil
}

func (m *MemoryStore) Save(room string, occ Occupancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(occ) == 0 {
		delete(m.rooms, room)
		return nil
	}

	cp := make(Occupancy, len(occ))
	maps.Copy(cp, occ)
	m.rooms[room] = cp

	return nil
}

func (m *MemoryStore) Delete(room string) error {
	m.mu.Lock()
	delete(m.rooms, room)
	m.mu.Unlock()

	return nil
}

// FileStore writes one YAML document per room into a directory on the
// local host. It is not shared between hosts.
type FileStore struct {
	dir string
}

type slotRecord struct {
	Slot    int       `yaml:"slot"`
	Expires time.Time `yaml:"expires"`
}

type document struct {
	Room  string       `yaml:"room"`
	Slots []slotRecord `yaml:"slots"`
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lease directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(room string) (string, error) {
	if room == "" || room == "." || room == ".." {
		return "", ErrInvalidRoom
	}

	return filepath.Join(f.dir, url.PathEscape(room)+".yaml"), nil
}

func (f *FileStore) Load(room string) (Occupancy, error) {
	p, err := f.path(room)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Occupancy{}, nil
	case err != nil:
		return nil, fmt.Errorf("read lease file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lease file %s: %w", p, err)
	}

	occ := make(Occupancy, len(doc.Slots))
	for _, s := range doc.Slots {
		occ[s.Slot] = s.Expires
	}

	return occ, nil
}

func (f *FileStore) Save(room string, occ Occupancy) error {
	if len(occ) == 0 {
		return f.Delete(room)
	}

	p, err := f.path(room)
	if err != nil {
		return err
	}

	doc := document{Room: room}
	for _, slot := range slices.Sorted(maps.Keys(occ)) {
		doc.Slots = append(doc.Slots, slotRecord{Slot: slot, Expires: occ[slot].UTC()})
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode lease file: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write lease file: %w", err)
	}

	return os.Rename(tmp, p)
}

func (f *FileStore) Delete(room string) error {
	p, err := f.path(room)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lease file: %w", err)
	}

	return nil
}
