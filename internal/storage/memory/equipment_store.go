package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// ErrDuplicate is returned when a record with the same name and country exists.
var ErrDuplicate = errors.New("equipment already exists")

// EquipmentStore is a concurrency-safe in-memory Repository. Lookups are
// case-insensitive on name and country.
type EquipmentStore struct {
	mu      sync.RWMutex
	ids     equipment.IDGenerator
	byKey   map[string]string
	records map[string]equipment.Stored
	order   []string
}

// NewEquipmentStore constructs an empty store.
func NewEquipmentStore(ids equipment.IDGenerator) *EquipmentStore {
	return &EquipmentStore{
		ids:     ids,
		byKey:   make(map[string]string),
		records: make(map[string]equipment.Stored),
	}
}

// ExistsByNameAndCountry reports whether a matching record is stored.
func (s *EquipmentStore) ExistsByNameAndCountry(_ context.Context, name, country string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byKey[key(name, country)]
	return ok, nil
}

// Create stores rec under a new identifier.
func (s *EquipmentStore) Create(_ context.Context, rec equipment.Record) (equipment.Stored, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return equipment.Stored{}, fmt.Errorf("create equipment: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.Name, rec.Country)
	if _, ok := s.byKey[k]; ok {
		return equipment.Stored{}, fmt.Errorf("create equipment %q: %w", rec.Name, ErrDuplicate)
	}
	stored := equipment.Stored{ID: id, Record: rec.Clone()}
	s.byKey[k] = id
	s.records[id] = stored
	s.order = append(s.order, id)
	return stored, nil
}

// List returns stored records in insertion order.
func (s *EquipmentStore) List() []equipment.Stored {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]equipment.Stored, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

func key(name, country string) string {
	return equipment.DedupKey(strings.TrimSpace(name), strings.TrimSpace(country))
}
