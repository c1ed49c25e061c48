package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/costlens/costlens/internal/domain/billing"
	ierr "github.com/costlens/costlens/internal/errors"
	"github.com/costlens/costlens/internal/types"
)

// InMemoryDimensionStore mimics the Postgres dimension_keys table with its
// UNIQUE (dimension, natural_key) constraint: GetOrCreate converges on one
// surrogate per natural key.
type InMemoryDimensionStore struct {
	mu     sync.Mutex
	nextID uint64
	keys   map[string]*billing.DimensionKey

	// CreateCalls counts GetOrCreate invocations that allocated a new
	// surrogate, for asserting resolver cache behavior.
	CreateCalls int
}

func NewInMemoryDimensionStore() *InMemoryDimensionStore {
	return &InMemoryDimensionStore{
		nextID: 1,
		keys:   make(map[string]*billing.DimensionKey),
	}
}

func (s *InMemoryDimensionStore) GetOrCreate(ctx context.Context, family types.DimensionFamily, naturalKey, displayName string) (*billing.DimensionKey, error) {
	if err := family.Validate(); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = naturalKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mapKey := string(family) + "\x00" + naturalKey
	if key, ok := s.keys[mapKey]; ok {
		return key, nil
	}

	key := &billing.DimensionKey{
		ID:          s.nextID,
		Family:      family,
		NaturalKey:  naturalKey,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	s.nextID++
	s.keys[mapKey] = key
	s.CreateCalls++
	return key, nil
}

func (s *InMemoryDimensionStore) Get(ctx context.Context, family types.DimensionFamily, naturalKey string) (*billing.DimensionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[string(family)+"\x00"+naturalKey]
	if !ok {
		return nil, ierr.NewError("dimension key not found").
			WithHint("Dimension key not found").
			Mark(ierr.ErrNotFound)
	}
	return key, nil
}

// Clear removes all stored keys and resets the surrogate sequence
func (s *InMemoryDimensionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = 1
	s.keys = make(map[string]*billing.DimensionKey)
	s.CreateCalls = 0
}
