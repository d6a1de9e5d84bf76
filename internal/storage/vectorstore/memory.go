package vectorstore

import (
	"context"
	"sync"
)

type memoryCollection struct {
	dimension int
	points    map[string][]float32
}

// Memory is an in-process Store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memoryCollection)}
}

func (m *Memory) EnsureCollection(_ context.Context, name string, dimension int) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return checkDimension(name, c.dimension, dimension)
	}
	m.collections[name] = &memoryCollection{dimension: dimension, points: make(map[string][]float32)}
	return nil
}

func (m *Memory) Upsert(_ context.Context, collection string, points ...Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return missingCollection(collection)
	}
	for _, p := range points {
		if err := validateDimension(collection, c.dimension, p.Vector); err != nil {
			return err
		}
	}
	for _, p := range points {
		c.points[p.ID] = append([]float32(nil), p.Vector...)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, collection string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return missingCollection(collection)
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, missingCollection(collection)
	}
	if err := validateDimension(collection, c.dimension, vector); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(c.points))
	for id, v := range c.points {
		matches = append(matches, Match{ID: id, Score: Cosine(vector, v)})
	}
	return rank(matches, limit), nil
}

// Count returns the number of points in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.points)
	}
	return 0
}

func (m *Memory) Close() error { return nil }
