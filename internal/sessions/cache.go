package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Cache is a Store that answers from memory and writes snapshots to a
// durable Store on Flush. Deletes reach the durable store immediately.
type Cache struct {
	mem     *MemoryStore
	durable Store
	logger  *slog.Logger

	mu    sync.Mutex
	dirty map[string]bool

	// writeMu orders durable writes against deletes.
	writeMu sync.Mutex
}

var _ Store = (*Cache)(nil)

// NewCache loads every session from durable into memory. A nil durable
// store makes the cache purely in-memory.
func NewCache(ctx context.Context, durable Store, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		mem:     NewMemoryStore(),
		durable: durable,
		logger:  logger.With("component", "sessions"),
		dirty:   map[string]bool{},
	}
	if durable == nil {
		return c, nil
	}
	existing, err := durable.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, session := range existing {
		if err := c.mem.Save(ctx, session); err != nil {
			return nil, err
		}
	}
	c.logger.Info("sessions loaded", "count", len(existing))
	return c, nil
}

func (c *Cache) Save(ctx context.Context, session *models.Session) error {
	if err := c.mem.Save(ctx, session); err != nil {
		return err
	}
	if c.durable != nil {
		c.mu.Lock()
		c.dirty[session.ID] = true
		c.mu.Unlock()
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, id string) (*models.Session, error) {
	return c.mem.Get(ctx, id)
}

func (c *Cache) Delete(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.mem.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.dirty, id)
	c.mu.Unlock()
	if c.durable == nil {
		return nil
	}
	if err := c.durable.Delete(ctx, id); err != nil && !errors.Is(err, errdefs.ErrNotFound) {
		return err
	}
	return nil
}

func (c *Cache) List(ctx context.Context, personaID string) ([]*models.Session, error) {
	return c.mem.List(ctx, personaID)
}

// Pending reports how many sessions changed since the last flush.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// Flush writes every changed session to the durable store. Sessions that
// fail to save stay pending for the next flush.
func (c *Cache) Flush(ctx context.Context) error {
	if c.durable == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.dirty = map[string]bool{}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		session, err := c.mem.Get(ctx, id)
		if errors.Is(err, errdefs.ErrNotFound) {
			continue
		}
		if err == nil {
			err = c.durable.Save(ctx, session)
		}
		if err != nil {
			c.markDirty(id)
			errs = append(errs, fmt.Errorf("flush session %s: %w", id, err))
		}
	}
	if len(ids) > 0 {
		c.logger.Debug("sessions flushed", "count", len(ids), "failed", len(errs))
	}
	return errors.Join(errs...)
}

func (c *Cache) markDirty(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[id] = true
}
