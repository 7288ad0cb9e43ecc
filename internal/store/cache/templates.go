// Package cache puts a bounded, expiring read cache in front of the
// availability-template store. Templates change rarely and are read on
// every slot query.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"chairside/backend/internal/domain"
	"chairside/backend/internal/store"
)

type templateKey struct {
	kind domain.ResourceKind
	id   uuid.UUID
	day  time.Weekday
}

type entry struct {
	template domain.AvailabilityTemplate
	found    bool
}

type Templates struct {
	next store.AvailabilityRepository
	lru  *expirable.LRU[templateKey, entry]

	// gens counts upserts per key. A read started before an upsert
	// must not cache what it loaded.
	mu   sync.Mutex
	gens map[templateKey]uint64
}

var _ store.AvailabilityRepository = (*Templates)(nil)

func NewTemplates(next store.AvailabilityRepository, size int, ttl time.Duration) *Templates {
	return &Templates{
		next: next,
		lru:  expirable.NewLRU[templateKey, entry](size, nil, ttl),
		gens: make(map[templateKey]uint64),
	}
}

// FindTemplate caches misses as well as hits so days without working
// hours do not go to the database on every query.
func (c *Templates) FindTemplate(ctx context.Context, ref domain.ResourceRef, day time.Weekday) (domain.AvailabilityTemplate, error) {
	key := templateKey{kind: ref.Kind, id: ref.ID, day: day}
	if e, ok := c.lru.Get(key); ok {
		if !e.found {
			return domain.AvailabilityTemplate{}, store.ErrNotFound
		}
		return e.template, nil
	}

	gen := c.generation(key)
	t, err := c.next.FindTemplate(ctx, ref, day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.addIfCurrent(key, gen, entry{})
		}
		return domain.AvailabilityTemplate{}, err
	}
	c.addIfCurrent(key, gen, entry{template: t, found: true})
	return t, nil
}

func (c *Templates) generation(key templateKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

func (c *Templates) addIfCurrent(key templateKey, gen uint64, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] == gen {
		c.lru.Add(key, e)
	}
}

func (c *Templates) ListTemplates(ctx context.Context, ref domain.ResourceRef) ([]domain.AvailabilityTemplate, error) {
	return c.next.ListTemplates(ctx, ref)
}

func (c *Templates) UpsertTemplate(ctx context.Context, t domain.AvailabilityTemplate) (domain.AvailabilityTemplate, error) {
	out, err := c.next.UpsertTemplate(ctx, t)
	key := templateKey{kind: t.ResourceKind, id: t.ResourceID, day: time.Weekday(t.DayOfWeek)}
	c.mu.Lock()
	c.gens[key]++
	c.lru.Remove(key)
	c.mu.Unlock()
	return out, err
}

func (c *Templates) Len() int {
	return c.lru.Len()
}

func (c *Templates) Purge() {
	c.lru.Purge()
}
