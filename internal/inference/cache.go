package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/regression"
)

// Entry is everything a prediction needs. Entries are immutable once published.
type Entry struct {
	Model        regression.Regressor
	FeatureNames []string
	History      []domain.VelocityPoint
}

// Loader builds a fully-populated entry, e.g. from the artifact and table stores.
type Loader func(ctx context.Context) (*Entry, error)

// Cache holds one entry for the lifetime of a serving process. Readers see a
// complete entry or none; concurrent misses share a single load.
type Cache struct {
	load  Loader
	entry atomic.Pointer[Entry]
	group singleflight.Group
}

// NewCache wires the loader. The cache starts empty.
func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// Get returns the cached entry, loading it once on first use.
func (c *Cache) Get(ctx context.Context) (*Entry, error) {
	if e := c.entry.Load(); e != nil {
		return e, nil
	}
	return c.fill(ctx)
}

// Invalidate drops the current entry; the next Get reloads.
func (c *Cache) Invalidate() {
	c.entry.Store(nil)
}

// Reload replaces the entry with a fresh load. On failure the previous entry is kept.
func (c *Cache) Reload(ctx context.Context) (*Entry, error) {
	e, err := c.loadEntry(ctx)
	if err != nil {
		return nil, err
	}
	c.entry.Store(e)
	return e, nil
}

func (c *Cache) fill(ctx context.Context) (*Entry, error) {
	v, err, _ := c.group.Do("entry", func() (any, error) {
		if e := c.entry.Load(); e != nil {
			return e, nil
		}
		e, err := c.loadEntry(ctx)
		if err != nil {
			return nil, err
		}
		c.entry.Store(e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) loadEntry(ctx context.Context) (*Entry, error) {
	if c.load == nil {
		return nil, fmt.Errorf("inference cache has no loader")
	}
	e, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inference entry: %w", err)
	}
	if e == nil || e.Model == nil || len(e.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: loader returned an incomplete entry", domain.ErrArtifactMissing)
	}
	return e, nil
}
