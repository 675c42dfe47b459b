// Package catalog keeps a time-bounded copy of the scheme catalog and makes
// sure concurrent callers share a single upstream fetch.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Dan9191/scheme-service/internal/metrics"
	"github.com/Dan9191/scheme-service/internal/models"
)

// ErrFetchFailed marks a soft failure: the returned catalog is the last good
// copy (or empty) rather than a fresh one.
var ErrFetchFailed = errors.New("catalog fetch failed")

const fetchKey = "schemes"

// Fetcher loads the full catalog from upstream.
type Fetcher interface {
	FetchSchemes(ctx context.Context) ([]models.Scheme, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]models.Scheme, error)

func (f FetcherFunc) FetchSchemes(ctx context.Context) ([]models.Scheme, error) {
	return f(ctx)
}

// Cache is the one shared, mutated catalog copy.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	log          *logrus.Logger
	now          func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	schemes   []models.Scheme
	fetchedAt time.Time
	loaded    bool
}

// NewCache initializes a catalog cache
func NewCache(fetcher Fetcher, ttl time.Duration, log *logrus.Logger) *Cache {
	return &Cache{
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: 15 * time.Second,
		log:          log,
		now:          time.Now,
	}
}

// Get returns the catalog. A fresh cached copy is returned without a network
// call unless forceRefresh is set. On fetch failure the last good copy (or an
// empty list) is returned together with an error wrapping ErrFetchFailed.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) ([]models.Scheme, error) {
	if !forceRefresh {
		if schemes, ok := c.fresh(); ok {
			metrics.RecordCatalogLookup("hit")
			return schemes, nil
		}
	}
	metrics.RecordCatalogLookup("miss")

	ch := c.group.DoChan(fetchKey, func() (interface{}, error) {
		// A caller that missed a fetch finishing just before it joined gets that result.
		if !forceRefresh {
			if schemes, ok := c.fresh(); ok {
				return schemes, nil
			}
		}
		// Callers share this fetch, so one caller's cancellation must not fail the rest.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.fallback(res.Err)
		}
		return res.Val.([]models.Scheme), nil
	case <-ctx.Done():
		return c.fallback(ctx.Err())
	}
}

// Lookup returns the cached entry for schemeID without triggering a fetch.
func (c *Cache) Lookup(schemeID string) (models.Scheme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.schemes {
		if s.ID == schemeID {
			return s, true
		}
	}
	return models.Scheme{}, false
}

// Invalidate forgets the fetch time so the next Get goes upstream.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) fresh() ([]models.Scheme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.schemes, true
}

func (c *Cache) refresh(ctx context.Context) ([]models.Scheme, error) {
	schemes, err := c.fetcher.FetchSchemes(ctx)
	if err != nil {
		return nil, err
	}
	if schemes == nil {
		schemes = []models.Scheme{}
	}

	c.mu.Lock()
	c.schemes = schemes
	c.fetchedAt = c.now()
	c.loaded = true
	c.mu.Unlock()

	c.log.Infof("Catalog refreshed: %d schemes", len(schemes))
	return schemes, nil
}

func (c *Cache) fallback(cause error) ([]models.Scheme, error) {
	metrics.RecordCatalogLookup("stale")
	c.mu.RLock()
	schemes := c.schemes
	c.mu.RUnlock()
	if schemes == nil {
		schemes = []models.Scheme{}
	}
	c.log.WithError(cause).Warnf("Catalog refresh failed, serving %d cached schemes", len(schemes))
	return schemes, fmt.Errorf("%w: %v", ErrFetchFailed, cause)
}
