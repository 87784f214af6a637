// Package status caches per-version download/install state and the
// descriptors of version folders found on disk.
package status

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	v "github.com/hashicorp/go-version"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gamedeck/internal/backend"
)

const defaultConcurrency = 4

// Key identifies an upstream version: the short version string plus type.
// Several folders may track the same key.
type Key struct {
	Version string              `json:"version"`
	Type    backend.VersionType `json:"type"`
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.Version
}

// Entry is the cached state of a version key.
type Entry struct {
	Key          Key       `json:"key"`
	IsDownloaded bool      `json:"is_downloaded"`
	IsInstalled  bool      `json:"is_installed"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Cache is read by many consumers but only mutated through its own
// refresh and mark operations.
type Cache struct {
	querier     backend.StatusQuerier
	logger      log.FieldLogger
	concurrency int

	entries *gocache.Cache

	mu          sync.RWMutex
	keys        map[string]Key
	descriptors map[string]Descriptor
}

// New creates a cache that refreshes through querier. concurrency bounds
// the number of lookups in flight during RefreshAll.
func New(querier backend.StatusQuerier, concurrency int, logger log.FieldLogger) *Cache {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{
		querier:     querier,
		logger:      logger,
		concurrency: concurrency,
		entries:     gocache.New(gocache.NoExpiration, 0),
		keys:        make(map[string]Key),
		descriptors: make(map[string]Descriptor),
	}
}

// RefreshAll queries every key independently. A failed lookup leaves that
// key's previous entry untouched and never stops the other lookups; all
// failures are returned together.
func (c *Cache) RefreshAll(ctx context.Context, keys []Key) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs *multierror.Error
	)
	g.SetLimit(c.concurrency)

	for _, key := range uniqueKeys(keys) {
		g.Go(func() error {
			if _, err := c.RefreshOne(ctx, key); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs.ErrorOrNil()
}

// RefreshOne re-queries a single key.
func (c *Cache) RefreshOne(ctx context.Context, key Key) (Entry, error) {
	st, err := c.querier.QueryVersionStatus(ctx, key.Version, key.Type)
	if err != nil {
		c.logger.WithField("version", key.String()).Warnf("status lookup failed: %v", err)
		return Entry{}, fmt.Errorf("query %s: %w", key, err)
	}

	entry := Entry{
		Key:          key,
		IsDownloaded: st.IsDownloaded,
		IsInstalled:  st.IsInstalled,
		UpdatedAt:    time.Now(),
	}
	c.store(entry)
	return entry, nil
}

// MarkDownloaded records a finished download without a backend round trip.
func (c *Cache) MarkDownloaded(key Key) {
	entry, _ := c.Get(key)
	entry.Key = key
	entry.IsDownloaded = true
	entry.UpdatedAt = time.Now()
	c.store(entry)
}

// Get returns the cached entry for key.
func (c *Cache) Get(key Key) (Entry, bool) {
	raw, ok := c.entries.Get(key.String())
	if !ok {
		return Entry{}, false
	}
	return raw.(Entry), true
}

// Keys returns every key the cache has seen, newest version first.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.keys))
	for _, k := range c.keys {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	SortKeys(keys)
	return keys
}

// Snapshot returns the entries for keys in the given order, skipping keys
// that were never refreshed.
func (c *Cache) Snapshot(keys []Key) []Entry {
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.Get(k); ok {
			out = append(out, e)
		}
	}
	return out
}

func (c *Cache) store(entry Entry) {
	c.entries.Set(entry.Key.String(), entry, gocache.NoExpiration)
	c.mu.Lock()
	c.keys[entry.Key.String()] = entry.Key
	c.mu.Unlock()
}

// SortKeys orders keys newest version first, releases before previews on
// equal versions. Unparseable versions sort after parseable ones.
func SortKeys(keys []Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		av, aerr := v.NewVersion(a.Version)
		bv, berr := v.NewVersion(b.Version)
		switch {
		case aerr == nil && berr == nil:
			if !av.Equal(bv) {
				return av.GreaterThan(bv)
			}
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			if a.Version != b.Version {
				return strings.Compare(a.Version, b.Version) > 0
			}
		}
		return a.Type == backend.TypeRelease && b.Type != backend.TypeRelease
	})
}

func uniqueKeys(keys []Key) []Key {
	seen := make(map[string]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if k.Version == "" || seen[k.String()] {
			continue
		}
		seen[k.String()] = true
		out = append(out, k)
	}
	return out
}
