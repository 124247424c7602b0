package health

import (
	"context"
	"log/slog"
	"sync"

	"github.com/caspianhq/caspian/internal/types"
)

// Source provides the repository lookups the cache needs. It is satisfied
// by the storage layer; tests inject their own implementation.
type Source interface {
	// ListActiveRepositories returns repositories with a non-nil tab order,
	// i.e. those currently visible in the UI.
	ListActiveRepositories(ctx context.Context) ([]*types.Repository, error)

	// GetRepository returns the repository with the given ID, or (nil, nil)
	// if no such repository exists.
	GetRepository(ctx context.Context, id string) (*types.Repository, error)
}

// SweepResult summarizes one full sweep.
type SweepResult struct {
	// Total is the size of the active repository set at sweep time.
	Total int
	// Missing is the count of active repositories whose path does not exist.
	Missing int
}

// Cache keeps the last-known health result per repository ID.
//
// The cache is rebuilt wholesale by Sweep, lazily filled on a miss by Get,
// and invalidated when the active repository set changes. All mutation is
// last-write-wins under a single mutex; there is no per-entry TTL and no
// retry, a stale entry is only corrected by the next sweep.
type Cache struct {
	src Source

	mu      sync.Mutex
	entries map[string]Check
}

// NewCache creates a cache reading repositories from src. The cache starts
// empty; call Init (or Sweep) to establish the initial invariant.
func NewCache(src Source) *Cache {
	return &Cache{
		src:     src,
		entries: make(map[string]Check),
	}
}

// Init runs the startup sweep and logs the totals.
func (c *Cache) Init(ctx context.Context) error {
	res, err := c.Sweep(ctx)
	if err != nil {
		return err
	}
	slog.Info("repository health cache initialized",
		"total", res.Total, "missing", res.Missing)
	return nil
}

// Sweep recomputes health for every active repository. Entries for
// repositories no longer active are dropped: the map is cleared before
// the refill. O(active repository count) filesystem checks, synchronous.
func (c *Cache) Sweep(ctx context.Context) (SweepResult, error) {
	repos, err := c.src.ListActiveRepositories(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Check, len(repos))

	var res SweepResult
	res.Total = len(repos)
	for _, repo := range repos {
		check := CheckPath(repo.Path)
		c.entries[repo.ID] = check
		if !check.Healthy {
			res.Missing++
		}
	}
	return res, nil
}

// Get returns the cached health for repoID. On a miss (a repository added
// after the last sweep) it does one targeted lookup, caches the result,
// and returns it. A repository absent from the backing store is reported
// healthy: there is nothing to surface about a repository that no longer
// exists in the index.
func (c *Cache) Get(ctx context.Context, repoID string) (Check, error) {
	c.mu.Lock()
	if check, ok := c.entries[repoID]; ok {
		c.mu.Unlock()
		return check, nil
	}
	c.mu.Unlock()

	repo, err := c.src.GetRepository(ctx, repoID)
	if err != nil {
		return Check{}, err
	}
	if repo == nil {
		return Check{Healthy: true}, nil
	}

	check := CheckPath(repo.Path)

	c.mu.Lock()
	c.entries[repoID] = check
	c.mu.Unlock()

	return check, nil
}

// Invalidate forces a full sweep, discarding the result. Call it whenever
// the active repository set changes (repository added, removed, reordered).
func (c *Cache) Invalidate(ctx context.Context) error {
	_, err := c.Sweep(ctx)
	return err
}

// Dispose clears all entries. Used at process teardown.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Check)
}

// Len returns the number of cached entries. Intended for diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
