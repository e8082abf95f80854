package entry

import (
	"context"

	"github.com/systmms/secretproxy/internal/cache"
	"github.com/systmms/secretproxy/internal/logging"
)

// AdminService inspects and clears the entry cache. It never calls the
// backend.
type AdminService struct {
	cache  *cache.Cache
	logger *logging.Logger
}

// NewAdminService creates an admin service over c. logger may be nil.
func NewAdminService(c *cache.Cache, logger *logging.Logger) *AdminService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AdminService{cache: c, logger: logger}
}

// ListKeys returns the cached keys in sorted order.
func (a *AdminService) ListKeys(ctx context.Context) []string {
	return a.cache.Keys()
}

// Invalidate drops key from the cache. Dropping an uncached key succeeds.
func (a *AdminService) Invalidate(ctx context.Context, key string) {
	a.cache.Invalidate(key)
	a.logger.Info("Cache entry invalidated: key = %s", key)
}

// InvalidateAll empties the cache.
func (a *AdminService) InvalidateAll(ctx context.Context) {
	a.cache.InvalidateAll()
	a.logger.Info("All cache entries invalidated")
}
