package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"vansales/internal/cache"
	"vansales/internal/config"
	"vansales/internal/report"
	"vansales/internal/services"
)

const (
	dashboardCacheSize = 64
	dashboardCacheTTL  = 10 * time.Minute
	importCacheSize    = 32
	revokedCacheSize   = 1024
	cleanupInterval    = time.Minute
)

// Caches groups the caches the server needs.
type Caches struct {
	Imports    cache.Cache[services.StagedImport]
	Dashboards cache.Cache[report.Dashboard]
	Revoked    cache.Cache[bool]

	manager *cache.Manager
	redis   *redis.Client
}

// OpenCaches keeps staged imports and revoked sessions in Redis when
// REDIS_ADDR is set so every replica sees them. Dashboards stay in process:
// their keys carry the local snapshot version.
func OpenCaches(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Caches, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Caches{manager: cache.NewManager()}

	dashboards := cache.NewLRUCache[report.Dashboard](dashboardCacheSize, dashboardCacheTTL)
	c.Dashboards = dashboards
	c.manager.Register(dashboards)

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.redis = client
		c.Imports = cache.NewRedisCache[services.StagedImport](client, "vansales:import:", cfg.ImportTTL)
		c.Revoked = cache.NewRedisCache[bool](client, "vansales:revoked:", cfg.SessionTTL)
		logger.Info("Shared caches on Redis", "addr", cfg.RedisAddr)
	} else {
		imports := cache.NewLRUCache[services.StagedImport](importCacheSize, cfg.ImportTTL)
		revoked := cache.NewLRUCache[bool](revokedCacheSize, cfg.SessionTTL)
		c.Imports = imports
		c.Revoked = revoked
		c.manager.Register(imports)
		c.manager.Register(revoked)
	}

	c.manager.StartCleanup(cleanupInterval)
	return c, nil
}

// Ping checks Redis when it is in use.
func (c *Caches) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close stops the cleanup loop and disconnects from Redis.
func (c *Caches) Close() error {
	c.manager.Stop()
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
