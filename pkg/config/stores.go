package config

import (
	"context"
	"fmt"

	"github.com/depotfs/depotfs/pkg/cache"
	cachemem "github.com/depotfs/depotfs/pkg/cache/memory"
	cacheredis "github.com/depotfs/depotfs/pkg/cache/redis"
	"github.com/depotfs/depotfs/pkg/metrics"
	"github.com/depotfs/depotfs/pkg/store/meta"
	metabadger "github.com/depotfs/depotfs/pkg/store/meta/badger"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
	nodebadger "github.com/depotfs/depotfs/pkg/store/node/badger"
	nodemem "github.com/depotfs/depotfs/pkg/store/node/memory"
	nodes3 "github.com/depotfs/depotfs/pkg/store/node/s3"
)

// CreateNodeStore builds the configured node store backend, wrapped in
// key verification, well-known short-circuits and (when enabled) metric
// instrumentation.
func CreateNodeStore(ctx context.Context, cfg NodeStoreConfig) (nodestore.Store, error) {
	var backend nodestore.Store
	switch cfg.Type {
	case "memory", "":
		backend = nodemem.New()
	case "badger":
		store, err := nodebadger.New(nodebadger.Config{Dir: cfg.Badger.Dir})
		if err != nil {
			return nil, fmt.Errorf("failed to create badger node store: %w", err)
		}
		backend = store
	case "s3":
		store, err := nodes3.NewFromConfig(ctx, nodes3.Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			KeyPrefix:      cfg.S3.KeyPrefix,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 node store: %w", err)
		}
		backend = store
	default:
		return nil, fmt.Errorf("unknown node store type: %q", cfg.Type)
	}

	if m := metrics.NewNodeStoreMetrics(cfg.Type); m != nil {
		backend = nodestore.NewInstrumented(backend, m)
	}
	return nodestore.NewWellKnown(nodestore.NewVerified(backend)), nil
}

// CreateMetaStore builds the configured metastore backend.
func CreateMetaStore(cfg MetaStoreConfig) (meta.Store, error) {
	switch cfg.Type {
	case "memory", "":
		return metamem.New(), nil
	case "badger":
		store, err := metabadger.New(metabadger.Config{Dir: cfg.Badger.Dir})
		if err != nil {
			return nil, fmt.Errorf("failed to create badger metastore: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown metastore type: %q", cfg.Type)
	}
}

// CreateCache builds the configured lookup cache, instrumented when
// metrics are enabled. The returned closer is nil for in-process caches.
func CreateCache(cfg CacheConfig) (cache.Cache, func() error, error) {
	var (
		c      cache.Cache
		closer func() error
	)
	switch cfg.Type {
	case "none", "":
		return cache.Null{}, nil, nil
	case "memory":
		c = cachemem.New()
	case "redis":
		redisCache := cacheredis.New(cacheredis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			OpTimeout: cfg.Redis.OpTimeout,
		})
		c = redisCache
		closer = redisCache.Close
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}

	if m := metrics.NewCacheMetrics(); m != nil {
		c = cache.NewInstrumented(c, m)
	}
	return c, closer, nil
}
