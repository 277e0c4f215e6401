package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/cache/badger"
	cachememory "github.com/marmos91/relaystream/pkg/cache/memory"
	"github.com/marmos91/relaystream/pkg/metadata"
	"github.com/marmos91/relaystream/pkg/metadata/gormstore"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/upstream"
	upmemory "github.com/marmos91/relaystream/pkg/upstream/memory"
	ups3 "github.com/marmos91/relaystream/pkg/upstream/s3"
)

// CreateCache creates the chunk cache from configuration.
func CreateCache(ctx context.Context, cfg CacheConfig, m cache.Metrics) (cache.Cache, error) {
	switch cfg.Type {
	case "memory":
		return cachememory.New(cfg.Size.Int64(), m), nil
	case "badger", "":
		if cfg.Path == "" {
			return nil, errors.New("badger cache requires path to be set")
		}
		c, err := badger.Open(ctx, badger.Config{
			Path:          cfg.Path,
			Capacity:      cfg.Size.Int64(),
			SyncWrites:    cfg.SyncWrites,
			FlushInterval: cfg.FlushInterval,
			GCInterval:    cfg.GCInterval,
		}, m)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}

// CreateWorkers builds one pool worker per configured credential. Worker
// ids follow list order starting at 1.
func CreateWorkers(ctx context.Context, cfg UpstreamConfig) ([]*pool.Worker, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryWorkers(cfg)
	case "s3":
		return createS3Workers(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown upstream type: %q", cfg.Type)
	}
}

// createMemoryWorkers shares one store between all workers so each
// worker sees the same files.
func createMemoryWorkers(cfg UpstreamConfig) ([]*pool.Worker, error) {
	store := upmemory.NewStore()
	if cfg.Memory.Dir != "" {
		n, err := store.LoadDir(cfg.Memory.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load media directory: %w", err)
		}
		logger.Info("Loaded media directory", "dir", cfg.Memory.Dir, "files", n)
	}

	workers := make([]*pool.Worker, 0, len(cfg.Workers))
	for i, wc := range cfg.Workers {
		workers = append(workers, &pool.Worker{ID: i + 1, Name: wc.Name, Client: upmemory.NewClient(store)})
	}
	return workers, nil
}

func createS3Workers(ctx context.Context, cfg UpstreamConfig) ([]*pool.Worker, error) {
	if cfg.S3.Bucket == "" {
		return nil, errors.New("s3 upstream requires bucket to be set")
	}

	workers := make([]*pool.Worker, 0, len(cfg.Workers))
	for i, wc := range cfg.Workers {
		client, err := ups3.NewFromConfig(ctx, ups3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			KeyPrefix:       cfg.S3.KeyPrefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     wc.AccessKeyID,
			SecretAccessKey: wc.SecretAccessKey,
			ReadTimeout:     cfg.S3.ReadTimeout,
			RateLimitWait:   cfg.S3.RateLimitWait,
		})
		if err != nil {
			return nil, fmt.Errorf("worker %q: %w", wc.Name, err)
		}
		workers = append(workers, &pool.Worker{ID: i + 1, Name: wc.Name, Client: client})
	}
	return workers, nil
}

// UpstreamHealth returns a probe that passes when any worker's backend
// answers. Workers without a health check count as healthy.
func UpstreamHealth(workers []*pool.Worker) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, w := range workers {
			hc, ok := w.Client.(upstream.HealthChecker)
			if !ok {
				return nil
			}
			err := hc.HealthCheck(ctx)
			if err == nil {
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", w.Name, err))
		}
		if len(errs) == 0 {
			return errors.New("no upstream workers")
		}
		return errors.Join(errs...)
	}
}

// CreateMetadataStore opens the file record database.
func CreateMetadataStore(cfg gormstore.Config) (metadata.Store, error) {
	cfg.ApplyDefaults()
	s, err := gormstore.New(&cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}
