// Package snapshot persists cache contents between invocations.
//
// A Store reads and writes one record per location. The writable location
// is instance-local and is overwritten in full after every invocation; the
// baseline location is read-only and ships inside the deployed package so
// a cold instance can start from the last redeployed state. When neither
// holds a record the cache starts from the configured seed entries (baseline)
// or empty (writable).
//
// Sibling instances are not coordinated: two stores writing the same
// location simply overwrite each other, last writer wins.
package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/lru"
	"github.com/saiset-co/sai-lru/types"
)

type Location int

const (
	LocationWritable Location = iota
	LocationBaseline
)

func (l Location) String() string {
	switch l {
	case LocationWritable:
		return "writable"
	case LocationBaseline:
		return "baseline"
	default:
		return "unknown"
	}
}

type Options struct {
	Capacity int
	Writable Storage
	Baseline Storage
	Seed     []types.CacheEntry
	Compress bool
	Logger   types.Logger
	Metrics  types.MetricsManager
}

type Store struct {
	capacity int
	writable Storage
	baseline Storage
	seed     []types.CacheEntry
	compress bool
	logger   types.Logger
	metrics  types.MetricsManager
}

func NewStore(opts Options) (*Store, error) {
	if opts.Capacity <= 0 {
		return nil, types.Errorf(types.ErrInvalidCapacity, "capacity must be positive, got %d", opts.Capacity)
	}

	if opts.Writable == nil {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "writable storage is required")
	}

	if opts.Logger == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "logger is required")
	}

	seed := make([]types.CacheEntry, len(opts.Seed))
	copy(seed, opts.Seed)

	return &Store{
		capacity: opts.Capacity,
		writable: opts.Writable,
		baseline: opts.Baseline,
		seed:     seed,
		compress: opts.Compress,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// NewStoreFromConfig builds the writable backend named by the snapshot
// config and a read-only file baseline when a baseline path is set.
func NewStoreFromConfig(ctx context.Context, config *types.ServiceConfig, logger types.Logger, metrics types.MetricsManager) (*Store, error) {
	writable, err := NewStorage(ctx, config.Snapshot, logger, metrics)
	if err != nil {
		return nil, types.WrapError(err, "failed to create snapshot storage")
	}

	var baseline Storage
	if config.Snapshot.BaselinePath != "" {
		baseline, err = NewFileStorage(config.Snapshot.BaselinePath, true)
		if err != nil {
			_ = writable.Close()
			return nil, types.WrapError(err, "failed to create baseline storage")
		}
	}

	store, err := NewStore(Options{
		Capacity: config.Cache.MaxItems,
		Writable: writable,
		Baseline: baseline,
		Seed:     config.Snapshot.Seed,
		Compress: config.Snapshot.Compress,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		_ = writable.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Load rehydrates the cache held at loc. A missing writable record yields
// an empty cache; a missing baseline record yields the seed entries.
func (s *Store) Load(ctx context.Context, loc Location) (*lru.Cache, error) {
	cache, _, err := s.load(ctx, loc)
	return cache, err
}

// Restore is the per-invocation entry point: the writable record if there
// is one, otherwise the baseline.
func (s *Store) Restore(ctx context.Context) (*lru.Cache, error) {
	cache, found, err := s.load(ctx, LocationWritable)
	if err != nil || found {
		return cache, err
	}

	s.logger.Debug("No writable snapshot, restoring from baseline")
	return s.Load(ctx, LocationBaseline)
}

// Save replaces the writable record with the cache's current contents.
func (s *Store) Save(ctx context.Context, cache *lru.Cache) error {
	start := time.Now()
	defer s.observe("save", start)

	data, err := EncodeRecord(cache.Entries(), s.capacity, s.compress)
	if err != nil {
		return types.Errorf(types.ErrSnapshotWriteFailed, "%v", err)
	}

	if err := s.writable.Write(ctx, data); err != nil {
		return types.Chain(types.ErrSnapshotWriteFailed, err)
	}

	s.logger.Debug("Snapshot saved", zap.Int("entries", cache.Len()), zap.Int("bytes", len(data)))
	return nil
}

// Record returns the raw writable record, as shipped in a redeploy package.
func (s *Store) Record(ctx context.Context) ([]byte, error) {
	data, err := s.writable.Read(ctx)
	if err != nil {
		if types.IsError(err, types.ErrSnapshotNotFound) {
			return nil, err
		}
		return nil, types.Errorf(types.ErrSnapshotReadFailed, "%v", err)
	}

	if _, err := DecodeRecord(data); err != nil {
		return nil, err
	}

	return data, nil
}

// Ping reports whether the writable location can be read.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.writable.Read(ctx)
	if err == nil || types.IsError(err, types.ErrSnapshotNotFound) {
		return nil
	}
	return err
}

func (s *Store) Close() error {
	return s.writable.Close()
}

func (s *Store) load(ctx context.Context, loc Location) (*lru.Cache, bool, error) {
	start := time.Now()
	defer s.observe("load", start)

	cache, err := lru.New(s.capacity)
	if err != nil {
		return nil, false, err
	}

	storage := s.writable
	if loc == LocationBaseline {
		storage = s.baseline
	}

	if storage == nil {
		return s.seeded(cache, loc), false, nil
	}

	data, err := storage.Read(ctx)
	if err != nil {
		if types.IsError(err, types.ErrSnapshotNotFound) {
			return s.seeded(cache, loc), false, nil
		}
		if types.IsError(err, types.ErrSnapshotMalformed) {
			return nil, false, err
		}
		return nil, false, types.Chain(types.ErrSnapshotReadFailed, types.WrapError(err, loc.String()))
	}

	record, err := DecodeRecord(data)
	if err != nil {
		s.logger.Error("Snapshot record is malformed", zap.Stringer("location", loc), zap.Error(err))
		return nil, false, err
	}

	if len(record.Entries) > s.capacity {
		s.logger.Warn("Snapshot holds more entries than capacity, oldest are dropped",
			zap.Stringer("location", loc),
			zap.Int("entries", len(record.Entries)),
			zap.Int("capacity", s.capacity))
	}

	for _, entry := range record.Entries {
		cache.Put(entry.Key, entry.Value)
	}

	return cache, true, nil
}

func (s *Store) seeded(cache *lru.Cache, loc Location) *lru.Cache {
	if loc != LocationBaseline {
		return cache
	}

	for _, entry := range s.seed {
		cache.Put(entry.Key, entry.Value)
	}
	return cache
}

func (s *Store) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}

	s.metrics.Histogram("snapshot_operation_duration_seconds",
		[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}
