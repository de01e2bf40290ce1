package snapshot

import (
	"context"
	"time"

	"github.com/saiset-co/sai-lru/types"
)

// Storage holds exactly one snapshot record. Read returns
// types.ErrSnapshotNotFound when nothing has been written yet; Write
// replaces the record in full.
type Storage interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type StorageCreator func(config interface{}) (Storage, error)

var customStorageCreators = make(map[string]StorageCreator)

func RegisterStorage(storageType string, creator StorageCreator) {
	customStorageCreators[storageType] = creator
}

func NewStorage(ctx context.Context, config *types.SnapshotConfig, logger types.Logger, metrics types.MetricsManager) (Storage, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl Storage
	var err error

	switch config.Type {
	case "", "file":
		impl, err = NewFileStorage(config.Path, false)
	case "memory":
		impl = NewMemoryStorage()
	case "redis":
		impl, err = NewRedisStorage(ctx, logger, config)
	case "clover":
		impl, err = NewCloverStorage(logger, config)
	case "sqlite":
		impl, err = NewSQLiteStorage(ctx, logger, config)
	default:
		if creator, exists := customStorageCreators[config.Type]; exists {
			impl, err = creator(config.Config)
		} else {
			return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedStorage(metrics, config.Type, impl), nil
}

type instrumentedStorage struct {
	impl        Storage
	metrics     types.MetricsManager
	storageType string
}

func newInstrumentedStorage(metrics types.MetricsManager, storageType string, impl Storage) Storage {
	return &instrumentedStorage{
		impl:        impl,
		metrics:     metrics,
		storageType: storageType,
	}
}

func (is *instrumentedStorage) Read(ctx context.Context) ([]byte, error) {
	start := time.Now()
	data, err := is.impl.Read(ctx)

	result := "success"
	switch {
	case types.IsError(err, types.ErrSnapshotNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}

	is.recordMetric("read", result, time.Since(start))
	return data, err
}

func (is *instrumentedStorage) Write(ctx context.Context, data []byte) error {
	start := time.Now()
	err := is.impl.Write(ctx, data)

	result := "success"
	if err != nil {
		result = "error"
	}

	is.recordMetric("write", result, time.Since(start))
	return err
}

func (is *instrumentedStorage) Close() error {
	return is.impl.Close()
}

func (is *instrumentedStorage) recordMetric(operation, result string, duration time.Duration) {
	is.metrics.Counter("snapshot_storage_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"storage":   is.storageType,
	}).Inc()

	is.metrics.Histogram("snapshot_storage_duration_seconds",
		[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		map[string]string{"operation": operation, "storage": is.storageType},
	).Observe(duration.Seconds())
}
