package snapshot

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	PoolSize  int    `json:"pool_size"`
	KeyPrefix string `json:"key_prefix"`
	Name      string `json:"name"`
}

// RedisStorage keeps the record under a single key. Sibling instances
// writing the same key overwrite each other; the last write wins.
type RedisStorage struct {
	logger types.Logger
	config *RedisConfig
	client *redis.Client
}

func NewRedisStorage(ctx context.Context, logger types.Logger, config *types.SnapshotConfig) (*RedisStorage, error) {
	redisConfig := &RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  4,
		KeyPrefix: "sai-lru",
		Name:      "snapshot",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis snapshot config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Addr,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	logger.Info("Redis snapshot storage connected",
		zap.String("addr", redisConfig.Addr),
		zap.Int("db", redisConfig.DB))

	return &RedisStorage{
		logger: logger,
		config: redisConfig,
		client: client,
	}, nil
}

func (r *RedisStorage) key() string {
	if r.config.KeyPrefix == "" {
		return r.config.Name
	}
	return r.config.KeyPrefix + ":" + r.config.Name
}

func (r *RedisStorage) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key()).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, types.Errorf(types.ErrSnapshotNotFound, "key: %s", r.key())
		}
		return nil, err
	}

	return data, nil
}

func (r *RedisStorage) Write(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key(), data, 0).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
