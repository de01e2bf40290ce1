package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

const (
	EnvCacheMaxItems    = "CACHE_MAX_ITEMS"
	EnvFunctionName     = "AWS_LAMBDA_FUNCTION_NAME"
	EnvTaskRoot         = "LAMBDA_TASK_ROOT"
	EnvSnapshotPath     = "SAI_LRU_SNAPSHOT_PATH"
	EnvLogLevel         = "SAI_LRU_LOG_LEVEL"
	EnvRedeployEnabled  = "SAI_LRU_REDEPLOY"
	DefaultMaxItems     = 5
	DefaultSnapshotPath = "/tmp/cache.json"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(configPath string) (config *types.ServiceConfig, err error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err = os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	return l.finalize(config)
}

// LoadDefaults is used when no config file is deployed alongside the
// function; defaults plus environment are then the whole configuration.
func (l *Loader) LoadDefaults() (*types.ServiceConfig, error) {
	return l.finalize(l.Defaults())
}

func (l *Loader) finalize(config *types.ServiceConfig) (*types.ServiceConfig, error) {
	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, nil
}

func (l *Loader) applyEnv(config *types.ServiceConfig) error {
	maxItems, set, err := utils.LookupEnvInt(EnvCacheMaxItems)
	if err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%s is not an integer: %v", EnvCacheMaxItems, err)
	}
	if set {
		if maxItems < 1 {
			return types.Errorf(types.ErrConfigValidateFailed, "%s must be positive, got %d", EnvCacheMaxItems, maxItems)
		}
		config.Cache.MaxItems = maxItems
	}

	if name := os.Getenv(EnvFunctionName); name != "" {
		config.Redeploy.FunctionName = name
	}

	if root := os.Getenv(EnvTaskRoot); root != "" {
		config.Redeploy.PackageRoot = root
	}

	if config.Snapshot.BaselinePath == "" && config.Redeploy.PackageRoot != "" {
		config.Snapshot.BaselinePath = filepath.Join(config.Redeploy.PackageRoot, config.Redeploy.SnapshotName)
	}

	if path := os.Getenv(EnvSnapshotPath); path != "" {
		config.Snapshot.Path = path
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		config.Logger.Level = level
	}

	enabled, set, err := utils.LookupEnvBool(EnvRedeployEnabled)
	if err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%s is not a boolean: %v", EnvRedeployEnabled, err)
	}
	if set {
		config.Redeploy.Enabled = enabled
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-lru",
		Version: "1.0.0",
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Cache: &types.CacheConfig{
			MaxItems:     DefaultMaxItems,
			PersistReads: true,
			DefaultValue: types.DefaultRequestValue,
		},
		Snapshot: &types.SnapshotConfig{
			Type: "file",
			Path: DefaultSnapshotPath,
		},
		Redeploy: &types.RedeployConfig{
			Enabled:        false,
			ExecutableName: "bootstrap",
			SnapshotName:   "cache.json",
			QueueSize:      4,
			Timeout:        60 * time.Second,
		},
		Platform: &types.PlatformConfig{
			Type: "aws",
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 3,
				RecoveryTimeout:  5 * time.Minute,
				HalfOpenRequests: 1,
			},
		},
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "localhost",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
			},
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
			Path:    "/metrics",
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Cron: &types.CronConfig{
			Enabled:  false,
			Timezone: "UTC",
		},
	}
}
