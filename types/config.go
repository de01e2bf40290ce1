package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
}

type ServiceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version" validate:"required"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger" validate:"required"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache" validate:"required"`
	Snapshot *SnapshotConfig `yaml:"snapshot" json:"snapshot" validate:"required"`
	Redeploy *RedeployConfig `yaml:"redeploy" json:"redeploy" validate:"required"`
	Platform *PlatformConfig `yaml:"platform" json:"platform" validate:"required"`
	Server   *ServerConfig   `yaml:"server" json:"server"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health   *HealthConfig   `yaml:"health" json:"health"`
	Cron     *CronConfig     `yaml:"cron" json:"cron"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	MaxItems     int    `yaml:"max_items" json:"max_items" validate:"min=1"`
	PersistReads bool   `yaml:"persist_reads" json:"persist_reads"`
	DefaultValue string `yaml:"default_value" json:"default_value"`
}

type SnapshotConfig struct {
	Type         string       `yaml:"type" json:"type" validate:"required,oneof=file memory redis clover sqlite"`
	Path         string       `yaml:"path" json:"path" validate:"required_if=Type file"`
	BaselinePath string       `yaml:"baseline_path" json:"baseline_path"`
	Compress     bool         `yaml:"compress" json:"compress"`
	Seed         []CacheEntry `yaml:"seed" json:"seed" validate:"dive"`
	Config       interface{}  `yaml:"config" json:"config"`
}

type RedeployConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	FunctionName   string        `yaml:"function_name" json:"function_name" validate:"required_if=Enabled true"`
	PackageRoot    string        `yaml:"package_root" json:"package_root"`
	ExecutableName string        `yaml:"executable_name" json:"executable_name" validate:"required"`
	SnapshotName   string        `yaml:"snapshot_name" json:"snapshot_name" validate:"required"`
	QueueSize      int           `yaml:"queue_size" json:"queue_size" validate:"min=1"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
	Schedule       string        `yaml:"schedule" json:"schedule"`
}

type PlatformConfig struct {
	Type           string                `yaml:"type" json:"type" validate:"required"`
	Region         string                `yaml:"region" json:"region"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Path    string            `yaml:"path" json:"path"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}
