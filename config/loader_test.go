package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saiset-co/sai-lru/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvCacheMaxItems, EnvFunctionName, EnvTaskRoot, EnvSnapshotPath, EnvLogLevel, EnvRedeployEnabled} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	config, err := NewLoader().LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults failed: %v", err)
	}

	if config.Cache.MaxItems != DefaultMaxItems {
		t.Errorf("Expected max items %d, got %d", DefaultMaxItems, config.Cache.MaxItems)
	}
	if !config.Cache.PersistReads {
		t.Error("Reads should be persisted by default")
	}
	if config.Snapshot.Path != DefaultSnapshotPath {
		t.Errorf("Expected snapshot path %s, got %s", DefaultSnapshotPath, config.Snapshot.Path)
	}
	if config.Redeploy.Enabled {
		t.Error("Redeploy should be disabled by default")
	}
}

func TestLoadFromBytes(t *testing.T) {
	clearEnv(t)

	data := []byte(`
name: test-cache
version: 0.0.1
cache:
  max_items: 3
  persist_reads: false
snapshot:
  type: memory
  seed:
    - key: a
      value: "1"
redeploy:
  timeout: 15s
`)

	config, err := NewLoader().LoadFromBytes(data)
	if err != nil {
		t.Fatalf("LoadFromBytes failed: %v", err)
	}

	if config.Name != "test-cache" {
		t.Errorf("Expected name 'test-cache', got %s", config.Name)
	}
	if config.Cache.MaxItems != 3 {
		t.Errorf("Expected max items 3, got %d", config.Cache.MaxItems)
	}
	if config.Cache.PersistReads {
		t.Error("persist_reads should be false")
	}
	if config.Cache.DefaultValue != types.DefaultRequestValue {
		t.Errorf("Default value should survive partial YAML, got %q", config.Cache.DefaultValue)
	}
	if len(config.Snapshot.Seed) != 1 || config.Snapshot.Seed[0].Key != "a" {
		t.Errorf("Unexpected seed: %+v", config.Snapshot.Seed)
	}
	if config.Redeploy.Timeout != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %v", config.Redeploy.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCacheMaxItems, "7")
	t.Setenv(EnvFunctionName, "lru-fn")
	t.Setenv(EnvTaskRoot, "/var/task")
	t.Setenv(EnvRedeployEnabled, "true")

	config, err := NewLoader().LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults failed: %v", err)
	}

	if config.Cache.MaxItems != 7 {
		t.Errorf("Expected max items 7, got %d", config.Cache.MaxItems)
	}
	if config.Redeploy.FunctionName != "lru-fn" {
		t.Errorf("Expected function name 'lru-fn', got %s", config.Redeploy.FunctionName)
	}
	if !config.Redeploy.Enabled {
		t.Error("Redeploy should be enabled from env")
	}
	if want := filepath.Join("/var/task", "cache.json"); config.Snapshot.BaselinePath != want {
		t.Errorf("Expected baseline %s, got %s", want, config.Snapshot.BaselinePath)
	}
}

func TestInvalidCapacityIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not a number", value: "five"},
		{name: "zero", value: "0"},
		{name: "negative", value: "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvCacheMaxItems, tt.value)

			_, err := NewLoader().LoadDefaults()
			if !types.IsError(err, types.ErrConfigValidateFailed) {
				t.Errorf("Expected ErrConfigValidateFailed, got %v", err)
			}
		})
	}
}

func TestRedeployRequiresFunctionName(t *testing.T) {
	clearEnv(t)

	_, err := NewLoader().LoadFromBytes([]byte("redeploy:\n  enabled: true\n"))
	if !types.IsError(err, types.ErrConfigValidateFailed) {
		t.Errorf("Expected validation failure, got %v", err)
	}
}

func TestManagerLoadsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("snapshot:\n  type: file\n  path: /tmp/x.json\n  config:\n    addr: redis:6379\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cm, err := NewConfigurationManager(ctx, path)
	if err != nil {
		t.Fatalf("NewConfigurationManager failed: %v", err)
	}

	snapshotConfig := cm.GetConfig().Snapshot
	if snapshotConfig.Path != "/tmp/x.json" {
		t.Errorf("Expected path /tmp/x.json, got %s", snapshotConfig.Path)
	}
	if section, ok := snapshotConfig.Config.(map[string]interface{}); !ok || section["addr"] != "redis:6379" {
		t.Errorf("Expected backend section with addr redis:6379, got %#v", snapshotConfig.Config)
	}

	if err := cm.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !cm.IsRunning() {
		t.Error("Manager should be running")
	}
	if err := cm.Start(); !types.IsError(err, types.ErrServerAlreadyRunning) {
		t.Errorf("Expected ErrServerAlreadyRunning, got %v", err)
	}
}
