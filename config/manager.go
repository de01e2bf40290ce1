package config

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-lru/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type ConfigurationManager struct {
	ctx        context.Context
	cancel     context.CancelFunc
	config     atomic.Pointer[types.ServiceConfig]
	configPath string
	loader     *Loader
	state      atomic.Value
	mu         sync.RWMutex
}

// NewConfigurationManager loads configPath, or defaults plus environment
// when configPath is empty.
func NewConfigurationManager(ctx context.Context, configPath string) (*ConfigurationManager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	cm := &ConfigurationManager{
		ctx:        managerCtx,
		cancel:     cancel,
		configPath: configPath,
		loader:     NewLoader(),
	}

	cm.state.Store(StateStopped)

	if err := cm.Load(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewStaticManager wraps an already built configuration.
func NewStaticManager(config *types.ServiceConfig) *ConfigurationManager {
	ctx, cancel := context.WithCancel(context.Background())

	cm := &ConfigurationManager{
		ctx:    ctx,
		cancel: cancel,
		loader: NewLoader(),
	}

	cm.state.Store(StateStopped)
	cm.store(config)

	return cm
}

func (cm *ConfigurationManager) Start() error {
	if !cm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	cm.state.Store(StateRunning)
	return nil
}

func (cm *ConfigurationManager) Stop() error {
	if !cm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	cm.cancel()
	cm.state.Store(StateStopped)
	return nil
}

func (cm *ConfigurationManager) IsRunning() bool {
	return cm.state.Load().(State) == StateRunning
}

func (cm *ConfigurationManager) Load() error {
	var (
		config *types.ServiceConfig
		err    error
	)

	if cm.configPath == "" {
		config, err = cm.loader.LoadDefaults()
	} else {
		config, err = cm.loader.LoadFromFile(cm.configPath)
	}

	if err != nil {
		return types.WrapError(err, "failed to load configuration")
	}

	cm.store(config)
	return nil
}

func (cm *ConfigurationManager) store(config *types.ServiceConfig) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.config.Store(config)
}

func (cm *ConfigurationManager) GetConfig() *types.ServiceConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Load()
}

func (cm *ConfigurationManager) transitionState(from, to State) bool {
	return cm.state.CompareAndSwap(from, to)
}
