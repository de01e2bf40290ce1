package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-lru/dispatcher"
	"github.com/saiset-co/sai-lru/platform"
	"github.com/saiset-co/sai-lru/redeploy"
	"github.com/saiset-co/sai-lru/snapshot"
	"github.com/saiset-co/sai-lru/types"
)

type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Health      atomic.Pointer[types.HealthManager]
	Cron        atomic.Pointer[types.CronManager]
	Router      atomic.Pointer[types.HTTPRouter]
	HTTPServer  atomic.Pointer[types.HTTPServer]
	Snapshot    atomic.Pointer[snapshot.Store]
	Platform    atomic.Pointer[platform.GuardedClient]
	Coordinator atomic.Pointer[redeploy.Coordinator]
	Dispatcher  atomic.Pointer[dispatcher.Dispatcher]
}

func InitContainer() *Container {
	return &Container{}
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetRouter(router types.HTTPRouter) {
	fc.Router.Store(&router)
}

func (fc *Container) SetHTTPServer(server types.HTTPServer) {
	fc.HTTPServer.Store(&server)
}

func (fc *Container) SetSnapshot(store *snapshot.Store) {
	fc.Snapshot.Store(store)
}

func (fc *Container) SetPlatform(client *platform.GuardedClient) {
	fc.Platform.Store(client)
}

func (fc *Container) SetCoordinator(coordinator *redeploy.Coordinator) {
	fc.Coordinator.Store(coordinator)
}

func (fc *Container) SetDispatcher(dispatcher *dispatcher.Dispatcher) {
	fc.Dispatcher.Store(dispatcher)
}
