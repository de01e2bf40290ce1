package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-lru/config"
	"github.com/saiset-co/sai-lru/cron"
	"github.com/saiset-co/sai-lru/dispatcher"
	"github.com/saiset-co/sai-lru/health"
	"github.com/saiset-co/sai-lru/logger"
	"github.com/saiset-co/sai-lru/metrics"
	"github.com/saiset-co/sai-lru/platform"
	"github.com/saiset-co/sai-lru/redeploy"
	"github.com/saiset-co/sai-lru/sai"
	"github.com/saiset-co/sai-lru/server"
	"github.com/saiset-co/sai-lru/snapshot"
	"github.com/saiset-co/sai-lru/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const redeployJobName = "redeploy"

type Option func(*options)

type options struct {
	redeploy bool
	client   platform.FunctionClient
}

// WithRedeploy builds the redeploy coordinator even when redeploy.enabled is
// off, for one-shot redeploys from the command line.
func WithRedeploy() Option {
	return func(o *options) { o.redeploy = true }
}

// WithFunctionClient replaces the configured platform client. The circuit
// breaker from platform.circuit_breaker still applies.
func WithFunctionClient(client platform.FunctionClient) Option {
	return func(o *options) { o.client = client }
}

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	serving         atomic.Bool
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
}

// NewService wires every component from configPath. An empty path runs on
// defaults plus environment, which is how the function is usually deployed.
func NewService(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, types.WrapError(err, "file does not exist")
		}
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := registerProviders(serviceCtx, container, configPath, o); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	return service, nil
}

// Start brings up the components an invocation needs and returns.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.logger().Info("Service started")
	return nil
}

// Serve runs the local invoke server and the redeploy schedule until a
// shutdown signal arrives or Stop is called.
func (s *Service) Serve() (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("service panic: %v", r)
			s.logger().Error("Service run panic", zap.Stack(string(buf[:n])))
			s.setState(StateStopped)
		}
	}()

	if err := s.Start(); err != nil {
		return err
	}

	s.serving.Store(true)

	if err := s.startServing(); err != nil {
		s.cancel()
		_ = s.stopComponents()
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start serving")
	}

	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	return nil
}

// Stop shuts the service down. While serving it only signals Serve, which
// performs the shutdown itself.
func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	s.logger().Info("Stopping service...")

	if s.serving.Load() {
		s.cancel()
		return nil
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	return s.stopComponents()
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) Config() *types.ServiceConfig {
	return (*s.container.Config.Load()).GetConfig()
}

// Invoke handles one raw request the way the function runtime would.
func (s *Service) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return s.container.Dispatcher.Load().HandleRaw(ctx, payload)
}

// Redeploy publishes a new version of the configured function right away.
func (s *Service) Redeploy(ctx context.Context) error {
	coordinator := s.container.Coordinator.Load()
	if coordinator == nil {
		return types.ErrRedeployNotAvailable
	}
	return coordinator.Run(ctx, s.Config().Redeploy.FunctionName)
}

// Package builds the archive a redeploy would upload without uploading it.
func (s *Service) Package(ctx context.Context) ([]byte, error) {
	coordinator := s.container.Coordinator.Load()
	if coordinator == nil {
		return nil, types.ErrRedeployNotAvailable
	}
	return coordinator.Package(ctx)
}

func (s *Service) logger() types.Logger {
	return *s.container.Logger.Load()
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	if err := startManager(ctx, s.container.Config.Load()); err != nil {
		return types.WrapError(err, "failed to start config manager")
	}

	if err := startManager(ctx, s.container.Logger.Load()); err != nil {
		return types.WrapError(err, "failed to start logger")
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := startManager(gCtx, s.container.Metrics.Load()); err != nil {
			s.logger().Error("Failed to start metrics manager", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		if err := startManager(gCtx, s.container.Health.Load()); err != nil {
			s.logger().Error("Failed to start health manager", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return types.Errorf(types.ErrServerStartFailed, "component startup timeout: %v", err)
	}

	if coordinator := s.container.Coordinator.Load(); coordinator != nil {
		if err := coordinator.Start(); err != nil {
			return types.WrapError(err, "failed to start redeploy coordinator")
		}
	}

	s.logger().Debug("Core components started")
	return nil
}

func (s *Service) startServing() error {
	if err := startManager(s.ctx, s.container.HTTPServer.Load()); err != nil {
		return err
	}

	if err := startManager(s.ctx, s.container.Cron.Load()); err != nil {
		s.logger().Error("Failed to start cron manager", zap.Error(err))
	}

	s.logger().Info("Service is serving")
	return nil
}

func startManager[T any](ctx context.Context, ptr *T) error {
	if ptr == nil {
		return nil
	}

	manager, ok := any(*ptr).(types.LifecycleManager)
	if !ok {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return manager.Start()
	}
}

func stopManager[T any](ptr *T) error {
	if ptr == nil {
		return nil
	}

	manager, ok := any(*ptr).(types.LifecycleManager)
	if !ok || !manager.IsRunning() {
		return nil
	}
	return manager.Stop()
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	s.logger().Info("Stopping service components...")

	if err := stopManager(s.container.Cron.Load()); err != nil {
		s.logger().Error("Failed to stop cron manager", zap.Error(err))
		errs = append(errs, err)
	}

	if err := stopManager(s.container.HTTPServer.Load()); err != nil {
		s.logger().Error("Failed to stop HTTP server", zap.Error(err))
		errs = append(errs, err)
	}

	if coordinator := s.container.Coordinator.Load(); coordinator != nil && coordinator.IsRunning() {
		if err := coordinator.Stop(); err != nil {
			s.logger().Error("Failed to stop redeploy coordinator", zap.Error(err))
			errs = append(errs, err)
		}
	}

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := stopManager(s.container.Health.Load()); err != nil {
			s.logger().Error("Failed to stop health manager", zap.Error(err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := stopManager(s.container.Metrics.Load()); err != nil {
			s.logger().Error("Failed to stop metrics manager", zap.Error(err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		if store := s.container.Snapshot.Load(); store != nil {
			if err := store.Close(); err != nil {
				s.logger().Error("Failed to close snapshot storage", zap.Error(err))
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.logger().Info("All components stopped")

	if err := stopManager(s.container.Logger.Load()); err != nil {
		errs = append(errs, err)
	}

	if err := stopManager(s.container.Config.Load()); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return types.Errorf(types.ErrServerStopFailed, "errors during shutdown: %v", errs)
	}

	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger().Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger().Info("Service shutdown: context done")
	}
}

func registerProviders(ctx context.Context, container *sai.Container, configPath string, o *options) error {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	metricsManager, err := metrics.NewManager(ctx, configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register metrics manager")
	}
	container.SetMetrics(metricsManager)

	store, err := snapshot.NewStoreFromConfig(ctx, _config, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to register snapshot store")
	}
	container.SetSnapshot(store)

	var client *platform.GuardedClient
	var coordinator *redeploy.Coordinator

	if _config.Redeploy.Enabled || o.redeploy {
		if o.client != nil {
			breaker := platform.NewCircuitBreaker(_config.Platform.CircuitBreaker, loggerManager, _config.Platform.Type)
			client = platform.NewGuardedClient(o.client, breaker, loggerManager, metricsManager)
		} else {
			client, err = platform.NewFunctionClient(ctx, _config.Platform, loggerManager, metricsManager)
			if err != nil {
				return types.WrapError(err, "failed to register platform client")
			}
		}
		container.SetPlatform(client)

		coordinator, err = redeploy.NewCoordinator(redeploy.Options{
			Client:         client,
			Records:        store,
			PackageRoot:    _config.Redeploy.PackageRoot,
			ExecutableName: _config.Redeploy.ExecutableName,
			SnapshotName:   _config.Redeploy.SnapshotName,
			QueueSize:      _config.Redeploy.QueueSize,
			Timeout:        _config.Redeploy.Timeout,
			Logger:         loggerManager,
			Metrics:        metricsManager,
		})
		if err != nil {
			return types.WrapError(err, "failed to register redeploy coordinator")
		}
		container.SetCoordinator(coordinator)
	}

	var trigger types.RedeployTrigger
	if coordinator != nil && _config.Redeploy.Enabled {
		trigger = coordinator
	}

	dispatch, err := dispatcher.New(store, dispatcher.Options{
		PersistReads: _config.Cache.PersistReads,
		DefaultValue: _config.Cache.DefaultValue,
		FunctionName: _config.Redeploy.FunctionName,
		Trigger:      trigger,
		Logger:       loggerManager,
		Metrics:      metricsManager,
	})
	if err != nil {
		return types.WrapError(err, "failed to register dispatcher")
	}
	container.SetDispatcher(dispatch)

	router := server.NewFastHTTPRouter()
	router.POST("/invoke", server.InvokeHandler(dispatch, loggerManager))
	container.SetRouter(router)

	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err := health.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		healthManager.RegisterChecker("snapshot", health.SnapshotChecker(store))
		if client != nil {
			healthManager.RegisterChecker("platform", health.BreakerChecker(client))
		}
		healthManager.RegisterRoutes(router)
		container.SetHealth(healthManager)
	}

	metricsManager.RegisterRoutes(router)

	if _config.Cron != nil && _config.Cron.Enabled && coordinator != nil && _config.Redeploy.Schedule != "" {
		cronManager, err := cron.NewManager(ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		functionName := _config.Redeploy.FunctionName
		err = cronManager.Add(redeployJobName, _config.Redeploy.Schedule, func() {
			if err := coordinator.Run(ctx, functionName); err != nil {
				loggerManager.ErrorWithErrStack("Scheduled redeploy failed", err, zap.String("function", functionName))
			}
		})
		if err != nil {
			return types.WrapError(err, "failed to schedule redeploy")
		}
		container.SetCron(cronManager)
	}

	if _config.Server != nil && _config.Server.HTTP != nil {
		httpServer, err := server.NewHTTPServer(ctx, configManager, loggerManager, metricsManager, router)
		if err != nil {
			return types.WrapError(err, "failed to register HTTP server")
		}
		container.SetHTTPServer(httpServer)
	}

	return nil
}
