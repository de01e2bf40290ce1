package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/middleware"
	"github.com/saiset-co/sai-lru/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const maxRequestBodySize = 1 << 20

// FastHTTPServer is the local stand-in for the function runtime: it serves
// invocations over HTTP next to the health and metrics endpoints.
type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	router          *FastHTTPRouter
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, router *FastHTTPRouter) (*FastHTTPServer, error) {
	serverConfig := config.GetConfig().Server
	if serverConfig == nil || serverConfig.HTTP == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "server.http")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := time.Duration(serverConfig.HTTP.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		router:          router,
		httpConfig:      serverConfig.HTTP,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return types.Chain(types.ErrServerStartFailed, err)
	}

	h.listener = listener
	h.server = &fasthttp.Server{
		Handler: fasthttp.RequestHandler(middleware.Chain(h.router.Handler(),
			middleware.RequestID(),
			middleware.Logging(h.logger, h.metrics),
			middleware.Recovery(h.logger, h.metrics),
		)),
		Name:               "sai-lru",
		ReadTimeout:        time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:        time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize: maxRequestBodySize,
		CloseOnShutdown:    true,
		Logger:             fasthttpLogger{logger: h.logger},
	}

	go func() {
		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			h.setState(StateStopped)
		}
	}()

	h.setState(StateRunning)
	h.logger.Info("HTTP server started", zap.String("address", listener.Addr().String()))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("HTTP server did not shut down gracefully", zap.Error(err))
		return types.Chain(types.ErrServerStopFailed, err)
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr is the bound listen address, or "" before Start.
func (h *FastHTTPServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) bool {
	currentState := h.getState()
	return h.state.CompareAndSwap(currentState, newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

type fasthttpLogger struct {
	logger types.Logger
}

func (l fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
