// Package platform talks to the function hosting platform: it looks up the
// deployed function and replaces its code package.
package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
)

type FunctionInfo struct {
	Name         string
	ARN          string
	Version      string
	CodeSHA256   string
	CodeSize     int64
	LastModified string
}

type FunctionVersion struct {
	ARN        string
	Version    string
	CodeSHA256 string
	CodeSize   int64
}

type FunctionClient interface {
	GetFunction(ctx context.Context, name string) (*FunctionInfo, error)
	UpdateFunctionCode(ctx context.Context, name string, archive []byte) (*FunctionVersion, error)
}

type ClientCreator func(config interface{}) (FunctionClient, error)

var customClientCreators = make(map[string]ClientCreator)

func RegisterClient(platformType string, creator ClientCreator) {
	customClientCreators[platformType] = creator
}

// NewFunctionClient builds the client named by config.Type, guarded by a
// circuit breaker when one is configured.
func NewFunctionClient(ctx context.Context, config *types.PlatformConfig, logger types.Logger, metrics types.MetricsManager) (*GuardedClient, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl FunctionClient
	var err error

	switch config.Type {
	case "aws", "lambda":
		impl, err = NewAWSClient(ctx, config.Region, logger)
	default:
		if creator, exists := customClientCreators[config.Type]; exists {
			impl, err = creator(config)
		} else {
			return nil, types.Errorf(types.ErrPlatformTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to create platform client")
	}

	return NewGuardedClient(impl, NewCircuitBreaker(config.CircuitBreaker, logger, config.Type), logger, metrics), nil
}

// GuardedClient routes calls through a circuit breaker. While the breaker is
// open calls fail fast with types.ErrCircuitBreakerOpen; nothing is retried.
type GuardedClient struct {
	impl    FunctionClient
	breaker *CircuitBreaker
	logger  types.Logger
	metrics types.MetricsManager
}

func NewGuardedClient(impl FunctionClient, breaker *CircuitBreaker, logger types.Logger, metrics types.MetricsManager) *GuardedClient {
	return &GuardedClient{
		impl:    impl,
		breaker: breaker,
		logger:  logger,
		metrics: metrics,
	}
}

func (g *GuardedClient) GetFunction(ctx context.Context, name string) (*FunctionInfo, error) {
	var info *FunctionInfo
	err := g.call(ctx, "get_function", name, func(ctx context.Context) error {
		var err error
		info, err = g.impl.GetFunction(ctx, name)
		return err
	})
	return info, err
}

func (g *GuardedClient) UpdateFunctionCode(ctx context.Context, name string, archive []byte) (*FunctionVersion, error) {
	var version *FunctionVersion
	err := g.call(ctx, "update_function_code", name, func(ctx context.Context) error {
		var err error
		version, err = g.impl.UpdateFunctionCode(ctx, name, archive)
		return err
	})
	return version, err
}

// BreakerState is "disabled", "closed", "open" or "half-open".
func (g *GuardedClient) BreakerState() string {
	return g.breaker.GetStateString()
}

func (g *GuardedClient) Breaker() *CircuitBreaker {
	return g.breaker
}

func (g *GuardedClient) call(ctx context.Context, operation, name string, fn func(context.Context) error) error {
	if name == "" {
		return types.ErrFunctionNameEmpty
	}

	if !g.breaker.CanExecute() {
		g.record(operation, "rejected", 0)
		return types.Errorf(types.ErrCircuitBreakerOpen, "%s %s", operation, name)
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		g.breaker.RecordFailure()
		g.record(operation, "error", duration)
		g.logger.Debug("Platform call failed",
			zap.String("operation", operation),
			zap.String("function", name),
			zap.Duration("duration", duration),
			zap.Error(err))
		return types.Errorf(types.ErrPlatformCallFailed, "%s %s: %v", operation, name, err)
	}

	g.breaker.RecordSuccess()
	g.record(operation, "success", duration)
	return nil
}

func (g *GuardedClient) record(operation, result string, duration time.Duration) {
	if g.metrics == nil {
		return
	}

	g.metrics.Counter("platform_calls_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	if result != "rejected" {
		g.metrics.Histogram("platform_call_duration_seconds",
			[]float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			map[string]string{"operation": operation},
		).Observe(duration.Seconds())
	}
}
