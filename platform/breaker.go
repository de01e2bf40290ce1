package platform

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker suppresses platform calls after repeated failures. It
// never retries; an open breaker only turns calls into fast failures until
// the recovery timeout has passed.
type CircuitBreaker struct {
	config   types.CircuitBreakerConfig
	logger   types.Logger
	name     string
	state    atomic.Value
	failures atomic.Int32
	success  atomic.Int32
	lastFail atomic.Int64
	mutex    sync.Mutex
	now      func() time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, name string) *CircuitBreaker {
	cb := &CircuitBreaker{
		logger: logger,
		name:   name,
		now:    time.Now,
	}

	if config != nil {
		cb.config = *config
	}

	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = 1
	}
	if cb.config.HalfOpenRequests <= 0 {
		cb.config.HalfOpenRequests = 1
	}

	cb.state.Store(StateBreakerClosed)
	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil || !cb.config.Enabled {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getState() {
	case StateBreakerOpen:
		if cb.now().Sub(time.Unix(0, cb.lastFail.Load())) >= cb.config.RecoveryTimeout {
			cb.transitionToHalfOpen()
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.getState() {
	case StateBreakerClosed:
		cb.failures.Store(0)
	case StateBreakerHalfOpen:
		successes := cb.success.Add(1)
		cb.logger.Debug("Success recorded in half-open state",
			zap.String("platform", cb.name),
			zap.Int32("successes", successes),
			zap.Int("required", cb.config.HalfOpenRequests))

		if successes >= int32(cb.config.HalfOpenRequests) {
			cb.transitionToClosed()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail.Store(cb.now().UnixNano())

	switch cb.getState() {
	case StateBreakerClosed:
		failures := cb.failures.Add(1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionToOpen()
		}
	case StateBreakerHalfOpen:
		cb.transitionToOpen()
	}
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	if cb == nil {
		return StateBreakerClosed
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.getState()
}

func (cb *CircuitBreaker) GetStateString() string {
	if cb == nil || !cb.config.Enabled {
		return "disabled"
	}

	switch cb.GetState() {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil || !cb.config.Enabled {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.transitionToClosed()
}

func (cb *CircuitBreaker) getState() CircuitBreakerState {
	return cb.state.Load().(CircuitBreakerState)
}

func (cb *CircuitBreaker) transitionState(from, to CircuitBreakerState) bool {
	return cb.state.CompareAndSwap(from, to)
}

func (cb *CircuitBreaker) transitionToClosed() {
	if cb.transitionState(cb.getState(), StateBreakerClosed) {
		cb.failures.Store(0)
		cb.success.Store(0)
		cb.lastFail.Store(0)
		cb.logger.Info("Circuit breaker closed", zap.String("platform", cb.name))
	}
}

func (cb *CircuitBreaker) transitionToOpen() {
	if cb.transitionState(cb.getState(), StateBreakerOpen) {
		cb.success.Store(0)
		cb.logger.Warn("Circuit breaker opened",
			zap.String("platform", cb.name),
			zap.Int32("failures", cb.failures.Load()),
			zap.Int("threshold", cb.config.FailureThreshold),
			zap.Duration("recovery_timeout", cb.config.RecoveryTimeout))
	}
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	if cb.transitionState(cb.getState(), StateBreakerHalfOpen) {
		cb.success.Store(0)
		cb.logger.Info("Circuit breaker transitioned to half-open", zap.String("platform", cb.name))
	}
}
