package health

import (
	"context"

	"github.com/saiset-co/sai-lru/types"
)

// Pinger is anything that can prove its backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotChecker reports whether the writable snapshot location can be read.
func SnapshotChecker(p Pinger) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := p.Ping(ctx); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

type BreakerStater interface {
	BreakerState() string
}

// BreakerChecker surfaces the platform circuit breaker. An open breaker
// only degrades redeploys, so it is reported as unknown rather than
// unhealthy.
func BreakerChecker(b BreakerStater) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		state := b.BreakerState()

		status := types.StatusHealthy
		if state == "open" || state == "half-open" {
			status = types.StatusUnknown
		}

		return types.HealthCheck{
			Status:  status,
			Details: map[string]interface{}{"state": state},
		}
	}
}
