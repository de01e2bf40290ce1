package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
)

var (
	ErrInvalidCapacity = errors.New("invalid cache capacity")
)

var (
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrSnapshotMalformed    = errors.New("snapshot malformed")
	ErrSnapshotReadOnly     = errors.New("snapshot location is read-only")
	ErrSnapshotWriteFailed  = errors.New("snapshot write failed")
	ErrSnapshotReadFailed   = errors.New("snapshot read failed")
	ErrStorageTypeUnknown   = errors.New("snapshot storage type unknown")
	ErrStorageConfigInvalid = errors.New("snapshot storage config invalid")
)

var (
	ErrPackagingFailed      = errors.New("packaging failed")
	ErrRedeployFailed       = errors.New("redeploy failed")
	ErrRedeployQueueFull    = errors.New("redeploy queue full")
	ErrFunctionNameEmpty    = errors.New("function name is empty")
	ErrPlatformCallFailed   = errors.New("platform call failed")
	ErrCircuitBreakerOpen   = errors.New("circuit breaker open")
	ErrPlatformTypeUnknown  = errors.New("platform type unknown")
	ErrExecutableNotFound   = errors.New("executable not found")
	ErrRedeployNotAvailable = errors.New("redeploy coordinator not available")
)

var (
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobExists         = errors.New("cron job exists")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
)

var (
	ErrHealthIsNotRunning = errors.New("health manager is not running")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrServiceIsRunning    = errors.New("service is running")
	ErrServiceIsNotRunning = errors.New("service is not running")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInternalError    = errors.New("internal error")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Chain marks err as a baseErr failure while keeping err matchable.
func Chain(baseErr, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", baseErr, err)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
