// Package redeploy republishes the running function with its current
// snapshot baked in, so the next cold instance starts from that state.
//
// Redeploys are best effort. Trigger never blocks the caller and a failed
// redeploy is logged and dropped; nothing is retried.
package redeploy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-lru/packager"
	"github.com/saiset-co/sai-lru/platform"
	"github.com/saiset-co/sai-lru/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultQueueSize = 4
	DefaultTimeout   = 60 * time.Second
)

// RecordSource supplies the snapshot record to ship.
type RecordSource interface {
	Record(ctx context.Context) ([]byte, error)
}

type Options struct {
	Client         platform.FunctionClient
	Records        RecordSource
	PackageRoot    string
	ExecutableName string
	SnapshotName   string
	QueueSize      int
	Timeout        time.Duration
	Logger         types.Logger
	Metrics        types.MetricsManager
}

type Coordinator struct {
	client         platform.FunctionClient
	records        RecordSource
	packageRoot    string
	executableName string
	snapshotName   string
	timeout        time.Duration
	logger         types.Logger
	metrics        types.MetricsManager

	executable func() (string, error)

	queue   chan string
	pending map[string]struct{}
	mu      sync.Mutex
	flight  singleflight.Group
	state   atomic.Value
	stop    chan struct{}
	done    chan struct{}
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "platform client is required")
	}
	if opts.Records == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "record source is required")
	}
	if opts.Logger == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "logger is required")
	}
	if opts.ExecutableName == "" || opts.SnapshotName == "" {
		return nil, types.Errorf(types.ErrInvalidParameter, "executable and snapshot entry names are required")
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	c := &Coordinator{
		client:         opts.Client,
		records:        opts.Records,
		packageRoot:    opts.PackageRoot,
		executableName: opts.ExecutableName,
		snapshotName:   opts.SnapshotName,
		timeout:        opts.Timeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		executable:     os.Executable,
		queue:          make(chan string, opts.QueueSize),
		pending:        make(map[string]struct{}),
	}

	c.state.Store(StateStopped)
	return c, nil
}

func (c *Coordinator) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.worker(c.stop, c.done)

	c.setState(StateRunning)
	c.logger.Debug("Redeploy coordinator started", zap.Int("queue_size", cap(c.queue)))
	return nil
}

// Stop lets an in-flight redeploy finish within its timeout and drops
// whatever is still queued.
func (c *Coordinator) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer c.setState(StateStopped)

	close(c.stop)

	select {
	case <-c.done:
	case <-time.After(c.timeout + 5*time.Second):
		c.logger.Warn("Redeploy worker did not stop in time")
	}

	for {
		select {
		case fn := <-c.queue:
			c.release(fn)
			c.logger.Warn("Queued redeploy dropped on shutdown", zap.String("function", fn))
		default:
			c.logger.Debug("Redeploy coordinator stopped")
			return nil
		}
	}
}

func (c *Coordinator) IsRunning() bool {
	return c.getState() == StateRunning
}

// Trigger queues a redeploy of functionName and returns immediately. A
// redeploy already queued for the same function absorbs the trigger; a full
// queue drops it.
func (c *Coordinator) Trigger(functionName string) {
	if functionName == "" {
		c.countTrigger("invalid")
		return
	}

	if !c.IsRunning() {
		c.countTrigger("stopped")
		c.logger.Debug("Redeploy trigger ignored, coordinator not running", zap.String("function", functionName))
		return
	}

	c.mu.Lock()
	if _, queued := c.pending[functionName]; queued {
		c.mu.Unlock()
		c.countTrigger("coalesced")
		return
	}
	c.pending[functionName] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- functionName:
		c.countTrigger("queued")
	default:
		c.release(functionName)
		c.countTrigger("dropped")
		c.logger.Warn("Redeploy queue full, trigger dropped",
			zap.String("function", functionName),
			zap.Error(types.ErrRedeployQueueFull))
	}
}

// Run redeploys functionName now. Concurrent runs for the same function
// share one upload.
func (c *Coordinator) Run(ctx context.Context, functionName string) error {
	_, err, shared := c.flight.Do(functionName, func() (interface{}, error) {
		return nil, c.Redeploy(ctx, functionName)
	})

	if shared {
		c.logger.Debug("Redeploy coalesced with one in flight", zap.String("function", functionName))
	}

	return err
}

// Redeploy packages the executable with the current snapshot record and
// publishes it as a new version of functionName.
func (c *Coordinator) Redeploy(ctx context.Context, functionName string) (err error) {
	if functionName == "" {
		return types.ErrFunctionNameEmpty
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() { c.observe(err, start) }()

	archive, err := c.Package(ctx)
	if err != nil {
		return err
	}

	current, err := c.client.GetFunction(ctx, functionName)
	if err != nil {
		return errors.Wrap(err, "failed to look up function")
	}

	c.logger.Debug("Publishing new function version",
		zap.String("function", functionName),
		zap.String("current_version", current.Version),
		zap.Int("archive_bytes", len(archive)))

	version, err := c.client.UpdateFunctionCode(ctx, functionName, archive)
	if err != nil {
		return errors.Wrap(err, "failed to update function code")
	}

	c.logger.Info("Function redeployed",
		zap.String("function", functionName),
		zap.String("previous_version", current.Version),
		zap.String("version", version.Version),
		zap.Int64("code_size", version.CodeSize),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// Package builds the deployment archive: the executable plus the current
// snapshot record, read concurrently.
func (c *Coordinator) Package(ctx context.Context) ([]byte, error) {
	var exe, record []byte

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		exe, err = c.readExecutable()
		return err
	})

	g.Go(func() error {
		var err error
		record, err = c.records.Record(gCtx)
		if err != nil {
			return errors.Wrap(err, "failed to read snapshot record")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, types.Chain(types.ErrRedeployFailed, err)
	}

	return packager.Build([]packager.Payload{
		{Name: c.executableName, Source: packager.FromBytes(exe)},
		{Name: c.snapshotName, Source: packager.FromBytes(record)},
	})
}

func (c *Coordinator) readExecutable() ([]byte, error) {
	if c.packageRoot != "" {
		path := filepath.Join(c.packageRoot, c.executableName)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		c.logger.Debug("Packaged executable unavailable, using running binary",
			zap.String("path", path),
			zap.Error(err))
	}

	path, err := c.executable()
	if err != nil {
		return nil, errors.WithStack(types.Errorf(types.ErrExecutableNotFound, "%v", err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(types.Errorf(types.ErrExecutableNotFound, "%s: %v", path, err))
	}

	return data, nil
}

func (c *Coordinator) worker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case fn := <-c.queue:
			c.release(fn)

			select {
			case <-stop:
				c.logger.Warn("Queued redeploy dropped on shutdown", zap.String("function", fn))
				return
			default:
			}

			c.runQueued(fn)
		}
	}
}

func (c *Coordinator) runQueued(functionName string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Redeploy panicked", zap.String("function", functionName), zap.Any("panic", r))
		}
	}()

	if err := c.Run(context.Background(), functionName); err != nil {
		c.logger.ErrorWithErrStack("Redeploy failed", err, zap.String("function", functionName))
	}
}

func (c *Coordinator) release(functionName string) {
	c.mu.Lock()
	delete(c.pending, functionName)
	c.mu.Unlock()
}

func (c *Coordinator) countTrigger(result string) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("redeploy_triggers_total", map[string]string{"result": result}).Inc()
}

func (c *Coordinator) observe(err error, start time.Time) {
	if c.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	c.metrics.Counter("redeploy_total", map[string]string{"result": result}).Inc()
	c.metrics.Histogram("redeploy_duration_seconds",
		[]float64{0.5, 1, 2.5, 5, 10, 30, 60},
		nil,
	).ObserveDuration(start)
}

func (c *Coordinator) getState() State {
	return c.state.Load().(State)
}

func (c *Coordinator) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *Coordinator) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
