package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Specs take an optional leading seconds field and the usual descriptors
// such as @hourly or @every 10m.
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*types.JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if cronConfig := config.GetConfig().Cron; cronConfig != nil && cronConfig.Timezone != "" {
		loc, err := time.LoadLocation(cronConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown cron timezone, using UTC", zap.String("timezone", cronConfig.Timezone), zap.Error(err))
		} else {
			timezone = loc
		}
	}

	cronL := cronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(specParser),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		jobs:            make(map[string]*types.JobEntry),
		timezone:        timezone,
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	if _, err := specParser.Parse(spec); err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%q: %v", spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entry := &types.JobEntry{
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(entry, job))
	if err != nil {
		return types.Chain(types.ErrCronExpressionInvalid, err)
	}

	entry.ID = entryID
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

// Jobs returns a copy of the registered job entries.
func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, *entry)
	}
	return jobs
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setState(StateRunning)

	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

// Stop waits for running jobs up to the shutdown timeout.
func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
		m.cancel()
	}()

	select {
	case <-m.cron.Stop().Done():
		m.logger.Info("Cron scheduler stopped gracefully")
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron scheduler stop timeout, jobs still running")
	}

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) wrapJob(entry *types.JobEntry, job func()) func() {
	return func() {
		startTime := time.Now()
		result := "success"

		defer func() {
			if r := recover(); r != nil {
				result = "panic"
				m.logger.Error("Cron job panicked",
					zap.String("job_name", entry.Name),
					zap.Any("panic", r))
			}

			duration := time.Since(startTime)

			m.mu.Lock()
			entry.LastRun = startTime
			entry.LastDuration = duration
			entry.RunCount++
			m.mu.Unlock()

			if m.metrics != nil {
				m.metrics.Counter("cron_job_executions_total", map[string]string{
					"job":    entry.Name,
					"result": result,
				}).Inc()
			}

			m.logger.Debug("Cron job finished",
				zap.String("job_name", entry.Name),
				zap.String("result", result),
				zap.Duration("duration", duration))
		}()

		m.logger.Debug("Cron job started", zap.String("job_name", entry.Name))
		job()
	}
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(toFields(keysAndValues), zap.Error(err))...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
