package types

import (
	"time"

	"github.com/robfig/cron/v3"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job func()) error
}

type JobEntry struct {
	ID           cron.EntryID
	Name         string
	Spec         string
	AddedAt      time.Time
	LastRun      time.Time
	LastDuration time.Duration
	RunCount     int64
}
