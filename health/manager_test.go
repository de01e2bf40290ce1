package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saiset-co/sai-lru/config"
	"github.com/saiset-co/sai-lru/logger"
	"github.com/saiset-co/sai-lru/types"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type breakerState string

func (b breakerState) BreakerState() string { return string(b) }

func newManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(context.Background(), config.NewStaticManager(config.NewLoader().Defaults()), logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestReportAggregatesChecks(t *testing.T) {
	tests := []struct {
		name     string
		snapshot error
		breaker  string
		want     types.HealthStatus
	}{
		{name: "all healthy", breaker: "closed", want: types.StatusHealthy},
		{name: "breaker open", breaker: "open", want: types.StatusUnknown},
		{name: "snapshot unreadable", snapshot: errors.New("permission denied"), breaker: "closed", want: types.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t)
			m.RegisterChecker("snapshot", SnapshotChecker(pingerFunc(func(context.Context) error { return tt.snapshot })))
			m.RegisterChecker("platform", BreakerChecker(breakerState(tt.breaker)))

			report := m.Check(context.Background())
			if report.Status != tt.want {
				t.Errorf("Expected %s, got %s (%+v)", tt.want, report.Status, report.Checks)
			}
			if report.Summary.Total != 2 {
				t.Errorf("Expected 2 checks, got %d", report.Summary.Total)
			}
			if report.Service.Name != "sai-lru" {
				t.Errorf("Unexpected service info %+v", report.Service)
			}
		})
	}
}

func TestPanickingCheckIsUnhealthy(t *testing.T) {
	m := newManager(t)
	m.RegisterChecker("boom", func(context.Context) types.HealthCheck { panic("oops") })

	report := m.Check(context.Background())
	if check := report.Checks["boom"]; check.Status != types.StatusUnhealthy || check.Name != "boom" {
		t.Errorf("Unexpected check result %+v", check)
	}
}

func TestSlowCheckTimesOut(t *testing.T) {
	m := newManager(t)
	m.checkTimeout = 20 * time.Millisecond
	m.RegisterChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := m.Check(context.Background())
	if report.Checks["slow"].Status != types.StatusUnhealthy {
		t.Errorf("Expected timed out check to be unhealthy, got %+v", report.Checks["slow"])
	}
}
