package metrics

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-lru/config"
	"github.com/saiset-co/sai-lru/logger"
	"github.com/saiset-co/sai-lru/types"
)

func newManager(t *testing.T, metricsConfig *types.MetricsConfig) *Manager {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Metrics = metricsConfig

	m, err := NewManager(context.Background(), config.NewStaticManager(cfg), logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestDisabledManagerHandsOutNoops(t *testing.T) {
	m := newManager(t, &types.MetricsConfig{Enabled: false})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if m.Enabled() {
		t.Error("Disabled manager reports a backend")
	}

	c := m.Counter("requests_total", nil)
	c.Inc()
	if c.Get() != 0 {
		t.Error("No-op counter must stay at zero")
	}
}

func TestPrometheusInstruments(t *testing.T) {
	m := newManager(t, &types.MetricsConfig{
		Enabled: true,
		Type:    "prometheus",
		Config:  map[string]interface{}{"enable_go_metrics": false},
	})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	labels := map[string]string{"operation": "get", "result": "hit"}
	m.Counter("cache_requests_total", labels).Inc()
	m.Counter("cache_requests_total", labels).Add(2)

	if got := m.Counter("cache_requests_total", labels).Get(); got != 3 {
		t.Errorf("Expected counter 3, got %v", got)
	}

	other := m.Counter("cache_requests_total", map[string]string{"operation": "set", "result": "stored"})
	if other.Get() != 0 {
		t.Error("Label sets must be counted separately")
	}

	h := m.Histogram("snapshot_operation_duration_seconds", []float64{0.1, 1}, map[string]string{"operation": "save"})
	h.Observe(0.5)
	h.Observe(0.25)
	if h.GetCount() != 2 || h.GetSum() != 0.75 {
		t.Errorf("Unexpected histogram count %d sum %v", h.GetCount(), h.GetSum())
	}

	g := m.Gauge("redeploy_queue_depth", nil)
	g.Set(3)
	g.Dec()
	if g.Get() != 2 {
		t.Errorf("Expected gauge 2, got %v", g.Get())
	}
}

func TestMemoryInstruments(t *testing.T) {
	mem := NewMemoryMetrics(logger.NewNopLogger(), nil)

	mem.Counter("cache_evictions_total", nil).Inc()
	mem.Counter("cache_evictions_total", nil).Inc()
	mem.Counter("cache_requests_total", map[string]string{"result": "miss", "operation": "get"}).Inc()

	values := mem.Values()
	if len(values) != 2 {
		t.Fatalf("Expected 2 instruments, got %+v", values)
	}

	if values[0].Name != "cache_evictions_total" || values[0].Value != 2 {
		t.Errorf("Unexpected first value %+v", values[0])
	}
	if values[1].Name != `cache_requests_total{operation="get",result="miss"}` {
		t.Errorf("Labels must be rendered in name order, got %s", values[1].Name)
	}
}

func TestUnknownMetricsType(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Metrics = &types.MetricsConfig{Enabled: true, Type: "statsd"}

	_, err := NewManager(context.Background(), config.NewStaticManager(cfg), logger.NewNopLogger())
	if !types.IsError(err, types.ErrMetricsTypeUnknown) {
		t.Errorf("Expected ErrMetricsTypeUnknown, got %v", err)
	}
}
