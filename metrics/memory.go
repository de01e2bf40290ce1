package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

// MemoryMetrics keeps every instrument in process and serves them as JSON.
// Handy for local runs and tests where a Prometheus scrape is overkill.
type MemoryMetrics struct {
	path       string
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	mu         sync.Mutex
	running    int32
}

type MetricValue struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Count uint64  `json:"count,omitempty"`
}

func NewMemoryMetrics(_ types.Logger, config *types.MetricsConfig) *MemoryMetrics {
	path := "/metrics"
	if config != nil && config.Path != "" {
		path = config.Path
	}

	return &MemoryMetrics{
		path:       path,
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[key]
	if !ok {
		counter = &MemoryCounter{}
		m.counters[key] = counter
	}
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, ok := m.gauges[key]
	if !ok {
		gauge = &MemoryGauge{}
		m.gauges[key] = gauge
	}
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, _ []float64, labels map[string]string) types.Histogram {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, ok := m.histograms[key]
	if !ok {
		histogram = &MemoryHistogram{}
		m.histograms[key] = histogram
	}
	return histogram
}

// Values lists every instrument sorted by key. Histograms report their sum.
func (m *MemoryMetrics) Values() []MetricValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make([]MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))
	for key, c := range m.counters {
		values = append(values, MetricValue{Name: key, Type: "counter", Value: c.Get()})
	}
	for key, g := range m.gauges {
		values = append(values, MetricValue{Name: key, Type: "gauge", Value: g.Get()})
	}
	for key, h := range m.histograms {
		values = append(values, MetricValue{Name: key, Type: "histogram", Value: h.GetSum(), Count: h.GetCount()})
	}

	sort.Slice(values, func(i, j int) bool { return values[i].Name < values[j].Name })
	return values
}

func (m *MemoryMetrics) RegisterRoutes(router types.HTTPRouter) {
	router.GET(m.path, func(ctx *fasthttp.RequestCtx) {
		body, err := utils.Marshal(m.Values())
		if err != nil {
			utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		utils.WriteJSON(ctx, fasthttp.StatusOK, body)
	})
}

type MemoryCounter struct {
	mu    sync.Mutex
	value float64
}

func (c *MemoryCounter) Inc() { c.Add(1) }

func (c *MemoryCounter) Add(value float64) {
	if value < 0 {
		return
	}
	c.mu.Lock()
	c.value += value
	c.mu.Unlock()
}

func (c *MemoryCounter) Get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

type MemoryGauge struct {
	mu    sync.Mutex
	value float64
}

func (g *MemoryGauge) Set(value float64) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

func (g *MemoryGauge) Inc() { g.add(1) }
func (g *MemoryGauge) Dec() { g.add(-1) }

func (g *MemoryGauge) add(delta float64) {
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
}

func (g *MemoryGauge) Get() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

type MemoryHistogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
}

func (h *MemoryHistogram) Observe(value float64) {
	h.mu.Lock()
	h.count++
	h.sum += value
	h.mu.Unlock()
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *MemoryHistogram) GetSum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}
