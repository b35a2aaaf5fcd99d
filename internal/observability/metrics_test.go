package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------
// Counter Tests
// -----------------------------------------------------------------------

func TestCounter_IncAndAdd(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("trades_attempted", "Trades attempted", nil)

	assert.Equal(t, 0.0, c.Value())

	c.Inc()
	assert.Equal(t, 1.0, c.Value())

	c.Inc()
	c.Inc()
	assert.Equal(t, 3.0, c.Value())

	c.Add(2.5)
	assert.Equal(t, 5.5, c.Value())

	c.Add(0.001)
	assert.InDelta(t, 5.501, c.Value(), 0.0001)

	// Negative delta is ignored, counters only go up.
	c.Add(-10)
	assert.InDelta(t, 5.501, c.Value(), 0.0001)

	entry := c.Entry()
	assert.Equal(t, "trades_attempted", entry.Name)
	assert.Equal(t, MetricCounter, entry.Type)
	assert.Equal(t, "Trades attempted", entry.Help)
	assert.InDelta(t, 5.501, entry.Value, 0.0001)
}

func TestCounter_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("concurrent_counter", "counter for concurrency test", nil)

	var wg sync.WaitGroup
	n := 1000
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(n), c.Value())
}

// -----------------------------------------------------------------------
// Gauge Tests
// -----------------------------------------------------------------------

func TestGauge_SetAndAdd(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("gas_price_gwei", "Observed gas price", nil)

	assert.Equal(t, 0.0, g.Value())

	g.Set(42.5)
	assert.Equal(t, 42.5, g.Value())

	g.Inc()
	assert.Equal(t, 43.5, g.Value())

	g.Dec()
	assert.Equal(t, 42.5, g.Value())

	g.Add(-50)
	assert.Equal(t, -7.5, g.Value())

	g.Set(0)
	assert.Equal(t, 0.0, g.Value())

	entry := g.Entry()
	assert.Equal(t, "gas_price_gwei", entry.Name)
	assert.Equal(t, MetricGauge, entry.Type)
}

func TestGauge_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("concurrent_gauge", "gauge for concurrency test", nil)

	var wg sync.WaitGroup
	n := 1000
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			g.Inc()
		}()
		go func() {
			defer wg.Done()
			g.Dec()
		}()
	}
	wg.Wait()

	// Equal increments and decrements cancel out.
	assert.Equal(t, 0.0, g.Value())
}

// -----------------------------------------------------------------------
// Histogram Tests
// -----------------------------------------------------------------------

func TestHistogram_Observe(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("submission_ms", "Submission latency", nil,
		[]float64{10, 25, 50, 100})

	h.Observe(5)
	h.Observe(15)
	h.Observe(30)
	h.Observe(75)
	h.Observe(200)

	assert.Equal(t, int64(5), h.Count())
	assert.InDelta(t, 325.0, h.Sum(), 0.001)

	buckets, counts, sum, count := h.BucketCounts()
	assert.Equal(t, []float64{10, 25, 50, 100}, buckets)
	// Cumulative: <=10: 1, <=25: 2, <=50: 3, <=100: 4
	assert.Equal(t, []int64{1, 2, 3, 4}, counts)
	assert.InDelta(t, 325.0, sum, 0.001)
	assert.Equal(t, int64(5), count)

	entry := h.Entry()
	assert.Equal(t, "submission_ms", entry.Name)
	assert.Equal(t, MetricHistogram, entry.Type)
	assert.Equal(t, float64(5), entry.Value) // Entry.Value = count
}

func TestHistogram_Quantile(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("quantile_hist", "quantile test", nil,
		[]float64{10, 25, 50, 100, 250})

	// 100 values spread across the buckets:
	// 20 in (0,10], 30 in (10,25], 20 in (25,50], 20 in (50,100], 10 in (100,250]
	for i := 0; i < 20; i++ {
		h.Observe(5)
	}
	for i := 0; i < 30; i++ {
		h.Observe(20)
	}
	for i := 0; i < 20; i++ {
		h.Observe(40)
	}
	for i := 0; i < 20; i++ {
		h.Observe(75)
	}
	for i := 0; i < 10; i++ {
		h.Observe(200)
	}

	assert.Equal(t, int64(100), h.Count())

	p50 := h.Quantile(0.5)
	assert.True(t, p50 >= 10 && p50 <= 25,
		"p50 should be between 10 and 25, got %f", p50)

	p90 := h.Quantile(0.9)
	assert.True(t, p90 >= 50 && p90 <= 100,
		"p90 should be between 50 and 100, got %f", p90)

	p99 := h.Quantile(0.99)
	assert.True(t, p99 >= 100 && p99 <= 250,
		"p99 should be between 100 and 250, got %f", p99)

	assert.Equal(t, 0.0, h.Quantile(-0.1))
	assert.Equal(t, 0.0, h.Quantile(1.5))

	empty := r.NewHistogram("empty_hist", "empty", nil, []float64{10, 50})
	assert.Equal(t, 0.0, empty.Quantile(0.5))
}

// -----------------------------------------------------------------------
// Registry Tests
// -----------------------------------------------------------------------

func TestRegistry_NewAndGet(t *testing.T) {
	r := NewRegistry()

	c := r.NewCounter("my_counter", "help", map[string]string{"chain": "ethereum"})
	assert.NotNil(t, c)
	assert.Equal(t, c, r.GetCounter("my_counter"))
	assert.Nil(t, r.GetCounter("nonexistent"))

	g := r.NewGauge("my_gauge", "help", nil)
	assert.NotNil(t, g)
	assert.Equal(t, g, r.GetGauge("my_gauge"))
	assert.Nil(t, r.GetGauge("nonexistent"))

	h := r.NewHistogram("my_hist", "help", nil, DefaultLatencyBuckets)
	assert.NotNil(t, h)
	assert.Equal(t, h, r.GetHistogram("my_hist"))
	assert.Nil(t, r.GetHistogram("nonexistent"))

	// Registering the same name returns the existing metric.
	c2 := r.NewCounter("my_counter", "different help", nil)
	assert.Equal(t, c, c2)

	all := r.AllMetrics()
	assert.Len(t, all, 3)
}

func TestRegistry_AllMetrics_Order(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("z_counter", "z", nil)
	r.NewCounter("a_counter", "a", nil)
	r.NewGauge("m_gauge", "m", nil)

	all := r.AllMetrics()
	require.Len(t, all, 3)
	// Counters first (sorted), then gauges.
	assert.Equal(t, "a_counter", all[0].Name)
	assert.Equal(t, "z_counter", all[1].Name)
	assert.Equal(t, "m_gauge", all[2].Name)
}

// -----------------------------------------------------------------------
// HornetMetrics Tests
// -----------------------------------------------------------------------

func TestHornetMetrics_AllRegistered(t *testing.T) {
	r := HornetMetrics()

	expectedCounters := []string{
		"hornet_trades_attempted_total",
		"hornet_trades_successful_total",
		"hornet_trades_failed_total",
		"hornet_sandwich_attempts_total",
		"hornet_sandwich_wins_total",
		"hornet_gas_bump_retries_total",
		"hornet_rpc_errors_total",
		"hornet_safety_refusals_total",
	}
	for _, name := range expectedCounters {
		c := r.GetCounter(name)
		require.NotNilf(t, c, "counter %s should be registered", name)
		assert.Equal(t, 0.0, c.Value())
	}

	expectedGauges := []string{
		"hornet_active_trades",
		"hornet_tracked_tokens",
		"hornet_mempool_pending_swaps",
		"hornet_gas_price_gwei",
	}
	for _, name := range expectedGauges {
		g := r.GetGauge(name)
		require.NotNilf(t, g, "gauge %s should be registered", name)
		assert.Equal(t, 0.0, g.Value())
	}

	expectedHistograms := []string{
		"hornet_submission_latency_ms",
		"hornet_trade_gas_used",
		"hornet_trade_amount_native",
	}
	for _, name := range expectedHistograms {
		h := r.GetHistogram(name)
		require.NotNilf(t, h, "histogram %s should be registered", name)
		assert.Equal(t, int64(0), h.Count())
	}

	// 8 counters + 4 gauges + 3 histograms = 15.
	all := r.AllMetrics()
	assert.Len(t, all, 15)
}

// -----------------------------------------------------------------------
// HealthMonitor Tests
// -----------------------------------------------------------------------

func TestHealthMonitor_RegisterAndCheck(t *testing.T) {
	mon := NewHealthMonitor(time.Second)

	mon.Register("rpc", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Status:  StatusHealthy,
			Message: "connected",
		}
	})

	mon.Register("mempool", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Status:  StatusHealthy,
			Message: "ok",
		}
	})

	ctx := context.Background()
	health := mon.Check(ctx)

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)

	rpcHealth, ok := health.Components["rpc"]
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, rpcHealth.Status)
	assert.Equal(t, "rpc", rpcHealth.Name)
	assert.Equal(t, "connected", rpcHealth.Message)
	assert.False(t, rpcHealth.LastChecked.IsZero())
	assert.True(t, rpcHealth.Latency >= 0)

	comp, ok := mon.ComponentStatus("rpc")
	assert.True(t, ok)
	assert.Equal(t, StatusHealthy, comp.Status)

	_, ok = mon.ComponentStatus("nonexistent")
	assert.False(t, ok)
}

func TestHealthMonitor_AggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ComponentStatus
		expected ComponentStatus
	}{
		{
			name:     "all healthy",
			statuses: []ComponentStatus{StatusHealthy, StatusHealthy, StatusHealthy},
			expected: StatusHealthy,
		},
		{
			name:     "one degraded",
			statuses: []ComponentStatus{StatusHealthy, StatusDegraded, StatusHealthy},
			expected: StatusDegraded,
		},
		{
			name:     "one unhealthy",
			statuses: []ComponentStatus{StatusHealthy, StatusDegraded, StatusUnhealthy},
			expected: StatusUnhealthy,
		},
		{
			name:     "all unhealthy",
			statuses: []ComponentStatus{StatusUnhealthy, StatusUnhealthy},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := NewHealthMonitor(time.Minute)

			for i, s := range tt.statuses {
				status := s // capture
				name := string(rune('a' + i))
				mon.Register(name, func(ctx context.Context) ComponentHealth {
					return ComponentHealth{Status: status}
				})
			}

			ctx := context.Background()
			health := mon.Check(ctx)
			assert.Equal(t, tt.expected, health.Status)
			assert.True(t, health.Uptime > 0)
		})
	}
}

func TestHealthMonitor_Alerts(t *testing.T) {
	mon := NewHealthMonitor(time.Minute)

	callCount := 0
	mon.Register("flaky", func(ctx context.Context) ComponentHealth {
		callCount++
		if callCount == 1 {
			return ComponentHealth{Status: StatusHealthy, Message: "ok"}
		}
		return ComponentHealth{Status: StatusUnhealthy, Message: "connection lost"}
	})

	ctx := context.Background()

	// First check: the component is new, so an alert fires for the initial state.
	mon.Check(ctx)
	alert := drainAlert(t, mon.Alerts())
	assert.Equal(t, "info", alert.Level)
	assert.Equal(t, "flaky", alert.Component)

	// Second check: healthy -> unhealthy fires a critical alert.
	mon.Check(ctx)
	alert = drainAlert(t, mon.Alerts())
	assert.Equal(t, "critical", alert.Level)
	assert.Equal(t, "flaky", alert.Component)
	assert.Contains(t, alert.Message, "connection lost")
}

func TestHealthMonitor_RecoveryAlertAndStreak(t *testing.T) {
	mon := NewHealthMonitor(time.Minute)

	calls := 0
	mon.Register("relay", func(ctx context.Context) ComponentHealth {
		calls++
		if calls <= 2 {
			return ComponentHealth{Status: StatusUnhealthy, Message: "bundle endpoint down"}
		}
		return ComponentHealth{Status: StatusHealthy}
	})

	ctx := context.Background()

	mon.Check(ctx)
	alert := drainAlert(t, mon.Alerts())
	assert.Equal(t, LevelCritical, alert.Level)
	assert.Equal(t, StatusUnhealthy, alert.Status)

	// Still unhealthy: no transition, no alert, but the streak grows.
	mon.Check(ctx)
	comp, ok := mon.ComponentStatus("relay")
	require.True(t, ok)
	assert.Equal(t, 2, comp.Streak)

	mon.Check(ctx)
	alert = drainAlert(t, mon.Alerts())
	assert.Equal(t, LevelInfo, alert.Level)
	assert.Equal(t, StatusHealthy, alert.Status)
	assert.Equal(t, "recovered", alert.Message)

	comp, _ = mon.ComponentStatus("relay")
	assert.Equal(t, 0, comp.Streak, "recovery resets the streak")
}

func TestHealthMonitor_ProbeTimeout(t *testing.T) {
	mon := NewHealthMonitor(40 * time.Millisecond) // probes cut off at 20ms

	mon.Register("stuck", func(ctx context.Context) ComponentHealth {
		select {
		case <-ctx.Done():
			return ComponentHealth{Status: StatusUnhealthy, Message: "node not answering"}
		case <-time.After(time.Second):
			return ComponentHealth{Status: StatusHealthy}
		}
	})

	start := time.Now()
	health := mon.Check(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"a hung probe must not stall the sweep")
	assert.Equal(t, StatusUnhealthy, health.Status)
}

func TestHealthMonitor_StartStop(t *testing.T) {
	mon := NewHealthMonitor(50 * time.Millisecond)

	var mu sync.Mutex
	checkCount := 0
	mon.Register("ticker", func(ctx context.Context) ComponentHealth {
		mu.Lock()
		checkCount++
		mu.Unlock()
		return ComponentHealth{Status: StatusHealthy}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mon.Start(ctx)

	// Wait for at least a few check cycles.
	time.Sleep(200 * time.Millisecond)
	mon.Stop()

	mu.Lock()
	count := checkCount
	mu.Unlock()

	// Initial check plus at least one ticker fire.
	assert.GreaterOrEqual(t, count, 2,
		"expected at least 2 health checks, got %d", count)
}

// -----------------------------------------------------------------------
// PrometheusExporter Tests
// -----------------------------------------------------------------------

func TestPrometheusExporter_Format(t *testing.T) {
	r := NewRegistry()

	c := r.NewCounter("swaps_total", "Total swaps submitted",
		map[string]string{"chain": "bsc", "side": "buy"})
	c.Add(1234)

	g := r.NewGauge("base_fee_gwei", "Latest base fee",
		map[string]string{"chain": "ethereum"})
	g.Set(23.5)

	h := r.NewHistogram("confirm_duration_ms", "Receipt wait in ms",
		nil, []float64{10, 50, 100, 500})
	h.Observe(5)
	h.Observe(25)
	h.Observe(75)
	h.Observe(250)

	exp := NewPrometheusExporter(r)
	output := exp.Format()

	assert.Contains(t, output, "# HELP swaps_total Total swaps submitted")
	assert.Contains(t, output, "# TYPE swaps_total counter")
	assert.Contains(t, output, `swaps_total{chain="bsc",side="buy"} 1234`)

	assert.Contains(t, output, "# HELP base_fee_gwei Latest base fee")
	assert.Contains(t, output, "# TYPE base_fee_gwei gauge")
	assert.Contains(t, output, `base_fee_gwei{chain="ethereum"} 23.5`)

	assert.Contains(t, output, "# HELP confirm_duration_ms Receipt wait in ms")
	assert.Contains(t, output, "# TYPE confirm_duration_ms histogram")
	assert.Contains(t, output, `confirm_duration_ms_bucket{le="10"} 1`)
	assert.Contains(t, output, `confirm_duration_ms_bucket{le="50"} 2`)
	assert.Contains(t, output, `confirm_duration_ms_bucket{le="100"} 3`)
	assert.Contains(t, output, `confirm_duration_ms_bucket{le="500"} 4`)
	assert.Contains(t, output, `confirm_duration_ms_bucket{le="+Inf"} 4`)
	assert.Contains(t, output, "confirm_duration_ms_sum 355")
	assert.Contains(t, output, "confirm_duration_ms_count 4")
}

func TestPrometheusExporter_FormatEmpty(t *testing.T) {
	r := NewRegistry()
	exp := NewPrometheusExporter(r)
	output := exp.Format()
	assert.Equal(t, "", output)
}

func TestPrometheusExporter_ServeHTTP(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_metric", "A test", nil)
	c.Inc()

	exp := NewPrometheusExporter(r)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	exp.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body := rec.Body.String()
	assert.Contains(t, body, "# HELP test_metric A test")
	assert.Contains(t, body, "# TYPE test_metric counter")
	assert.Contains(t, body, "test_metric 1")
}

func TestPrometheusExporter_FormatLabels(t *testing.T) {
	assert.Equal(t, "", formatLabels(nil))
	assert.Equal(t, "", formatLabels(map[string]string{}))

	s := formatLabels(map[string]string{"chain": "bsc"})
	assert.Equal(t, `{chain="bsc"}`, s)

	// Multiple labels come out sorted.
	s = formatLabels(map[string]string{"z": "last", "a": "first", "m": "mid"})
	assert.Equal(t, `{a="first",m="mid",z="last"}`, s)
}

func TestPrometheusExporter_ConstLabels(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("trades_total", "Trades", map[string]string{"side": "buy"})
	c.Inc()
	g := r.NewGauge("head_block", "Chain head", nil)
	g.Set(100)
	h := r.NewHistogram("lat_ms", "Latency", nil, []float64{10})
	h.Observe(5)

	exp := NewPrometheusExporter(r).WithConstLabels(map[string]string{
		"chain":    "bsc",
		"instance": "hornet-1",
	})
	output := exp.Format()

	assert.Contains(t, output, `trades_total{chain="bsc",instance="hornet-1",side="buy"} 1`)
	assert.Contains(t, output, `head_block{chain="bsc",instance="hornet-1"} 100`)
	assert.Contains(t, output, `lat_ms_bucket{chain="bsc",instance="hornet-1",le="10"} 1`)
	assert.Contains(t, output, `lat_ms_sum{chain="bsc",instance="hornet-1"} 5`)
}

func TestPrometheusExporter_HornetMetrics(t *testing.T) {
	// The full standard set must export without errors.
	r := HornetMetrics()

	r.GetCounter("hornet_trades_attempted_total").Add(42)
	r.GetGauge("hornet_active_trades").Set(3)
	r.GetHistogram("hornet_submission_latency_ms").Observe(12.5)

	exp := NewPrometheusExporter(r)
	output := exp.Format()

	assert.Contains(t, output, "hornet_trades_attempted_total")
	assert.Contains(t, output, "hornet_active_trades")
	assert.Contains(t, output, "hornet_submission_latency_ms")

	// One HELP line per registered metric.
	helpCount := strings.Count(output, "# HELP ")
	assert.Equal(t, 15, helpCount, "expected 15 HELP lines for the standard set")
}

// -----------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------

// drainAlert reads one alert with a timeout.
func drainAlert(t *testing.T, ch <-chan Alert) Alert {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alert")
		return Alert{}
	}
}
