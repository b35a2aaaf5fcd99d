package observability

import (
	"context"
	"sync"
	"time"
)

// ComponentStatus grades one subsystem of the trading core.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// severity orders statuses for aggregation; higher is worse.
func (s ComponentStatus) severity() int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}

// HealthCheck probes one subsystem. Probes must honour ctx: RPC-backed
// checks can hang on a dead node, and the monitor bounds every probe.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is one probe outcome.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Latency     time.Duration   `json:"latency_ms"`
	// Streak counts consecutive non-healthy probes; it resets on
	// recovery. The orchestrator reads it to tell a blip from a
	// subsystem that needs rebuilding.
	Streak  int            `json:"streak,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemHealth aggregates every subsystem. The overall status is the
// worst individual one: a dead RPC node makes the whole bot unhealthy no
// matter how happy the rest of the pipeline looks.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     time.Duration              `json:"uptime"`
}

// Alert levels.
const (
	LevelInfo     = "info"
	LevelWarn     = "warn"
	LevelCritical = "critical"
)

// Alert is emitted on a status transition, recoveries included.
type Alert struct {
	Level     string          `json:"level"`
	Component string          `json:"component"`
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"ts"`
}

// HealthMonitor sweeps the registered subsystem probes on a fixed
// cadence. Probes run concurrently, each bounded by a per-probe timeout,
// so one stuck RPC endpoint cannot stall the rest of the sweep.
type HealthMonitor struct {
	interval     time.Duration
	probeTimeout time.Duration
	startTime    time.Time

	mu      sync.RWMutex
	checks  map[string]HealthCheck
	results map[string]ComponentHealth

	alertCh chan Alert
	stopCh  chan struct{}
	stopped sync.Once
}

// NewHealthMonitor creates a monitor sweeping at the given interval. Each
// probe is cut off at half the interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		interval:     interval,
		probeTimeout: interval / 2,
		startTime:    time.Now(),
		checks:       make(map[string]HealthCheck),
		results:      make(map[string]ComponentHealth),
		alertCh:      make(chan Alert, 64),
		stopCh:       make(chan struct{}),
	}
}

// Register adds a named subsystem probe. Must be called before Start.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start sweeps until the context is cancelled or Stop is called. The
// first sweep runs immediately.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// Stop ends the periodic sweep.
func (m *HealthMonitor) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// Check sweeps once synchronously and returns the aggregate, for callers
// outside the loop (the /health endpoint).
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.sweep(ctx)
	return m.snapshot()
}

// Alerts returns the transition alert stream. The channel is bounded;
// alerts nobody drains are dropped rather than blocking a sweep.
func (m *HealthMonitor) Alerts() <-chan Alert { return m.alertCh }

// ComponentStatus returns the latest probe outcome for one subsystem.
func (m *HealthMonitor) ComponentStatus(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

// -----------------------------------------------------------------------
// Internal
// -----------------------------------------------------------------------

// sweep probes every subsystem concurrently and publishes transitions.
func (m *HealthMonitor) sweep(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	probes := make([]HealthCheck, 0, len(m.checks))
	for name, fn := range m.checks {
		names = append(names, name)
		probes = append(probes, fn)
	}
	prev := m.results
	m.mu.RUnlock()

	outcomes := make([]ComponentHealth, len(probes))
	var wg sync.WaitGroup
	for i := range probes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = m.probe(ctx, names[i], probes[i])
		}(i)
	}
	wg.Wait()

	next := make(map[string]ComponentHealth, len(outcomes))
	for i, name := range names {
		out := outcomes[i]
		if out.Status != StatusHealthy {
			out.Streak = prev[name].Streak + 1
		}
		next[name] = out
	}

	m.mu.Lock()
	m.results = next
	m.mu.Unlock()

	for name, cur := range next {
		old, known := prev[name]
		if !known || old.Status != cur.Status {
			m.announce(name, old.Status, cur)
		}
	}
}

// probe runs one check under the per-probe timeout.
func (m *HealthMonitor) probe(ctx context.Context, name string, fn HealthCheck) ComponentHealth {
	if m.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.probeTimeout)
		defer cancel()
	}
	start := time.Now()
	out := fn(ctx)
	out.Name = name
	out.LastChecked = time.Now()
	out.Latency = time.Since(start)
	return out
}

// announce publishes one transition alert without blocking the sweep.
func (m *HealthMonitor) announce(name string, from ComponentStatus, cur ComponentHealth) {
	level := LevelInfo
	switch cur.Status {
	case StatusUnhealthy:
		level = LevelCritical
	case StatusDegraded:
		level = LevelWarn
	}

	msg := cur.Message
	switch {
	case msg != "":
	case cur.Status == StatusHealthy && from.severity() > 0:
		msg = "recovered"
	default:
		msg = "status changed to " + string(cur.Status)
	}

	select {
	case m.alertCh <- Alert{
		Level:     level,
		Component: name,
		Status:    cur.Status,
		Message:   msg,
		Timestamp: time.Now(),
	}:
	default:
	}
}

// snapshot aggregates the latest results into a SystemHealth.
func (m *HealthMonitor) snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if h.Status.severity() > worst.severity() {
			worst = h.Status
		}
	}
	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
	}
}
