package observability

import (
	"context"
	"fmt"
	"time"
)

// Prebuilt health checks for the trading core's subsystems. They take
// closures rather than concrete types so the package stays free of
// domain imports.

// ChainCheck reports on RPC connectivity by fetching the head block.
// A fetch slower than slowAfter degrades the component instead of
// failing it.
func ChainCheck(head func(ctx context.Context) (uint64, error), slowAfter time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		block, err := head(ctx)
		elapsed := time.Since(start)

		if err != nil {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: "head block fetch failed: " + err.Error(),
			}
		}
		h := ComponentHealth{
			Status:  StatusHealthy,
			Details: map[string]any{"head_block": block},
		}
		if slowAfter > 0 && elapsed > slowAfter {
			h.Status = StatusDegraded
			h.Message = fmt.Sprintf("head block fetch took %s", elapsed.Round(time.Millisecond))
		}
		return h
	}
}

// StalenessCheck degrades when the subsystem's last successful activity
// is older than warnAfter, and fails it past failAfter. A zero last
// time is treated as never-succeeded and reported unhealthy.
func StalenessCheck(last func() time.Time, warnAfter, failAfter time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		ts := last()
		if ts.IsZero() {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: "no successful activity recorded",
			}
		}
		age := time.Since(ts)
		h := ComponentHealth{
			Status:  StatusHealthy,
			Details: map[string]any{"last_success_age_ms": age.Milliseconds()},
		}
		switch {
		case failAfter > 0 && age > failAfter:
			h.Status = StatusUnhealthy
			h.Message = fmt.Sprintf("silent for %s", age.Round(time.Second))
		case warnAfter > 0 && age > warnAfter:
			h.Status = StatusDegraded
			h.Message = fmt.Sprintf("silent for %s", age.Round(time.Second))
		}
		return h
	}
}

// DepthCheck watches a queue or buffer depth. Depth at or above crit is
// unhealthy, at or above warn is degraded.
func DepthCheck(depth func() int, warn, crit int) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		d := depth()
		h := ComponentHealth{
			Status:  StatusHealthy,
			Details: map[string]any{"depth": d},
		}
		switch {
		case crit > 0 && d >= crit:
			h.Status = StatusUnhealthy
			h.Message = fmt.Sprintf("depth %d at critical threshold %d", d, crit)
		case warn > 0 && d >= warn:
			h.Status = StatusDegraded
			h.Message = fmt.Sprintf("depth %d above warning threshold %d", d, warn)
		}
		return h
	}
}
