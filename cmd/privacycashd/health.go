// health.go - Health monitoring for the relayer and RPC dependencies
package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// slowCheck marks a component degraded when its probe answers but slowly.
const slowCheck = 3 * time.Second

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// SystemHealth represents the overall daemon health
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// Checker probes one remote dependency.
type Checker func(ctx context.Context) error

// HealthChecker runs the registered probes on demand.
type HealthChecker struct {
	mu        sync.Mutex
	checkers  map[string]Checker
	startTime time.Time
	version   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make(map[string]Checker),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a probe for a component
func (hc *HealthChecker) RegisterComponent(name string, checker Checker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = checker
}

// CheckHealth runs every probe and aggregates the results. Components are
// reported in name order. Probes run without holding the lock.
func (hc *HealthChecker) CheckHealth(ctx context.Context) *SystemHealth {
	hc.mu.Lock()
	names := make([]string, 0, len(hc.checkers))
	checkers := make(map[string]Checker, len(hc.checkers))
	for name, check := range hc.checkers {
		names = append(names, name)
		checkers[name] = check
	}
	hc.mu.Unlock()
	sort.Strings(names)

	overall := Healthy
	components := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		start := time.Now()
		err := checkers[name](ctx)
		c := ComponentHealth{Name: name, Latency: time.Since(start), LastCheck: time.Now()}
		switch {
		case err != nil:
			c.Status, c.Message = Unhealthy, err.Error()
		case c.Latency > slowCheck:
			c.Status, c.Message = Degraded, "slow response"
		default:
			c.Status, c.Message = Healthy, "OK"
		}

		if c.Status == Unhealthy {
			overall = Unhealthy
		} else if c.Status == Degraded && overall == Healthy {
			overall = Degraded
		}
		components = append(components, c)
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     time.Now(),
		Components:    components,
		Uptime:        time.Since(hc.startTime),
		Version:       hc.version,
	}
}
