package handlers

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the service needs in order to serve traffic.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	System     SystemHealth      `json:"system"`
}

type SystemHealth struct {
	Goroutines  int    `json:"goroutines"`
	MemoryAlloc uint64 `json:"memory_alloc_bytes"`
	MemorySys   uint64 `json:"memory_sys_bytes"`
	NumGC       uint32 `json:"num_gc"`
}

// HealthHandler handles health check operations
type HealthHandler struct {
	components map[string]Pinger
	startTime  time.Time
	version    string
	timeout    time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, components map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		components: components,
		startTime:  time.Now(),
		version:    version,
		timeout:    2 * time.Second,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	components, healthy := h.probe(c.UserContext())

	status := HealthStatus{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     time.Since(h.startTime).String(),
		Timestamp:  time.Now(),
		Components: components,
		System: SystemHealth{
			Goroutines:  runtime.NumGoroutine(),
			MemoryAlloc: m.Alloc,
			MemorySys:   m.Sys,
			NumGC:       m.NumGC,
		},
	}
	if !healthy {
		status.Status = "degraded"
	}

	return c.JSON(status)
}

// Liveness is a simple liveness probe
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 while any dependency is unreachable.
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	components, healthy := h.probe(c.UserContext())

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":     "not_ready",
			"components": components,
			"timestamp":  time.Now(),
		})
	}

	return c.JSON(fiber.Map{
		"status":     "ready",
		"components": components,
		"timestamp":  time.Now(),
	})
}

func (h *HealthHandler) probe(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.components[name].Ping(ctx); err != nil {
			results[name] = "unavailable"
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}
