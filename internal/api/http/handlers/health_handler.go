package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ecoguard/internal/persistence"
)

const readyTimeout = 2 * time.Second

// Dependency is a backing service that readiness checks.
type Dependency interface {
	Name() string
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler serves /health/live and /health/ready.
type HealthHandler struct {
	serviceName string
	version     string
	deps        []Dependency
}

// NewHealthHandler reports on the given dependencies. Disabled ones never
// fail readiness.
func NewHealthHandler(serviceName, version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

type dependencyStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Ready pings every enabled dependency with a shared deadline.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
	defer cancel()

	statuses := make(map[string]dependencyStatus, len(h.deps))
	ready := true
	for _, dep := range h.deps {
		st := check(ctx, dep)
		if st.Status == "down" {
			ready = false
		}
		statuses[dep.Name()] = st
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"service":      h.serviceName,
			"dependencies": statuses,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": statuses,
		},
	})
}

func check(ctx context.Context, dep Dependency) dependencyStatus {
	if !dep.Enabled() {
		return dependencyStatus{Status: "disabled"}
	}
	start := time.Now()
	err := dep.Ping(ctx)
	elapsed := time.Since(start).Milliseconds()
	switch {
	case errors.Is(err, persistence.ErrNotConfigured):
		return dependencyStatus{Status: "disabled"}
	case err != nil:
		return dependencyStatus{Status: "down", LatencyMs: elapsed, Error: err.Error()}
	}
	return dependencyStatus{Status: "ok", LatencyMs: elapsed}
}
