package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/persistence"
)

func readiness(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/health/ready", h.Ready)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestReadyReportsEachDependency(t *testing.T) {
	mr := miniredis.RunT(t)
	redis := persistence.NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(redis.Close)

	h := NewHealthHandler("ecoguard", "test", &persistence.Postgres{}, redis)
	status, body := readiness(t, h)
	require.Equal(t, http.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	require.Equal(t, "disabled", deps["postgres"].(map[string]any)["status"])
	require.Equal(t, "ok", deps["redis"].(map[string]any)["status"])

	mr.Close()
	status, body = readiness(t, h)
	require.Equal(t, http.StatusServiceUnavailable, status)
	apiErr := body["error"].(map[string]any)
	require.Equal(t, "DEPENDENCY_UNAVAILABLE", apiErr["code"])
	down := apiErr["details"].(map[string]any)["redis"].(map[string]any)
	require.Equal(t, "down", down["status"])
	require.NotEmpty(t, down["error"])
}

func TestReadyWithoutBackingServices(t *testing.T) {
	var redis *persistence.Redis
	status, body := readiness(t, NewHealthHandler("ecoguard", "test", &persistence.Postgres{}, redis))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ready", body["status"])
}
