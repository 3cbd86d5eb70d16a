package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.Config{Logger: config.LoggerConfig{Level: "nonsense"}})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.InfoLevel))
	require.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	logger, err := NewLogger(config.Config{
		App:    config.AppConfig{Name: "ecoguard", Env: "development"},
		Logger: config.LoggerConfig{Level: "DEBUG", Format: "console"},
	})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tickets", "GET", 200, 10*time.Millisecond)
	m.RecordError("/api/tickets", "POST", "FORBIDDEN")
	m.RecordTransition("mapping", "awaiting_client_photos")
	m.RecordTransition("mapping", "awaiting_client_photos")

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/tickets", "GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/tickets", "POST", "FORBIDDEN")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("mapping", "awaiting_client_photos")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "ecoguard_workflow_stage_transitions_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordTransition("a", "b")
	m.ObserveLockWait(time.Millisecond)
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/api/tickets/:id", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/tickets/abc", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/tickets/:id", "GET", "204")))
}
