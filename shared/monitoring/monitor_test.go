package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMonitorHealth(t *testing.T) {
	m := NewMonitor()

	if !m.IsHealthy() {
		t.Error("A monitor with no runs should be healthy")
	}
	if m.GetStatusSummary() != "No runs yet" {
		t.Errorf("Unexpected summary %q", m.GetStatusSummary())
	}

	m.RecordSuccess("sun at 35.0°/120.0°, command sent", time.Millisecond)
	if !m.IsHealthy() {
		t.Error("Expected healthy after success")
	}

	m.RecordPartialFailure(errors.New("device not ready: status byte 1"), time.Millisecond)
	if !m.IsHealthy() {
		t.Error("Partial failures must not change health")
	}
	if !strings.Contains(m.GetStatusSummary(), "status byte 1") {
		t.Errorf("Expected summary to mention the warning, got %q", m.GetStatusSummary())
	}

	m.RecordCriticalFailure(errors.New("ephemeris failed"), time.Millisecond)
	if m.IsHealthy() {
		t.Error("Expected unhealthy after critical failure")
	}
	if !strings.Contains(m.GetStatusSummary(), "Last run failed") {
		t.Errorf("Unexpected summary %q", m.GetStatusSummary())
	}
}

func TestHealthServerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMonitor()
	r := gin.New()
	NewHealthServer(m).Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "OK") {
		t.Errorf("Expected healthy response, got %d %q", w.Code, w.Body.String())
	}

	m.RecordCriticalFailure(errors.New("boom"), 0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "boom") {
		t.Errorf("Unexpected status response %d %q", w.Code, w.Body.String())
	}
}
