package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeBroker struct {
	healthy bool
}

func (f *fakeBroker) IsHealthy() bool { return f.healthy }

func TestNewHealthHandler(t *testing.T) {
	handler := NewHealthHandler(nil, nil)

	if handler == nil {
		t.Fatal("NewHealthHandler() returned nil")
	}
}

func TestHealthHandler_LivenessProbe(t *testing.T) {
	handler := NewHealthHandler(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz", nil)

	handler.LivenessProbe(c)

	if w.Code != http.StatusOK {
		t.Errorf("LivenessProbe() status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "UP") {
		t.Errorf("LivenessProbe() body = %q, want it to report UP", w.Body.String())
	}
}

func TestHealthHandler_ReadinessProbe(t *testing.T) {
	t.Run("up with nothing to probe", func(t *testing.T) {
		handler := NewHealthHandler(nil, nil)

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/readyz", nil)

		handler.ReadinessProbe(c)

		if w.Code != http.StatusOK {
			t.Errorf("ReadinessProbe() status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("down when the broker connection is lost", func(t *testing.T) {
		handler := NewHealthHandler(nil, &fakeBroker{healthy: false})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/readyz", nil)

		handler.ReadinessProbe(c)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ReadinessProbe() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if !strings.Contains(w.Body.String(), "rabbitmq") {
			t.Errorf("ReadinessProbe() body = %q, want it to name the broker", w.Body.String())
		}
	})

	t.Run("up when the broker is healthy", func(t *testing.T) {
		handler := NewHealthHandler(nil, &fakeBroker{healthy: true})

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/readyz", nil)

		handler.ReadinessProbe(c)

		if w.Code != http.StatusOK {
			t.Errorf("ReadinessProbe() status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}
