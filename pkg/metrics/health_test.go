package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func registerCritical(healthy bool) {
	for _, name := range criticalComponents {
		RegisterComponent(name, healthy, "")
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentStorage, true, "bolt open")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components[ComponentStorage]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "bolt open", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		want      string
		component string
		wantComp  string
	}{
		{
			name:  "all healthy",
			setup: func() { registerCritical(true); RegisterComponent(ComponentZones, true, "") },
			want:  "healthy",
		},
		{
			name: "hazard source down degrades",
			setup: func() {
				registerCritical(true)
				RegisterComponent(ComponentZones, false, "source unavailable")
			},
			want:      "degraded",
			component: ComponentZones,
			wantComp:  "unhealthy: source unavailable",
		},
		{
			name: "storage down is unhealthy",
			setup: func() {
				registerCritical(true)
				RegisterComponent(ComponentMirror, false, "broker down")
				RegisterComponent(ComponentStorage, false, "db closed")
			},
			want:      "unhealthy",
			component: ComponentStorage,
			wantComp:  "unhealthy: db closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			health := GetHealth()
			assert.Equal(t, tt.want, health.Status)
			if tt.component != "" {
				assert.Equal(t, tt.wantComp, health.Components[tt.component])
			}
		})
	}
}

func TestGetReadiness(t *testing.T) {
	t.Run("all critical ready", func(t *testing.T) {
		resetHealth(t)
		registerCritical(true)

		assert.Equal(t, "ready", GetReadiness().Status)
	})

	t.Run("missing critical component", func(t *testing.T) {
		resetHealth(t)
		RegisterComponent(ComponentAPI, true, "")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.NotEmpty(t, readiness.Message)
		assert.Equal(t, "not registered", readiness.Components[ComponentStorage])
	})

	t.Run("critical component unhealthy", func(t *testing.T) {
		resetHealth(t)
		registerCritical(true)
		UpdateComponent(ComponentEvents, false, "broker stopped")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.Equal(t, "waiting for events", readiness.Message)
	})

	t.Run("non-critical component ignored", func(t *testing.T) {
		resetHealth(t)
		registerCritical(true)
		RegisterComponent(ComponentMirror, false, "broker down")

		assert.Equal(t, "ready", GetReadiness().Status)
	})
}

func TestHealthHandlers(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		healthy    bool
		wantCode   int
		wantStatus string
	}{
		{"health ok", HealthHandler(), true, http.StatusOK, "healthy"},
		{"health failing", HealthHandler(), false, http.StatusServiceUnavailable, "unhealthy"},
		{"ready ok", ReadyHandler(), true, http.StatusOK, "ready"},
		{"ready failing", ReadyHandler(), false, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("test")
			registerCritical(tt.healthy)

			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "test", status.Version)
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealth(t)

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "alive", response["status"])
	assert.NotEmpty(t, response["uptime"])
}
