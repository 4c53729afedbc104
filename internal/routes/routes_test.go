package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/metrics"
)

type healthBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Meta    struct {
		Dependencies map[string]string `json:"dependencies"`
	} `json:"meta"`
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		wantDeps   map[string]string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantDeps:   map[string]string{},
		},
		{
			name: "all dependencies reachable",
			checks: map[string]Check{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantDeps:   map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name: "failing dependency degrades health",
			checks: map[string]Check{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantDeps:   map[string]string{"postgres": "ok", "redis": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(metrics.New(), time.Now(), tt.checks)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body healthBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus == http.StatusOK, body.Success)
			assert.Equal(t, tt.wantDeps, body.Meta.Dependencies)
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.IncConsumed()
	m.IncDelivered()

	router := NewRouter(m, time.Now(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Consumed)
	assert.Equal(t, int64(1), snap.Delivered)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
