package opsapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/metrics"
	"github.com/ridgeline/flowvault/internal/opsapi"
)

type fakeSystem struct{ streams int }

func (f fakeSystem) StreamCount() int { return f.streams }

func TestHealthEndpointsReportOK(t *testing.T) {
	collector := metrics.NewCollector(&metrics.CollectorConfig{Namespace: "flowvault_test"})
	srv := opsapi.New("127.0.0.1:0", fakeSystem{streams: 3}, collector.Handler(), nil)

	cases := []string{"/health", "/health/live", "/health/ready", "/version"}
	for _, path := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	collector := metrics.NewCollector(&metrics.CollectorConfig{Namespace: "flowvault_test2"})
	collector.MessagesAppended.WithLabelValues("orders", "events").Inc()
	srv := opsapi.New("127.0.0.1:0", fakeSystem{}, collector.Handler(), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "flowvault_test2_messages_appended_total")
}
