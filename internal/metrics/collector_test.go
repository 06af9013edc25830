package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	c := NewCollector(&CollectorConfig{Namespace: "flowvault"})
	require.NotNil(t, c.MessagesAppended)
	require.NotNil(t, c.ConsumerGroupLag)
}

func TestCollectorCountersIncrement(t *testing.T) {
	c := NewCollector(&CollectorConfig{Namespace: "flowvault"})

	c.MessagesAppended.WithLabelValues("orders", "events").Add(3)
	c.BytesAppended.WithLabelValues("orders", "events").Add(128)
	c.CacheHits.Inc()

	require.Equal(t, float64(3), testutil.ToFloat64(c.MessagesAppended.WithLabelValues("orders", "events")))
	require.Equal(t, float64(128), testutil.ToFloat64(c.BytesAppended.WithLabelValues("orders", "events")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.CacheHits))
}

func TestCollectorConsumerGroupLagGauge(t *testing.T) {
	c := NewCollector(&CollectorConfig{Namespace: "flowvault"})

	c.ConsumerGroupLag.WithLabelValues("orders", "events", "billing").Set(42)
	require.Equal(t, float64(42), testutil.ToFloat64(c.ConsumerGroupLag.WithLabelValues("orders", "events", "billing")))

	c.ConsumerGroupLag.WithLabelValues("orders", "events", "billing").Set(0)
	require.Equal(t, float64(0), testutil.ToFloat64(c.ConsumerGroupLag.WithLabelValues("orders", "events", "billing")))
}

func TestCollectorHandlerServesPrometheusFormat(t *testing.T) {
	c := NewCollector(&CollectorConfig{Namespace: "flowvault"})
	c.MessagesAppended.WithLabelValues("orders", "events").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "flowvault_messages_appended_total"))
}

func TestTwoCollectorsDoNotCollide(t *testing.T) {
	a := NewCollector(&CollectorConfig{Namespace: "flowvault"})
	b := NewCollector(&CollectorConfig{Namespace: "flowvault"})

	a.MessagesAppended.WithLabelValues("orders", "events").Inc()
	require.Equal(t, float64(0), testutil.ToFloat64(b.MessagesAppended.WithLabelValues("orders", "events")))
}
