package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRequest("POST", "/api/auth/login", 200, 20*time.Millisecond)
	c.ObserveRequest("POST", "/api/auth/login", 200, 10*time.Millisecond)
	c.ObserveRequest("GET", "", 404, time.Millisecond)
	c.RecordRejection(401, "TOKEN_EXPIRED")
	c.RecordRejection(403, "")
	c.RecordAuthEvent("login", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("POST", "/api/auth/login", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("401", "TOKEN_EXPIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("403", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.authEvents.WithLabelValues("login", "success")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthEvent("refresh", "failure")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gatekeeper_auth_events_total{event="refresh",outcome="failure"} 1`)
}
