package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fibertrace/core"
	"github.com/signalsfoundry/fibertrace/internal/observability"
	"github.com/signalsfoundry/fibertrace/internal/snapshot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T, cfg HTTPConfig) (http.Handler, *observability.APICollector) {
	t.Helper()
	metrics, err := observability.NewAPICollector(prometheus.NewRegistry())
	require.NoError(t, err)
	svc, _ := newTestService(t)
	return NewHTTPHandler(svc, cfg, nil, metrics), metrics
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPTrace(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{})

	rec := get(t, h, "/v1/cables/A/strands/1/trace", requestIDHeader, "req-9")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-9", rec.Header().Get(requestIDHeader))

	var resp TraceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "v2", resp.SnapshotVersion)
	assert.Equal(t, core.StatusConnected, resp.Status)
	assert.NoError(t, resp.Validate())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"strand", "startCableId", "segments", "totalDistanceMeters", "totalEstimatedLossDb", "status", "reason", "endpoint"} {
		assert.Contains(t, raw, key)
	}
}

func TestHTTPTraceVersionQuery(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{})

	rec := get(t, h, "/v1/cables/A/strands/1/trace?version=v1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TraceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, core.StatusUnused, resp.Status)

	rec = get(t, h, "/v1/cables/A/strands/1/trace?version=v9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPTraceBadRequests(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{})

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/cables/A/strands/x/trace").Code)
	rec := get(t, h, "/v1/cables/A/strands/0/trace")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidArgument")
}

func TestHTTPSnapshotAndHealth(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{})

	rec := get(t, h, "/v1/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	var info SnapshotInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "v2", info.Version)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestHTTPHealthBeforeFirstSnapshot(t *testing.T) {
	h := NewHTTPHandler(NewService(snapshot.NewHolder(), nil), HTTPConfig{}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/v1/cables/A/strands/1/trace").Code)
}

func TestHTTPRateLimit(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{RateLimit: 0.001, Burst: 2})

	assert.Equal(t, http.StatusOK, get(t, h, "/v1/snapshot").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/v1/snapshot").Code)
	rec := get(t, h, "/v1/snapshot")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "health checks are not rate limited")
}

func TestHTTPMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, HTTPConfig{})
	get(t, h, "/v1/cables/A/strands/1/trace")
	get(t, h, "/no/such/route")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/v1/cables/:cable/strands/:strand/trace"`), body)
	assert.Contains(t, body, `route="unmatched"`)
}
