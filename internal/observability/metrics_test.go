package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/fibertrace/internal/logging"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/fibertrace.v1.TraceService/Trace"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("TraceService", "Trace", "OK")); got != 1 {
		t.Fatalf("rpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "rpc_request_duration_seconds", map[string]string{
		"service": "TraceService",
		"method":  "Trace",
	}); count != 1 {
		t.Fatalf("rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/fibertrace.v1.TraceService/Trace"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("TraceService", "Trace", "InvalidArgument")); got != 1 {
		t.Fatalf("rpc_requests_total error label = %v, want 1", got)
	}
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	r := gin.New()
	r.Use(collector.GinMiddleware())
	r.GET("/v1/cables/:cable", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, path := range []string{"/v1/cables/A", "/v1/cables/B", "/nowhere"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/v1/cables/:cable", "GET", "418")); got != 2 {
		t.Fatalf("http_requests_total route = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Fatalf("http_requests_total unmatched = %v, want 1", got)
	}
}

func TestTraceCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTraceCollector(reg)
	if err != nil {
		t.Fatalf("NewTraceCollector: %v", err)
	}

	collector.ObserveTrace("CONNECTED", "client_reached", 3, 12.5, time.Millisecond)
	collector.ObserveTrace("BROKEN", "loop", 2, 1.2, time.Millisecond)
	collector.SetSnapshotCounts(10, 7)
	collector.IncIndexCache("hit")

	if got := testutil.ToFloat64(collector.Traces.WithLabelValues("CONNECTED", "client_reached")); got != 1 {
		t.Fatalf("fibertrace_traces_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SnapshotCables); got != 7 {
		t.Fatalf("fibertrace_snapshot_cables = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.IndexCache.WithLabelValues("hit")); got != 1 {
		t.Fatalf("fibertrace_index_cache_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "fibertrace_trace_hops", map[string]string{"status": "BROKEN"}); count != 1 {
		t.Fatalf("fibertrace_trace_hops sample_count = %d, want 1", count)
	}
}

func TestCollectorsTolerateDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewTraceCollector(reg)
	if err != nil {
		t.Fatalf("first NewTraceCollector: %v", err)
	}
	second, err := NewTraceCollector(reg)
	if err != nil {
		t.Fatalf("second NewTraceCollector: %v", err)
	}
	second.IncIndexCache("miss")
	if got := testutil.ToFloat64(first.IndexCache.WithLabelValues("miss")); got != 1 {
		t.Fatalf("collectors do not share series: %v", got)
	}
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	api, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	traces, err := NewTraceCollector(reg)
	if err != nil {
		t.Fatalf("NewTraceCollector: %v", err)
	}
	api.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	traces.SetSnapshotCounts(3, 4)

	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"rpc_requests_total",
		"fibertrace_snapshot_nodes 3",
		"fibertrace_snapshot_cables 4",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct{ in, service, method string }{
		{"/fibertrace.v1.TraceService/Trace", "TraceService", "Trace"},
		{"TraceService/Snapshot", "TraceService", "Snapshot"},
		{"", "unknown", "unknown"},
		{"/nothing", "unknown", "unknown"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.in)
		if s != tt.service || m != tt.method {
			t.Errorf("SplitMethod(%q) = %s/%s, want %s/%s", tt.in, s, m, tt.service, tt.method)
		}
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Writer = &buf

	shutdown, err := InitTracing(context.Background(), cfg, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, logging.Noop())

	if !strings.Contains(buf.String(), "probe") {
		t.Fatalf("stdout exporter did not receive the span: %q", buf.String())
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("InitTracing accepted an unsupported exporter")
	}
	if _, err := InitTracing(context.Background(), TracingConfig{}, nil); err != nil {
		t.Fatalf("InitTracing (disabled): %v", err)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("FIBERTRACE_TRACING_ENABLED", "true")
	t.Setenv("FIBERTRACE_TRACING_EXPORTER", "OTLP")
	t.Setenv("FIBERTRACE_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("FIBERTRACE_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv(DefaultTracingConfig())
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
