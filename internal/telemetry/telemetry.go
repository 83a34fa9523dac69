// Package telemetry unifies OpenTelemetry tracing (Google Cloud) and Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/config"
)

const instrumentationName = "github.com/JakeFAU/ai-scrapy-dashboard"

// --- CUSTOM METRIC DEFINITIONS ---

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	aiCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapydash_ai_calls_total",
			Help: "Total number of model calls, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	aiCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapydash_ai_call_duration_seconds",
			Help:    "Histogram of model call latencies, labeled by operation.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	aiRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapydash_ai_rate_limit_delays_seconds",
			Help:    "Histogram of quota wait durations before model calls.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	busyRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapydash_busy_rejections_total",
			Help: "Requests rejected because the same operation was already in flight.",
		},
		[]string{"operation"},
	)

	projectsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scrapydash_projects",
			Help: "Number of registered projects, labeled by status.",
		},
		[]string{"status"},
	)

	activityDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrapydash_activity_events_dropped_total",
			Help: "Activity events dropped because the hub buffer was full.",
		},
	)

	probeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapydash_probe_total",
			Help: "Wizard preflight fetches, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *metric.MeterProvider
	initErr   error
)

// --- INITIALIZATION ---

// InitTelemetry sets up Tracing (Google Cloud) and Metrics (Prometheus).
// The trace exporter is only attached when a GCP project id is configured.
func InitTelemetry(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, *metric.MeterProvider, error) {
	initOnce.Do(func() {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.Telemetry.ServiceName),
				semconv.ServiceVersion(cfg.Telemetry.Version),
			),
		)
		if err != nil {
			initErr = fmt.Errorf("failed to create resource: %w", err)
			return
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		}
		if cfg.Telemetry.ProjectID != "" {
			exporter, err := texporter.New(texporter.WithProjectID(cfg.Telemetry.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("failed to create google trace exporter: %w", err)
				return
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)

		// OTel instruments land in the same registry as the promauto collectors above.
		promExporter, err := otelprom.New(otelprom.WithRegisterer(prometheus.DefaultRegisterer))
		if err != nil {
			initErr = fmt.Errorf("failed to create prometheus exporter: %w", err)
			return
		}

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)
		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// --- HTTP HANDLER & MIDDLEWARE ---

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, ww.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// --- HELPER FUNCTIONS ---

// SanitizeSite extracts the hostname from a URL.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAICall records the outcome and latency of one model call.
func ObserveAICall(operation, outcome string, duration time.Duration) {
	aiCallsTotal.WithLabelValues(operation, outcome).Inc()
	aiCallDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a quota wait.
func ObserveRateLimitDelay(operation string, duration time.Duration) {
	aiRateLimitDelaysSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveBusyRejection counts a call refused by the in-flight gate.
func ObserveBusyRejection(operation string) {
	busyRejectionsTotal.WithLabelValues(operation).Inc()
}

// SetProjectCounts replaces the per-status project gauges.
func SetProjectCounts(counts map[string]int) {
	projectsByStatus.Reset()
	for status, n := range counts {
		projectsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveActivityDropped counts an activity event dropped on a full buffer.
func ObserveActivityDropped() {
	activityDroppedTotal.Inc()
}

// ObserveProbe records a wizard preflight fetch.
func ObserveProbe(target, outcome string) {
	probeTotal.WithLabelValues(SanitizeSite(target), outcome).Inc()
}
