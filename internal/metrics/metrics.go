// Package metrics holds routesmith's Prometheus collectors.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/routesmith/internal/gateway"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the HTTP surface, the route
// lifecycle and the external gateways.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RouteOperationsTotal *prometheus.CounterVec

	GatewayCallsTotal   *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
}

// New creates and registers the collectors once per process and returns the
// shared instance.
//
// Metrics:
//   - routesmith_http_requests_total{method,route,code}
//   - routesmith_http_request_duration_seconds{method,route}
//   - routesmith_route_operations_total{op,result}
//   - routesmith_gateway_calls_total{gateway,result}
//   - routesmith_gateway_call_duration_seconds{gateway}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "routesmith_http_requests_total",
					Help: "Total number of HTTP requests served",
				},
				[]string{"method", "route", "code"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "routesmith_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms to ~65s
				},
				[]string{"method", "route"},
			),
			RouteOperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "routesmith_route_operations_total",
					Help: "Route lifecycle operations by outcome",
				},
				[]string{"op", "result"},
			),
			GatewayCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "routesmith_gateway_calls_total",
					Help: "Calls to external schema, search and extraction gateways",
				},
				[]string{"gateway", "result"}, // result: ok, rejected, error
			),
			GatewayCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "routesmith_gateway_call_duration_seconds",
					Help:    "Gateway call latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
				},
				[]string{"gateway"},
			),
		}
	})
	return globalMetrics
}

// RecordRouteOp counts one lifecycle operation. result is a short outcome
// label such as "ok", "not_found" or "conflict".
func (m *Metrics) RecordRouteOp(op, result string) {
	m.RouteOperationsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) recordGateway(name, result string, start time.Time) {
	m.GatewayCallsTotal.WithLabelValues(name, result).Inc()
	m.GatewayCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type instrumentedExtractor struct {
	next gateway.Extractor
	m    *Metrics
}

// InstrumentExtractor wraps e so each call is counted and timed.
func (m *Metrics) InstrumentExtractor(e gateway.Extractor) gateway.Extractor {
	return &instrumentedExtractor{next: e, m: m}
}

func (i *instrumentedExtractor) Extract(ctx context.Context, req gateway.ExtractRequest) (gateway.ExtractResult, error) {
	start := time.Now()
	res, err := i.next.Extract(ctx, req)
	switch {
	case err != nil:
		i.m.recordGateway("extract", "error", start)
	case !res.Success:
		i.m.recordGateway("extract", "rejected", start)
	default:
		i.m.recordGateway("extract", "ok", start)
	}
	return res, err
}

type instrumentedSearcher struct {
	next gateway.Searcher
	m    *Metrics
}

// InstrumentSearcher wraps s so each call is counted and timed.
func (m *Metrics) InstrumentSearcher(s gateway.Searcher) gateway.Searcher {
	return &instrumentedSearcher{next: s, m: m}
}

func (i *instrumentedSearcher) Search(ctx context.Context, query string, limit int) ([]gateway.SearchResult, error) {
	start := time.Now()
	res, err := i.next.Search(ctx, query, limit)
	i.m.recordGateway("search", resultLabel(err), start)
	return res, err
}

type instrumentedGenerator struct {
	next gateway.SchemaGenerator
	m    *Metrics
}

// InstrumentSchemaGenerator wraps g so each call is counted and timed.
func (m *Metrics) InstrumentSchemaGenerator(g gateway.SchemaGenerator) gateway.SchemaGenerator {
	return &instrumentedGenerator{next: g, m: m}
}

func (i *instrumentedGenerator) Generate(ctx context.Context, query string) (json.RawMessage, error) {
	start := time.Now()
	res, err := i.next.Generate(ctx, query)
	i.m.recordGateway("schema", resultLabel(err), start)
	return res, err
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
