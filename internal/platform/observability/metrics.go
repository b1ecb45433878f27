package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter   metric.Meter
	enabled bool

	// Pool update metrics
	PoolUpdates  metric.Int64Counter
	ScanDuration metric.Float64Histogram

	// Opportunity metrics
	OpportunitiesDetected metric.Int64Counter
	OpportunitySpread     metric.Float64Histogram
	OpportunityProfit     metric.Float64Histogram

	// Risk metrics
	RiskRejections   metric.Int64Counter
	CapitalTotal     metric.Float64Gauge
	CapitalAllocated metric.Float64Gauge

	// Execution metrics
	Executions      metric.Int64Counter
	ExecutionProfit metric.Float64Histogram

	// RPC metrics
	RPCCalls          metric.Int64Counter
	RPCDuration       metric.Float64Histogram
	RPCEndpointHealth metric.Int64Gauge

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	// Create meter provider
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		enabled:  true,
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	m.PoolUpdates, err = m.meter.Int64Counter(
		"arbmon.pool.updates",
		metric.WithDescription("Total pool state updates ingested"),
	)
	if err != nil {
		return err
	}

	m.ScanDuration, err = m.meter.Float64Histogram(
		"arbmon.scan.duration",
		metric.WithDescription("Opportunity scan duration in microseconds"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return err
	}

	m.OpportunitiesDetected, err = m.meter.Int64Counter(
		"arbmon.opportunities.detected",
		metric.WithDescription("Total arbitrage opportunities detected"),
	)
	if err != nil {
		return err
	}

	m.OpportunitySpread, err = m.meter.Float64Histogram(
		"arbmon.opportunities.spread_pct",
		metric.WithDescription("Detected opportunity spread in percent"),
	)
	if err != nil {
		return err
	}

	m.OpportunityProfit, err = m.meter.Float64Histogram(
		"arbmon.opportunities.profit_pct",
		metric.WithDescription("Estimated opportunity profit in percent"),
	)
	if err != nil {
		return err
	}

	m.RiskRejections, err = m.meter.Int64Counter(
		"arbmon.risk.rejections",
		metric.WithDescription("Trades rejected by risk gates"),
	)
	if err != nil {
		return err
	}

	m.CapitalTotal, err = m.meter.Float64Gauge(
		"arbmon.capital.total_usd",
		metric.WithDescription("Total trading capital in USD"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	m.CapitalAllocated, err = m.meter.Float64Gauge(
		"arbmon.capital.allocated_usd",
		metric.WithDescription("Capital currently allocated to trades in USD"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	m.Executions, err = m.meter.Int64Counter(
		"arbmon.executions",
		metric.WithDescription("Execution decisions processed"),
	)
	if err != nil {
		return err
	}

	m.ExecutionProfit, err = m.meter.Float64Histogram(
		"arbmon.executions.net_profit_usd",
		metric.WithDescription("Modeled net profit per execution decision in USD"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	m.RPCCalls, err = m.meter.Int64Counter(
		"arbmon.rpc.calls",
		metric.WithDescription("Total JSON-RPC calls"),
	)
	if err != nil {
		return err
	}

	m.RPCDuration, err = m.meter.Float64Histogram(
		"arbmon.rpc.duration",
		metric.WithDescription("JSON-RPC call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.RPCEndpointHealth, err = m.meter.Int64Gauge(
		"arbmon.rpc.endpoint.health",
		metric.WithDescription("RPC endpoint health status (1=healthy, 0=unhealthy)"),
	)
	if err != nil {
		return err
	}

	m.CacheHits, err = m.meter.Int64Counter(
		"arbmon.cache.hits",
		metric.WithDescription("Total cache hits"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"arbmon.cache.misses",
		metric.WithDescription("Total cache misses"),
	)
	if err != nil {
		return err
	}

	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"arbmon.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"arbmon.errors",
		metric.WithDescription("Total errors encountered"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordPoolUpdate records one ingested pool state update
func (m *Metrics) RecordPoolUpdate(ctx context.Context, poolID uint64) {
	if !m.enabled {
		return
	}
	m.PoolUpdates.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("pool_id", int64(poolID)),
	))
}

// RecordScanDuration records one opportunity scan's wall-clock latency
func (m *Metrics) RecordScanDuration(ctx context.Context, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.ScanDuration.Record(ctx, float64(duration.Microseconds()))
}

// RecordOpportunity records a detected arbitrage opportunity
func (m *Metrics) RecordOpportunity(ctx context.Context, kind string, spreadPct, profitPct float64) {
	if !m.enabled {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.OpportunitiesDetected.Add(ctx, 1, attrs)
	m.OpportunitySpread.Record(ctx, spreadPct, attrs)
	m.OpportunityProfit.Record(ctx, profitPct, attrs)
}

// RecordRiskRejection records a trade rejected by a named risk gate
func (m *Metrics) RecordRiskRejection(ctx context.Context, gate string) {
	if !m.enabled {
		return
	}
	m.RiskRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("gate", gate)))
}

// RecordCapital publishes the capital ledger gauges
func (m *Metrics) RecordCapital(ctx context.Context, totalUSD, allocatedUSD float64) {
	if !m.enabled {
		return
	}
	m.CapitalTotal.Record(ctx, totalUSD)
	m.CapitalAllocated.Record(ctx, allocatedUSD)
}

// RecordExecution records an execution decision
func (m *Metrics) RecordExecution(ctx context.Context, mode string, success bool, netProfitUSD float64) {
	if !m.enabled {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.Executions.Add(ctx, 1, attrs)
	m.ExecutionProfit.Record(ctx, netProfitUSD, attrs)
}

// RecordRPCCall records a JSON-RPC call
func (m *Metrics) RecordRPCCall(ctx context.Context, method, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.RPCCalls.Add(ctx, 1, attrs)
	m.RPCDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordRPCEndpointHealth records RPC endpoint health status
func (m *Metrics) RecordRPCEndpointHealth(ctx context.Context, url string, healthy bool) {
	if !m.enabled {
		return
	}
	val := int64(0)
	if healthy {
		val = 1
	}
	m.RPCEndpointHealth.Record(ctx, val, metric.WithAttributes(
		attribute.String("url", url),
	))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if !m.enabled {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if !m.enabled {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if !m.enabled {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if !m.enabled {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	// The OpenTelemetry Prometheus exporter registers with the default
	// Prometheus registry, so the standard handler serves everything.
	return promhttp.Handler()
}
