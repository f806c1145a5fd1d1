package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *oracleMetrics
)

type engineMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
	debtCovered  prometheus.Counter
	seized       prometheus.Counter
}

// EngineMetrics returns the lazily-initialised registry recording DSC engine
// state transitions.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of successful liquidations.",
			}),
			debtCovered: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "liquidation_debt_covered_wei",
				Help:      "Cumulative DSC debt covered by liquidators, wei scale.",
			}),
			seized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "liquidation_collateral_seized_wei",
				Help:      "Cumulative collateral seized during liquidations, wei scale.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.liquidations,
			engineRegistry.debtCovered,
			engineRegistry.seized,
		)
	})
	return engineRegistry
}

// Observe records one engine operation outcome and its latency.
func (m *engineMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLiquidation records the totals for one successful liquidation.
// Big integers above float precision degrade gracefully; the counters exist
// for trend dashboards, not exact accounting.
func (m *engineMetrics) ObserveLiquidation(debtCovered, seized *big.Int) {
	if m == nil {
		return
	}
	m.liquidations.Inc()
	if debtCovered != nil {
		value, _ := new(big.Float).SetInt(debtCovered).Float64()
		m.debtCovered.Add(value)
	}
	if seized != nil {
		value, _ := new(big.Float).SetInt(seized).Float64()
		m.seized.Add(value)
	}
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// RPCMetrics returns the lazily-initialised registry recording JSON-RPC
// activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.errors, rpcRegistry.latency)
	})
	return rpcRegistry
}

// Observe records the outcome of one JSON-RPC request. code carries the
// JSON-RPC error code as a string, empty on success.
func (m *rpcMetrics) Observe(method, outcome, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if code != "" {
		m.errors.WithLabelValues(method, code).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

type oracleMetrics struct {
	refreshes *prometheus.CounterVec
	quoteAge  *prometheus.GaugeVec
}

// OracleMetrics returns the lazily-initialised registry recording price feed
// aggregation.
func OracleMetrics() *oracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &oracleMetrics{
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "oracle",
				Name:      "refreshes_total",
				Help:      "Price refresh attempts segmented by pair and outcome.",
			}, []string{"pair", "outcome"}),
			quoteAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "oracle",
				Name:      "quote_age_seconds",
				Help:      "Age of the last good median per pair.",
			}, []string{"pair"}),
		}
		prometheus.MustRegister(oracleRegistry.refreshes, oracleRegistry.quoteAge)
	})
	return oracleRegistry
}

// ObserveRefresh records one aggregation attempt for the pair.
func (m *oracleMetrics) ObserveRefresh(pair, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(pair, outcome).Inc()
}

// SetQuoteAge publishes the freshness of the pair's last good median.
func (m *oracleMetrics) SetQuoteAge(pair string, age time.Duration) {
	if m == nil {
		return
	}
	m.quoteAge.WithLabelValues(pair).Set(age.Seconds())
}
