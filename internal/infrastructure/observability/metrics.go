package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Router metrics
	MessagesRouted  *prometheus.CounterVec
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	RouterRetries   *prometheus.CounterVec

	// Proxy metrics
	ProxyRequestsTotal  *prometheus.CounterVec
	ProxyRequestLatency *prometheus.HistogramVec

	// Bridge metrics
	BridgeMessages *prometheus.CounterVec

	// Scheduler metrics
	SchedulerRuns        *prometheus.CounterVec
	SchedulerTransitions *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Channel registry metrics
	RegistryHandles   prometheus.Gauge
	RegistryEvictions prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		MessagesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_routed_total",
				Help:      "Total number of routed messages by event type and result",
			},
			[]string{"event_type", "result"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of processed batches by input channel and outcome",
			},
			[]string{"input_channel", "outcome"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Batch processing duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"input_channel"},
		),
		RouterRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "router_retries_total",
				Help:      "Total number of batch processing retries",
			},
			[]string{"input_channel"},
		),
		ProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_requests_total",
				Help:      "Total number of proxied requests by result",
			},
			[]string{"result"},
		),
		ProxyRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "proxy_request_latency_seconds",
				Help:      "Proxy round-trip latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		BridgeMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_messages_total",
				Help:      "Total number of bridged result messages by bridge and outcome",
			},
			[]string{"bridge", "outcome"},
		),
		SchedulerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_runs_total",
				Help:      "Total number of scheduler runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		SchedulerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_transitions_total",
				Help:      "Total number of record status transitions by job and target status",
			},
			[]string{"job", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		RegistryHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_handles",
				Help:      "Number of cached outbound channel handles",
			},
		),
		RegistryEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_evictions_total",
				Help:      "Total number of cancelled handles evicted from the registry",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.MessagesRouted,
		m.BatchesTotal,
		m.BatchDuration,
		m.RouterRetries,
		m.ProxyRequestsTotal,
		m.ProxyRequestLatency,
		m.BridgeMessages,
		m.SchedulerRuns,
		m.SchedulerTransitions,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.RegistryHandles,
		m.RegistryEvictions,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}
