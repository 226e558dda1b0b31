package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/psantana5/euclid/pkg/store"
)

// Outcome labels for computations
const (
	OutcomeOK              = "ok"
	OutcomeInvalidArgument = "invalid_argument"
)

// Collector owns the service's Prometheus registry
type Collector struct {
	registry     *prometheus.Registry
	computations *prometheus.CounterVec
	duration     prometheus.Histogram
	batchSize    prometheus.Histogram
	httpRequests *prometheus.CounterVec

	requestBytes  *prometheus.HistogramVec
	responseBytes *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "euclid_computations_total",
			Help: "GCD computations by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "euclid_computation_duration_seconds",
			Help:    "Time spent computing a single GCD",
			Buckets: prometheus.ExponentialBuckets(1e-8, 4, 10),
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "euclid_batch_size",
			Help:    "Number of pairs per batch request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "euclid_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		requestBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "euclid_http_request_size_bytes",
			Help:    "HTTP request body size",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}, []string{"route", "method"}),
		responseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "euclid_http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: prometheus.ExponentialBuckets(16, 4, 8),
		}, []string{"route", "method"}),
	}

	start := time.Now()
	c.registry.MustRegister(
		c.computations,
		c.duration,
		c.batchSize,
		c.httpRequests,
		c.requestBytes,
		c.responseBytes,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "euclid_uptime_seconds",
			Help: "Time since the server started",
		}, func() float64 { return time.Since(start).Seconds() }),
	)

	// Pre-create outcome series so rates start at zero
	c.computations.WithLabelValues(OutcomeOK)
	c.computations.WithLabelValues(OutcomeInvalidArgument)

	return c
}

// RegisterStore exposes stored computation totals as gauges
func (c *Collector) RegisterStore(s store.Store) {
	stat := func(pick func(total, coprime int64) int64) func() float64 {
		return func() float64 {
			stats, err := s.GetStats()
			if err != nil {
				return 0
			}
			return float64(pick(stats.Total, stats.Coprime))
		}
	}

	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "euclid_stored_computations",
			Help: "Computations held in the history store",
		}, stat(func(total, _ int64) int64 { return total })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "euclid_stored_coprime_pairs",
			Help: "Stored computations whose operands are coprime",
		}, stat(func(_, coprime int64) int64 { return coprime })),
	)
}

// ObserveComputation records one GCD evaluation
func (c *Collector) ObserveComputation(outcome string, d time.Duration) {
	c.computations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK && d > 0 {
		c.duration.Observe(d.Seconds())
	}
}

// ObserveBatch records the size of a batch request
func (c *Collector) ObserveBatch(size int) {
	c.batchSize.Observe(float64(size))
}

// ObserveRequest records a finished HTTP request
func (c *Collector) ObserveRequest(route, method string, code int) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// ObserveTransfer records request and response body sizes
func (c *Collector) ObserveTransfer(route, method string, in, out int64) {
	c.requestBytes.WithLabelValues(route, method).Observe(float64(in))
	c.responseBytes.WithLabelValues(route, method).Observe(float64(out))
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ServeHTTP writes all metrics in the Prometheus text format
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	families, err := c.registry.Gather()
	if err != nil {
		http.Error(w, "error gathering metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	encoder := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return
		}
	}
}
