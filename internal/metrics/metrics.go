package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whitelister"

// Registry holds the generator's metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Generation
	Runs          *prometheus.CounterVec
	Patterns      prometheus.Histogram
	Groups        prometheus.Histogram
	OverLimit     prometheus.Counter
	LastSuccess   prometheus.Gauge
	Installs      *prometheus.CounterVec
	Reloads       *prometheus.CounterVec
	GenerateTimes prometheus.Histogram

	// HTTP API
	APIRequests    *prometheus.CounterVec
	APILatency     *prometheus.HistogramVec
	ActiveRequests prometheus.Gauge
}

// New creates a registry with process and Go runtime collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	r := &Registry{reg: reg}

	r.Runs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Generation runs by source and outcome",
	}, []string{"source", "outcome"})

	r.Patterns = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "patterns_per_run",
		Help:      "Number of allowed patterns per run",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	r.Groups = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "groups_per_run",
		Help:      "Number of regex locations emitted per run",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	r.OverLimit = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "patterns_over_limit_total",
		Help:      "Patterns that alone exceed the parameter length limit",
	})

	r.LastSuccess = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	})

	r.Installs = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "installs_total",
		Help:      "Artifact installations by outcome",
	}, []string{"outcome"})

	r.Reloads = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reloads_total",
		Help:      "nginx reloads by reloader and outcome",
	}, []string{"reloader", "outcome"})

	r.GenerateTimes = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generate_duration_seconds",
		Help:      "Time spent parsing, packing and serializing",
		Buckets:   prometheus.DefBuckets,
	})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests",
	}, []string{"method", "route", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.ActiveRequests = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_requests",
		Help:      "Current in-flight HTTP requests",
	})

	return r
}

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// ObserveRun records the result of one generation run. A nil registry is a
// no-op.
func (r *Registry) ObserveRun(source string, patterns, groups, overLimit int, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(source, outcome(err)).Inc()
	if err != nil {
		return
	}
	r.Patterns.Observe(float64(patterns))
	r.Groups.Observe(float64(groups))
	r.OverLimit.Add(float64(overLimit))
	r.GenerateTimes.Observe(took.Seconds())
	r.LastSuccess.SetToCurrentTime()
}

func (r *Registry) ObserveInstall(err error) {
	if r == nil {
		return
	}
	r.Installs.WithLabelValues(outcome(err)).Inc()
}

func (r *Registry) ObserveReload(reloader string, err error) {
	if r == nil {
		return
	}
	r.Reloads.WithLabelValues(reloader, outcome(err)).Inc()
}

// Middleware records request counts and latency per matched route.
func (r *Registry) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		r.ActiveRequests.Inc()
		start := time.Now()

		err := c.Next()

		r.ActiveRequests.Dec()
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		r.APIRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		r.APILatency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
}
