package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fnforge",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fnforge",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.buildTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fnforge",
			Subsystem: "builder",
			Name:      "builds_total",
			Help:      "Count of build submissions by outcome",
		}, []string{"outcome"})

		r.runTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fnforge",
			Subsystem: "runs",
			Name:      "submissions_total",
			Help:      "Count of run submissions by outcome",
		}, []string{"outcome"})

		collectors := []prometheus.Collector{r.requestTotal, r.requestLatency, r.buildTotal, r.runTotal}
		for _, collector := range collectors {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						if collector == r.requestTotal {
							r.requestTotal = v
						} else if collector == r.buildTotal {
							r.buildTotal = v
						} else if collector == r.runTotal {
							r.runTotal = v
						}
					case *prometheus.HistogramVec:
						r.requestLatency = v
					}
				}
			}
		}
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordBuild(outcome string) {
	if !r.metricsInitialized {
		return
	}
	r.buildTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (r *Router) recordRun(outcome string) {
	if !r.metricsInitialized {
		return
	}
	r.runTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}
