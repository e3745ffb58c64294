// Package metrics exposes the monetization engine's Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interactive_movie"

// Collector implements the Metrics interfaces of the ads, payments and unlock
// services, the maintenance jobs and the HTTP middleware.
type Collector struct {
	adRequests       *prometheus.CounterVec
	adVerifications  *prometheus.CounterVec
	payments         *prometheus.CounterVec
	unlocks          *prometheus.CounterVec
	coinsCredited    *prometheus.CounterVec
	reconciliations  prometheus.Counter
	activeAdSessions prometheus.Gauge
	jobRuns          *prometheus.CounterVec
	jobRemoved       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		adRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ad_requests_total",
			Help:      "Ad requests by platform and outcome.",
		}, []string{"platform", "outcome"}),
		adVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ad_verifications_total",
			Help:      "Ad completion verifications by platform and outcome.",
		}, []string{"platform", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Receipt verifications by platform and outcome.",
		}, []string{"platform", "outcome"}),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_unlocks_total",
			Help:      "Nodes unlocked by method.",
		}, []string{"method"}),
		coinsCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coins_credited_total",
			Help:      "Coins credited by source.",
		}, []string{"source"}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_reconciliations_queued_total",
			Help:      "Purchases recorded whose coin credit failed.",
		}),
		activeAdSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ad_sessions_active",
			Help:      "Outstanding ad tracking sessions after the last sweep.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_removed_total",
			Help:      "Rows or sessions removed by maintenance jobs.",
		}, []string{"job"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.adRequests,
		c.adVerifications,
		c.payments,
		c.unlocks,
		c.coinsCredited,
		c.reconciliations,
		c.activeAdSessions,
		c.jobRuns,
		c.jobRemoved,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) AdRequested(platform, outcome string) {
	c.adRequests.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) AdVerified(platform, outcome string) {
	c.adVerifications.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) PaymentVerified(platform, outcome string) {
	c.payments.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) ContentUnlocked(method string) {
	c.unlocks.WithLabelValues(method).Inc()
}

func (c *Collector) CoinsCredited(source string, amount int64) {
	if amount <= 0 {
		return
	}
	c.coinsCredited.WithLabelValues(source).Add(float64(amount))
}

func (c *Collector) ReconciliationQueued() {
	c.reconciliations.Inc()
}

func (c *Collector) SetActiveAdSessions(count int64) {
	c.activeAdSessions.Set(float64(count))
}

func (c *Collector) JobRun(job string, removed int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.jobRuns.WithLabelValues(job, outcome).Inc()
	if removed > 0 {
		c.jobRemoved.WithLabelValues(job).Add(float64(removed))
	}
}

func (c *Collector) HTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
