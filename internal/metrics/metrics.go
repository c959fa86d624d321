// Package metrics exposes job counters for Prometheus scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	ingestItems    *prometheus.CounterVec
	bumpAttempts   *prometheus.CounterVec
	ticksSkipped   *prometheus.CounterVec
	expiredListing prometheus.Counter
	expiredPurch   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_ingest_items_total",
			Help: "Scraped items by upsert outcome.",
		}, []string{"outcome"}),
		bumpAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_bump_attempts_total",
			Help: "Bump executor attempts by result.",
		}, []string{"result"}),
		ticksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listingd_ticks_skipped_total",
			Help: "Job invocations skipped because a previous run still held the lock.",
		}, []string{"job"}),
		expiredListing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_expired_listings_total",
			Help: "Listings deactivated by the expiry sweep.",
		}),
		expiredPurch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listingd_expired_purchases_total",
			Help: "Purchases marked expired by the expiry sweep.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestItems, m.bumpAttempts, m.ticksSkipped, m.expiredListing, m.expiredPurch,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IngestItem(outcome string) {
	m.ingestItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BumpAttempt(result string) {
	m.bumpAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) TickSkipped(job string) {
	m.ticksSkipped.WithLabelValues(job).Inc()
}

func (m *Metrics) ExpiredListings(n int64) {
	if n > 0 {
		m.expiredListing.Add(float64(n))
	}
}

func (m *Metrics) ExpiredPurchases(n int64) {
	if n > 0 {
		m.expiredPurch.Add(float64(n))
	}
}
