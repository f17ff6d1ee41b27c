// Package metrics exposes Prometheus collectors for the inspector service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inspectorPagesTotal                    *prometheus.CounterVec
	inspectorBytesTotal                    *prometheus.CounterVec
	inspectorFontFacesTotal                *prometheus.CounterVec
	httpRequestsTotal                      *prometheus.CounterVec
	httpRequestDurationSeconds             *prometheus.HistogramVec
	inspectorProbeTLSHandshakeTimeoutTotal prometheus.Counter
	inspectorHeadlessPromotionsTotal       prometheus.Counter
	inspectorInspectionsTotal              *prometheus.CounterVec
	inspectorActiveWorkers                 prometheus.Gauge
	inspectorRateLimitDelaysSeconds        *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		inspectorPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		inspectorBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		inspectorFontFacesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_font_faces_total",
				Help: "Total number of font faces extracted, labeled by provider.",
			},
			[]string{"provider"},
		)

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

		inspectorProbeTLSHandshakeTimeoutTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "inspector_probe_tls_handshake_timeout_total",
				Help: "Total TLS handshake timeouts encountered while probing robots.txt.",
			},
		)

		inspectorHeadlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "inspector_headless_promotions_total",
				Help: "Total inspections promoted to a headless re-fetch.",
			},
		)

		inspectorInspectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_inspections_total",
				Help: "Total number of inspections processed, labeled by status.",
			},
			[]string{"status"},
		)

		inspectorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspector_active_workers",
				Help: "Number of workers currently processing an inspection.",
			},
		)

		inspectorRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspector_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the page fetch metrics.
func ObserveFetch(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	inspectorPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		inspectorBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFontFaces adds extracted face counts for a provider.
func ObserveFontFaces(provider string, count int) {
	if count > 0 {
		inspectorFontFacesTotal.WithLabelValues(provider).Add(float64(count))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProbeTLSHandshakeTimeout increments the probe-specific handshake timeout counter.
func ObserveProbeTLSHandshakeTimeout() {
	inspectorProbeTLSHandshakeTimeoutTotal.Inc()
}

// ObserveHeadlessPromotion counts a probe promoted to headless rendering.
func ObserveHeadlessPromotion() {
	inspectorHeadlessPromotionsTotal.Inc()
}

// ObserveInspection increments the inspection counter for the given status.
func ObserveInspection(status string) {
	inspectorInspectionsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	inspectorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	inspectorActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	inspectorRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
