package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service readiness probe passes.",
	})

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_verifications_total",
			Help: "License verification calls by outcome code.",
		},
		[]string{"outcome"},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_redemptions_total",
			Help: "License key redemption attempts by result.",
		},
		[]string{"result"},
	)

	walletTxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Wallet ledger rows appended by transaction type.",
		},
		[]string{"type"},
	)

	killSwitchGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "killswitch_enabled",
		Help: "1 while the global kill switch is enabled.",
	})

	auditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_append_failures_total",
		Help: "Audit log appends that failed and were swallowed.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		verificationsTotal, redemptionsTotal, walletTxTotal,
		killSwitchGauge, auditFailuresTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady reflects readiness probe state.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// ObserveVerification counts one Verify call with its outcome code.
func ObserveVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRedemption counts one Redeem attempt.
func ObserveRedemption(result string) {
	redemptionsTotal.WithLabelValues(result).Inc()
}

// ObserveWalletTransaction counts one appended ledger row.
func ObserveWalletTransaction(txType string) {
	walletTxTotal.WithLabelValues(txType).Inc()
}

// SetKillSwitch reflects the current kill switch state.
func SetKillSwitch(enabled bool) {
	if enabled {
		killSwitchGauge.Set(1)
		return
	}
	killSwitchGauge.Set(0)
}

// AuditAppendFailed counts a swallowed audit append failure.
func AuditAppendFailed() {
	auditFailuresTotal.Inc()
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	replaceID := func(prefix []string, suffix []string) bool {
		if len(parts) != len(prefix)+1+len(suffix) {
			return false
		}
		for i, p := range prefix {
			if parts[i] != p {
				return false
			}
		}
		for i, s := range suffix {
			if parts[len(prefix)+1+i] != s {
				return false
			}
		}
		parts[len(prefix)] = ":id"
		return true
	}
	switch {
	case replaceID([]string{"", "v1", "keys"}, []string{"revoke"}),
		replaceID([]string{"", "v1", "keys"}, nil),
		replaceID([]string{"", "v1", "resellers"}, []string{"deposit"}),
		replaceID([]string{"", "v1", "resellers"}, []string{"purchase"}),
		replaceID([]string{"", "v1", "resellers"}, []string{"adjust"}),
		replaceID([]string{"", "v1", "resellers"}, []string{"wallet"}),
		replaceID([]string{"", "v1", "resellers"}, nil),
		replaceID([]string{"", "v1", "users"}, []string{"logout"}),
		replaceID([]string{"", "v1", "users"}, []string{"suspend"}),
		replaceID([]string{"", "v1", "users"}, []string{"activate"}),
		replaceID([]string{"", "v1", "releases"}, []string{"publish"}):
		return strings.Join(parts, "/")
	}
	return path
}

// Instrument wraps a handler with RPS, latency and in-flight accounting.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
