package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rrx/ssl-expiration/internal/health"
)

var (
	ChecksTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sslexp_checks_total", Help: "certificate checks by outcome"}, []string{"status"})
	RemainingSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "sslexp_cert_remaining_seconds", Help: "seconds until the target's certificate notAfter"}, []string{"target"})
	CheckDuration    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sslexp_check_duration_seconds", Help: "wall time of a single certificate check"})
)

func init() {
	prometheus.MustRegister(ChecksTotal, RemainingSeconds, CheckDuration)
}

func Serve(addr string, log *zap.SugaredLogger) {
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}

func ServeWithHealth(addr string, h *health.Handler, log *zap.SugaredLogger) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", h.HealthHandler)
	http.HandleFunc("/ready", h.ReadinessHandler)
	http.HandleFunc("/live", h.LivenessHandler)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}
