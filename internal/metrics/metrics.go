package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultLocked   = "locked"
	ResultUpstream = "upstream_error"
)

// Metrics holds the login gateway collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	LoginAttempts *prometheus.CounterVec
	Lockouts      prometheus.Counter
	StoreErrors   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		reg: reg,
		LoginAttempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "qldc_login_attempts_total",
			Help: "Login attempts handled by the gateway, by result.",
		}, []string{"result"}),
		Lockouts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "qldc_login_lockouts_total",
			Help: "Times a client profile entered the login lockout.",
		}),
		StoreErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "qldc_throttle_store_errors_total",
			Help: "Throttle persistence failures that were swallowed.",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

func (m *Metrics) ObserveStoreError(op string, _ error) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
