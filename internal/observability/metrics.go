package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveTimers  prometheus.Gauge
	BillingTicks  *prometheus.CounterVec
	ChargedPoints prometheus.Counter
	CallEndings   *prometheus.CounterVec
	WSMessages    *prometheus.CounterVec
	WSConnections prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveTimers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_billing_timers",
			Help:      "Number of calls with a running billing timer.",
		}),
		BillingTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_ticks_total",
			Help:      "Processed billing ticks by outcome status.",
		}, []string{"status"}),
		ChargedPoints: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charged_points_total",
			Help:      "Cumulative points debited across all calls.",
		}),
		CallEndings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_endings_total",
			Help:      "Finalized calls by end reason.",
		}, []string{"reason"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Gateway websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Currently registered gateway connections.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
