package timer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	started  prometheus.Counter
	expired  prometheus.Counter
	canceled prometheus.Counter
	stopped  prometheus.Counter
	active   prometheus.Gauge
	dispatch prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		started: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aggwheel_timer_started_total",
			Help: "Total number of timers started.",
		}),
		expired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aggwheel_timer_expired_total",
			Help: "Total number of timers that reached their expiry and fired their callback.",
		}),
		canceled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aggwheel_timer_canceled_total",
			Help: "Total number of timers stopped before they expired.",
		}),
		stopped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aggwheel_timer_stopped_total",
			Help: "Total number of timers whose callback finished running.",
		}),
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aggwheel_timer_active",
			Help: "Number of timers currently waiting in a wheel.",
		}),
		dispatch: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aggwheel_timer_dispatch_queue_depth",
			Help: "Number of expired timers currently queued for a worker.",
		}),
	}
}
