package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: нарушения по типу/серьезности/мере
	ViolationsTotal *prometheus.CounterVec

	// Latency: длительность каскада kill switch
	KillSwitchDuration *prometheus.HistogramVec

	// Errors: срабатывания по scope и итоговому статусу
	KillSwitchTotal *prometheus.CounterVec

	// SLA: каскады дольше порога (>5s). Статистика, не отказ.
	SLABreachesTotal prometheus.Counter

	// Watermark: операции кодеков
	WatermarkOps *prometheus.CounterVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора используем локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "secdesk_violations_total",
			Help: "Total number of recorded security violations.",
		}, []string{"type", "severity", "action"}),

		KillSwitchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "secdesk_killswitch_duration_seconds",
			Help:    "Histogram of kill switch cascade execution time.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"scope"}),

		KillSwitchTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "secdesk_killswitch_total",
			Help: "Total number of kill switch executions by outcome.",
		}, []string{"scope", "status"}),

		SLABreachesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "secdesk_killswitch_sla_breaches_total",
			Help: "Cascades that exceeded the execution time SLA.",
		}),

		WatermarkOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "secdesk_watermark_operations_total",
			Help: "Watermark embed/extract operations by codec and result.",
		}, []string{"codec", "op", "result"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "secdesk_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
