package airzone

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	updates       *prometheus.CounterVec
	commands      *prometheus.CounterVec
	mappingErrors *prometheus.CounterVec
	logins        *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	entities      *prometheus.GaugeVec
}

func newMetrics() *metrics {
	return &metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airzone_updates_total",
			Help: "Init and update passes by result.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airzone_commands_total",
			Help: "Write-back commands sent to the remote API.",
		}, []string{"option", "result"}),
		mappingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airzone_mapping_errors_total",
			Help: "Fields that could not be mapped from a payload.",
		}, []string{"field"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airzone_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airzone_last_update_success_timestamp_seconds",
			Help: "Unix time of the last successful pass.",
		}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airzone_entities",
			Help: "Entities in the synchronized tree by kind.",
		}, []string{"kind"}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.updates, m.commands, m.mappingErrors, m.logins, m.lastSuccess, m.entities}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
