package core

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the relay
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec // labels: command, outcome
	CommandDuration *prometheus.HistogramVec
	UnknownRooms    prometheus.Counter
	Reconnects      *prometheus.CounterVec // labels: platform
	AlertsRelayed   *prometheus.CounterVec // labels: platform
	SendFailures    *prometheus.CounterVec // labels: platform
}

// NewMetrics creates the relay metrics on their own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zabbixbot_commands_total",
			Help: "Chat commands handled, by command and outcome",
		}, []string{"command", "outcome"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zabbixbot_command_duration_seconds",
			Help:    "Time spent answering a chat command",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		UnknownRooms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zabbixbot_unknown_room_messages_total",
			Help: "Commands ignored because the room has no realm binding",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zabbixbot_reconnects_total",
			Help: "Chat transport reconnections",
		}, []string{"platform"}),
		AlertsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zabbixbot_alerts_relayed_total",
			Help: "Alerts posted through the hook server",
		}, []string{"platform"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zabbixbot_send_failures_total",
			Help: "Messages that could not be delivered",
		}, []string{"platform"}),
	}

	m.registry.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.UnknownRooms,
		m.Reconnects,
		m.AlertsRelayed,
		m.SendFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeCommand(command, outcome string, started time.Time) {
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
}
