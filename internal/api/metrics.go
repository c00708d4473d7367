package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/workspace"
)

// Metrics holds the agent's Prometheus collectors. Each instance owns its
// registry so several agents can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	WorkspacesLive    prometheus.Gauge
	WorkspaceEvents   *prometheus.CounterVec
	CommandsRunning   prometheus.Gauge
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	CommandKillsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		),
		WorkspacesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workspaces",
				Help:      "Number of live workspaces",
			},
		),
		WorkspaceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workspace_events_total",
				Help:      "Workspace lifecycle transitions by event",
			},
			[]string{"event"},
		),
		CommandsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "commands_running",
				Help:      "Number of commands currently running",
			},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Finished commands by status",
			},
			[]string{"status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command wall-clock time in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
			},
			[]string{"status"},
		),
		CommandKillsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_kills_total",
				Help:      "Signals delivered to commands by signal name",
			},
			[]string{"signal"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CommandStarted implements command.Observer.
func (m *Metrics) CommandStarted(_ int, _ *command.Process) {
	m.CommandsRunning.Inc()
}

// CommandFinished implements command.Observer.
func (m *Metrics) CommandFinished(_ int, p *command.Process) {
	snap := p.Snapshot()
	m.CommandsRunning.Dec()
	m.CommandsTotal.WithLabelValues(string(snap.Status)).Inc()
	if snap.TimeTaken != nil {
		m.CommandDuration.WithLabelValues(string(snap.Status)).Observe(*snap.TimeTaken / 1000)
	}
}

// CommandKilled implements command.Observer.
func (m *Metrics) CommandKilled(_ int, _ *command.Process, sig string) {
	m.CommandKillsTotal.WithLabelValues(sig).Inc()
}

// WorkspaceChanged implements workspace.Observer.
func (m *Metrics) WorkspaceChanged(event string, _ *workspace.Workspace) {
	m.WorkspaceEvents.WithLabelValues(event).Inc()
	switch event {
	case protocol.EventWorkspaceCreated:
		m.WorkspacesLive.Inc()
	case protocol.EventWorkspaceDeleted, protocol.EventWorkspaceEvicted:
		m.WorkspacesLive.Dec()
	}
}

var (
	_ command.Observer   = (*Metrics)(nil)
	_ workspace.Observer = (*Metrics)(nil)
)
