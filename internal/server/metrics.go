package server

import (
	"strconv"
	"time"

	"github.com/chaospilot/incident-console/internal"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "incident_console"

// metrics holds the collectors of one server. Console state gauges are
// refreshed on every scrape.
type metrics struct {
	registry *prometheus.Registry
	console  *internal.Console

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	messagesSent *prometheus.CounterVec
	streams      *prometheus.GaugeVec

	workflows        *prometheus.GaugeVec
	insights         *prometheus.GaugeVec
	agents           *prometheus.GaugeVec
	successRate      prometheus.Gauge
	agentEfficiency  prometheus.Gauge
	pendingApprovals prometheus.Gauge
	messages         prometheus.Gauge
}

func newMetrics(reg *prometheus.Registry, console *internal.Console) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		console:  console,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
		}, []string{"route"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Operator messages relayed to the agent backend, by result.",
		}, []string{"result"}),
		streams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_streams",
			Help:      "Connected snapshot streams by transport.",
		}, []string{"transport"}),
		workflows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows",
			Help:      "Autonomous workflows by status.",
		}, []string{"status"}),
		insights: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "insights",
			Help:      "Retained insights by type.",
		}, []string{"type"}),
		agents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Known agents by status.",
		}, []string{"status"}),
		successRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_success_rate_percent",
			Help:      "Resolved share of triggered workflows.",
		}),
		agentEfficiency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_efficiency_percent",
			Help:      "Completed share of known agents.",
		}),
		pendingApprovals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_approvals",
			Help:      "Non-automated workflow actions waiting for approval.",
		}),
		messages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_messages",
			Help:      "Messages in the current conversation.",
		}),
	}
}

// middleware counts and times every request and logs it at debug level
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
		internal.LogDebug("[server] %s %s %d %s", c.Request.Method, c.Request.URL.Path, status, elapsed)
	}
}

func (m *metrics) refresh() {
	snap := m.console.Snapshot()

	m.workflows.Reset()
	for _, w := range snap.Workflows {
		m.workflows.WithLabelValues(string(w.Status)).Inc()
	}
	m.insights.Reset()
	for typ, n := range snap.Metrics.InsightsByType {
		m.insights.WithLabelValues(string(typ)).Set(float64(n))
	}
	m.agents.Reset()
	for _, a := range snap.Agents {
		m.agents.WithLabelValues(string(a.Status)).Inc()
	}
	m.successRate.Set(float64(snap.Metrics.SuccessRate))
	m.agentEfficiency.Set(float64(snap.Metrics.AgentEfficiency))
	m.pendingApprovals.Set(float64(snap.Metrics.PendingApprovals))
	m.messages.Set(float64(len(snap.Messages)))
}

func (m *metrics) handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		m.refresh()
		h.ServeHTTP(c.Writer, c.Request)
	}
}
