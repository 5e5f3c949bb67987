package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Session metrics
	sessionsTotal  *prometheus.CounterVec
	sessionsActive *prometheus.GaugeVec

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Command metrics
	commandsTotal        *prometheus.CounterVec
	commandFailuresTotal *prometheus.CounterVec

	// Message metrics
	messagesDeliveredTotal prometheus.Counter
	messagesFetchedTotal   prometheus.Counter
	messagesSizeBytes      *prometheus.HistogramVec

	serverRSSKilobytes prometheus.Gauge
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailprobe_sessions_total",
			Help: "Total number of protocol sessions opened.",
		}, []string{"protocol"}),
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailprobe_sessions_active",
			Help: "Number of currently open protocol sessions.",
		}, []string{"protocol"}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailprobe_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"mechanism", "result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailprobe_commands_total",
			Help: "Total number of commands sent.",
		}, []string{"protocol", "command"}),
		commandFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailprobe_command_failures_total",
			Help: "Total number of commands that did not receive the expected reply.",
		}, []string{"protocol", "command"}),

		messagesDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailprobe_messages_delivered_total",
			Help: "Total number of messages delivered over LMTP.",
		}),
		messagesFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailprobe_messages_fetched_total",
			Help: "Total number of message bodies fetched over IMAP.",
		}),
		messagesSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailprobe_messages_size_bytes",
			Help:    "Size of delivered and fetched messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}, []string{"direction"}),

		serverRSSKilobytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailprobe_server_rss_kilobytes",
			Help: "Last sampled resident set size of the server under test.",
		}),
	}

	// Register all metrics
	reg.MustRegister(
		c.sessionsTotal,
		c.sessionsActive,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.commandFailuresTotal,
		c.messagesDeliveredTotal,
		c.messagesFetchedTotal,
		c.messagesSizeBytes,
		c.serverRSSKilobytes,
	)

	return c
}

// SessionOpened increments the session counter and active gauge.
func (c *PrometheusCollector) SessionOpened(protocol string) {
	c.sessionsTotal.WithLabelValues(protocol).Inc()
	c.sessionsActive.WithLabelValues(protocol).Inc()
}

// SessionClosed decrements the active sessions gauge.
func (c *PrometheusCollector) SessionClosed(protocol string) {
	c.sessionsActive.WithLabelValues(protocol).Dec()
}

// CommandSent increments the command counter.
func (c *PrometheusCollector) CommandSent(protocol, command string) {
	c.commandsTotal.WithLabelValues(protocol, strings.ToUpper(command)).Inc()
}

// CommandFailed increments the command failure counter.
func (c *PrometheusCollector) CommandFailed(protocol, command string) {
	c.commandFailuresTotal.WithLabelValues(protocol, strings.ToUpper(command)).Inc()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(mechanism string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(mechanism, result).Inc()
}

// MessageDelivered increments the delivered counter and observes message size.
func (c *PrometheusCollector) MessageDelivered(sizeBytes int64) {
	c.messagesDeliveredTotal.Inc()
	c.messagesSizeBytes.WithLabelValues("delivered").Observe(float64(sizeBytes))
}

// MessageFetched increments the fetched counter and observes message size.
func (c *PrometheusCollector) MessageFetched(sizeBytes int64) {
	c.messagesFetchedTotal.Inc()
	c.messagesSizeBytes.WithLabelValues("fetched").Observe(float64(sizeBytes))
}

// ResidentMemory sets the server RSS gauge.
func (c *PrometheusCollector) ResidentMemory(kilobytes int64) {
	c.serverRSSKilobytes.Set(float64(kilobytes))
}
