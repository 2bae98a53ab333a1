package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	sendRetries       *prometheus.CounterVec
	signatureFailures *prometheus.CounterVec
	webhookRequests   *prometheus.CounterVec
	duplicatesDropped *prometheus.CounterVec

	transitionsTotal *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	sessionsExpired  prometheus.Counter

	routeDuration *prometheus.HistogramVec
	routeErrors   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			messagesReceived: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "messages_received_total",
					Help: "Inbound messages parsed by channel and message type.",
				},
				[]string{"channel", "type"},
			),
			messagesSent: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "messages_sent_total",
					Help: "Outbound sends by channel and status.",
				},
				[]string{"channel", "status"},
			),
			sendRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "send_retries_total",
					Help: "Outbound send retries caused by transient failures.",
				},
				[]string{"channel"},
			),
			signatureFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webhook_signature_failures_total",
					Help: "Inbound webhooks rejected by signature validation.",
				},
				[]string{"channel"},
			),
			webhookRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webhook_requests_total",
					Help: "Webhook HTTP requests by channel and response code.",
				},
				[]string{"channel", "code"},
			),
			duplicatesDropped: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webhook_duplicates_dropped_total",
					Help: "Redelivered webhook messages dropped by the dedupe cache.",
				},
				[]string{"channel"},
			),
			transitionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "transitions_total",
					Help: "Conversation state transitions by source, target and result.",
				},
				[]string{"from", "to", "result"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "sessions_active",
					Help: "Current number of sessions held by the store.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_expired_total",
					Help: "Sessions evicted by the expiry sweeper.",
				},
			),
			routeDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "route_duration_seconds",
					Help:    "Time spent routing one inbound message, handler included.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"channel"},
			),
			routeErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "route_errors_total",
					Help: "Routing failures by channel and stage.",
				},
				[]string{"channel", "stage"},
			),
		}

		prometheus.MustRegister(
			m.messagesReceived,
			m.messagesSent,
			m.sendRetries,
			m.signatureFailures,
			m.webhookRequests,
			m.duplicatesDropped,
			m.transitionsTotal,
			m.activeSessions,
			m.sessionsExpired,
			m.routeDuration,
			m.routeErrors,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default registry in Prometheus text format.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordMessageReceived(channel, messageType string) {
	getMetrics().messagesReceived.WithLabelValues(channel, messageType).Inc()
}

func RecordSend(channel string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().messagesSent.WithLabelValues(channel, status).Inc()
}

func RecordSendRetry(channel string) {
	getMetrics().sendRetries.WithLabelValues(channel).Inc()
}

func RecordSignatureFailure(channel string) {
	getMetrics().signatureFailures.WithLabelValues(channel).Inc()
}

func RecordWebhookRequest(channel string, code int) {
	getMetrics().webhookRequests.WithLabelValues(channel, http.StatusText(code)).Inc()
}

func RecordDuplicateDropped(channel string) {
	getMetrics().duplicatesDropped.WithLabelValues(channel).Inc()
}

// RecordTransition counts a state change attempt. Result is "accepted",
// "rejected" or "forced".
func RecordTransition(from, to, result string) {
	getMetrics().transitionsTotal.WithLabelValues(from, to, result).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionsExpired(count int) {
	getMetrics().sessionsExpired.Add(float64(count))
}

func RecordRoute(channel string, duration time.Duration) {
	getMetrics().routeDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordRouteError(channel, stage string) {
	getMetrics().routeErrors.WithLabelValues(channel, stage).Inc()
}
