// README: Prometheus instruments for the order lifecycle and HTTP server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every recorder is a no-op on a nil receiver.
type Metrics struct {
	transitions  *prometheus.CounterVec
	claims       *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	notifyFailed prometheus.Counter
	pricing      *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potluck_order_transitions_total",
			Help: "Order status transition attempts by requested status and result.",
		}, []string{"to", "result"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potluck_job_claims_total",
			Help: "Delivery job claim attempts by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potluck_settlements_total",
			Help: "Settlement attempts by result.",
		}, []string{"result"}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "potluck_notifications_failed_total",
			Help: "Notifications dropped because the sink errored.",
		}),
		pricing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "potluck_price_suggestions_total",
			Help: "Price suggestions by source (oracle or fallback).",
		}, []string{"source"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "potluck_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.transitions, m.claims, m.settlements, m.notifyFailed, m.pricing, m.httpDuration)
	}
	return m
}

func (m *Metrics) Transition(to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, result).Inc()
}

func (m *Metrics) Claim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) Settlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notifyFailed.Inc()
}

func (m *Metrics) PriceSuggestion(source string) {
	if m == nil {
		return
	}
	m.pricing.WithLabelValues(source).Inc()
}

// GinMiddleware records request latency keyed by the route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpDuration.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
