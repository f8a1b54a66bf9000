package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mms_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	tokenChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_token_checks_total",
		Help: "Token validity checks by token kind and result",
	}, []string{"kind", "result"})

	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_tokens_issued_total",
		Help: "Action tokens issued by kind",
	}, []string{"kind"})

	flowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_token_flow_outcomes_total",
		Help: "Terminal outcomes of token-driven flows",
	}, []string{"flow", "outcome"})

	mailSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_mail_sends_total",
		Help: "Outgoing mail attempts by template and result",
	}, []string{"template", "result"})

	provisioningOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mms_provisioning_operations_total",
		Help: "Company role provisioning operations by operation and result",
	}, []string{"operation", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveTokenCheck records the result of a validity check.
func ObserveTokenCheck(kind, result string) {
	tokenChecks.WithLabelValues(kind, result).Inc()
}

// ObserveTokenIssued counts an issued token.
func ObserveTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// ObserveFlowOutcome records the outcome tag a token flow ended with.
func ObserveFlowOutcome(flow, outcome string) {
	flowOutcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveMail records a mail send attempt.
func ObserveMail(template string, err error) {
	mailSends.WithLabelValues(template, result(err)).Inc()
}

// ObserveProvisioning records a provisioning operation.
func ObserveProvisioning(operation string, err error) {
	provisioningOps.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware instruments gin requests. The route template is used as the
// path label to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		ObserveHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Handler exposes the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
