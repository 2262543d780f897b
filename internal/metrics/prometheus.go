package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	assessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ckd_assessments_total",
			Help: "Total number of completed stage assessments",
		},
		[]string{"stage", "risk_category"},
	)

	srircScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ckd_srirc_score",
			Help:    "Distribution of SR-IRC scores",
			Buckets: []float64{5, 10, 15, 20, 25, 30, 35, 40, 45},
		},
	)

	degradedClearance = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ckd_degraded_clearance_total",
			Help: "Cockcroft-Gault estimates replaced by the population fallback",
		},
	)

	classifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ckd_classifier_duration_seconds",
			Help:    "Stage classifier latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"predictor", "outcome"},
	)
)

// Middleware records request counts and latency. Paths use the route template
// to keep label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordAssessment(stage, riskCategory string) {
	assessmentsTotal.WithLabelValues(stage, riskCategory).Inc()
}

func RecordSRIRC(score int) {
	srircScores.Observe(float64(score))
}

func RecordDegradedClearance() {
	degradedClearance.Inc()
}

func RecordClassifierCall(predictor string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	classifierDuration.WithLabelValues(predictor, outcome).Observe(duration.Seconds())
}
