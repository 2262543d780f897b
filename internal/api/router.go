package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Skufu/RenalRisk/internal/assessment"
	"github.com/Skufu/RenalRisk/internal/metrics"
	"github.com/Skufu/RenalRisk/internal/store"
)

type Config struct {
	Service *assessment.Service
	// Store is optional; assessment history routes answer 503 without it.
	Store        store.Store
	Logger       *logrus.Logger
	RateLimit    rate.Limit
	RateBurst    int
	MaxBodyBytes int64
}

func NewRouter(cfg Config) *gin.Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1MB max body
	}

	router := gin.New()
	router.Use(
		requestID(),
		requestLogger(cfg.Logger),
		gin.Recovery(),
		metrics.Middleware(),
		limitBodySize(cfg.MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	h := &handler{svc: cfg.Service, store: cfg.Store, logger: cfg.Logger}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", h.ready)
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	v1.Use(rateLimit(cfg.RateLimit, cfg.RateBurst))
	{
		v1.POST("/predict/stage", h.predictStage)
		v1.POST("/score/sr-irc", h.scoreSRIRC)
		v1.POST("/features", h.features)
		v1.GET("/model", h.model)
		v1.GET("/assessments", h.listAssessments)
		v1.GET("/assessments/:id", h.getAssessment)
		v1.GET("/exports/assessments.xlsx", h.exportAssessments)
	}

	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "not_found", "route not found")
	})

	return router
}

func (h *handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "store": "disabled", "classifier": "ok"}

	if h.store != nil {
		body["store"] = "ok"
		if err := h.store.Ping(ctx); err != nil {
			body["store"] = fmt.Sprintf("unhealthy: %v", err)
			status = http.StatusServiceUnavailable
		}
	}
	if err := h.svc.Ping(ctx); err != nil {
		body["classifier"] = fmt.Sprintf("unhealthy: %v", err)
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
