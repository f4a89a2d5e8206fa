package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/medcheck/internal/assessment"
	"github.com/Skufu/medcheck/internal/metrics"
	"github.com/Skufu/medcheck/internal/profile"
	"github.com/Skufu/medcheck/internal/store"
)

const requestIDHeader = "X-Request-ID"

type routerDeps struct {
	db          HealthChecker
	svc         *assessment.Service
	log         *zap.Logger
	metrics     *metrics.Collector
	corsOrigins []string
}

type similarityRequest struct {
	Record     profile.Record   `json:"record" binding:"required"`
	References []profile.Record `json:"references"`
}

func setupRouter(deps routerDeps) *gin.Engine {
	if deps.log == nil {
		deps.log = zap.NewNop()
	}
	if deps.metrics == nil {
		deps.metrics = metrics.NewCollector("medcheck")
	}
	if len(deps.corsOrigins) == 0 {
		deps.corsOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(deps.log),
		observe(deps.metrics),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: deps.corsOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		if deps.db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := deps.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	})

	router.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	api := router.Group("/api")

	api.GET("/patients/:id/similarity", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_patient_id"})
			return
		}

		report, err := deps.svc.Assess(c.Request.Context(), id)
		if err != nil {
			respondError(c, deps.log, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	api.POST("/similarity", func(c *gin.Context) {
		var payload similarityRequest
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		report, err := deps.svc.AssessRecord(c.Request.Context(), payload.Record, payload.References)
		if err != nil {
			respondError(c, deps.log, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	return router
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrPatientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "patient_not_found"})
	case errors.Is(err, profile.ErrMalformedRecord):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed_record", "message": err.Error()})
	case errors.Is(err, assessment.ErrNoRepository):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "repository_disabled"})
	default:
		log.Error("assessment failed", zap.Error(err), zap.String("request_id", c.GetString(requestIDHeader)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDHeader)),
		)
	}
}

func observe(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
