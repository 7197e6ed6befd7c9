// Package server exposes the exporter over HTTP: prometheus metrics,
// a health snapshot, and manual collection triggers.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CrazyCha/service-quota-monitor/internal/collector"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/scheduler"
)

// Triggerer runs collection cycles on demand.
type Triggerer interface {
	CollectLimits(ctx context.Context, forceRefresh bool) int
	CollectUsage(ctx context.Context, forceRefresh bool) int
	CollectAll(ctx context.Context, forceRefresh bool) (limits, usage int)
}

type Server struct {
	agg       *collector.Aggregator
	sched     *scheduler.Scheduler
	triggerer Triggerer
	log       *logger.Logger
}

func New(agg *collector.Aggregator, sched *scheduler.Scheduler, triggerer Triggerer, log *logger.Logger) *Server {
	return &Server{
		agg:       agg,
		sched:     sched,
		triggerer: triggerer,
		log:       log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.agg.Registry(), promhttp.HandlerOpts{})))
	r.GET("/health", s.Health)
	r.POST("/trigger/limit", s.TriggerLimit)
	r.POST("/trigger/usage", s.TriggerUsage)
	r.POST("/trigger/all", s.TriggerAll)
	return r
}

func (s *Server) Health(c *gin.Context) {
	summary := s.agg.Summary()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"scheduler": s.sched.Status(),
		"results": gin.H{
			"total":        summary.Total,
			"success":      summary.Success,
			"skipped":      summary.Skipped,
			"failed":       summary.Failed,
			"by_service":   summary.ByService,
			"skip_reasons": summary.SkipReasons,
		},
	})
}

func (s *Server) TriggerLimit(c *gin.Context) {
	force := c.Query("force") == "true"
	s.log.Info("manual limit collection triggered", "force", force)
	count := s.triggerer.CollectLimits(c.Request.Context(), force)
	c.JSON(http.StatusOK, gin.H{
		"triggered": "limit",
		"force":     force,
		"results":   count,
	})
}

func (s *Server) TriggerUsage(c *gin.Context) {
	force := c.Query("force") == "true"
	s.log.Info("manual usage collection triggered", "force", force)
	applied := s.triggerer.CollectUsage(c.Request.Context(), force)
	c.JSON(http.StatusOK, gin.H{
		"triggered": "usage",
		"force":     force,
		"applied":   applied,
	})
}

func (s *Server) TriggerAll(c *gin.Context) {
	force := c.Query("force") == "true"
	s.log.Info("manual full collection triggered", "force", force)
	limits, usage := s.triggerer.CollectAll(c.Request.Context(), force)
	c.JSON(http.StatusOK, gin.H{
		"triggered": "all",
		"force":     force,
		"results":   limits,
		"applied":   usage,
	})
}
