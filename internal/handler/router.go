package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the collector's HTTP surface: the versioned query
// API, health probes, and the Prometheus scrape endpoint.
func NewRouter(query *QueryHandler, health *HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", health.LivenessProbe)
	router.GET("/readyz", health.ReadinessProbe)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/videos/:id", query.GetVideo)
		api.GET("/videos/:id/snapshots", query.GetVideoSnapshots)
		api.GET("/tracking/active", query.GetActiveTracking)
		api.GET("/channels", query.ListChannels)
		api.GET("/jobs", query.ListJobs)
		api.GET("/jobs/:id", query.GetJob)
	}

	return router
}
