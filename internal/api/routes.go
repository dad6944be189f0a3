package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the API on router. A nil gatherer leaves /metrics
// unregistered.
func SetupRoutes(router *gin.Engine, handler *Handler, corsOrigins []string, gatherer prometheus.Gatherer) {
	if len(corsOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = corsOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		router.Use(cors.New(corsConfig))
	}

	api := router.Group("/api")
	{
		api.POST("/estimate", handler.Estimate)
		api.POST("/outliers", handler.DetectOutliers)
		api.GET("/nearby", handler.Nearby)
		api.GET("/health", handler.Health)
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
