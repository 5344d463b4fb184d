package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hlsgate/hlsgate/internal/app"
	"github.com/hlsgate/hlsgate/internal/handlers"
	"github.com/hlsgate/hlsgate/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers the proxy routes.
func NewRouter(cfg *app.Config, fetch *handlers.FetchHandler) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if fetch == nil {
		return nil, fmt.Errorf("fetch handler must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	fetchRoutes := r.Group("/fetch")
	{
		fetchRoutes.GET("/", fetch.Manifest)
		fetchRoutes.GET("/segment/resource", fetch.Segment)
		fetchRoutes.GET("/image", fetch.Image)
	}

	return r, nil
}
