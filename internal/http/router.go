package http

import (
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.ngs.io/hptrack/internal/observability"
	"go.ngs.io/hptrack/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(browser *usecase.StoreBrowser, metrics *observability.Metrics) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable.
	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))
	if metrics != nil {
		router.Use(countRequests(metrics))
	}

	// Create handler.
	handler := NewHandler(browser)

	// API v1 routes.
	v1 := router.Group("/v1")
	stores := v1.Group("/stores")
	stores.GET("", handler.ListStores)
	stores.GET("/:name/metadata", handler.GetMetadata)
	stores.GET("/:name/value", handler.GetValue)

	// Raw store keys for Zarr clients.
	router.GET("/zarr/:name/*key", handler.GetKey)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}

// countRequests counts requests by matched route and status code.
func countRequests(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
