package server

import (
	"net/http"

	"brick-catalog/common"

	"github.com/gin-gonic/gin"
)

// Options configure NewRouter
type Options struct {
	// DataDir is served under /data when set
	DataDir string
	// Metrics receives per-request metrics; may be nil
	Metrics common.MetricRecorder
}

// NewRouter builds the gin engine with health check, static data and the v1 API
func NewRouter(h *Handler, opts Options) *gin.Engine {
	r := gin.Default()
	r.RedirectTrailingSlash = false
	r.Use(common.MetricsMiddleware(opts.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "phase": h.Loader.State().Phase})
	})

	if opts.DataDir != "" {
		r.Static("/data", opts.DataDir)
	}

	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}
