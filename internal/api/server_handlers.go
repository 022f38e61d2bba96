package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServerStatus reports whether the configured LLM backend is reachable, the
// same liveness probe the original server.py exposed under /api/server/status.
func (d *Deps) ServerStatus(c *gin.Context) {
	available, detail := d.LLM.Available(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"available": available,
		"detail":    detail,
		"endpoint":  d.Config.LLM.Endpoint,
		"model":     d.Config.LLM.ModelName,
	})
}

// ServerMetrics proxies the backend's GPU/throughput gauges.
func (d *Deps) ServerMetrics(c *gin.Context) {
	metrics, err := d.LLM.Metrics(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// ServerModels lists the models the backend currently serves.
func (d *Deps) ServerModels(c *gin.Context) {
	models, err := d.LLM.ListModels(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
