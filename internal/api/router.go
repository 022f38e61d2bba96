package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine for the annotation pipeline's external
// interface: a CORS-permissive health check plus a /api tree grouped by
// resource, mirroring the teacher's route-group-per-resource layout.
func NewRouter(d *Deps) *gin.Engine {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		origin := "*"
		if len(d.Config.CORSOrigins) > 0 {
			origin = d.Config.CORSOrigins[0]
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "annotator-api"})
	})

	api := r.Group("/api")
	{
		server := api.Group("/server")
		{
			server.GET("/status", d.ServerStatus)
			server.GET("/metrics", d.ServerMetrics)
			server.GET("/models", d.ServerModels)
		}

		upload := api.Group("/upload")
		{
			upload.POST("/csv", d.UploadCSV)
			upload.POST("/fewshots", d.UploadFewshots)
			upload.GET("/fewshots/status", d.FewshotsStatus)
			upload.DELETE("/fewshots", d.DeleteFewshots)
			upload.GET("/report-type-mappings", d.GetReportTypeMappings)
			upload.POST("/report-type-mappings", d.SaveReportTypeMappings)
		}

		prompts := api.Group("/prompts")
		{
			prompts.GET("", d.ListPrompts)
			prompts.GET("/centers", d.ListPromptCenters)
			prompts.GET("/:promptType", d.GetPrompt)
			prompts.PUT("/:promptType", d.PutPrompt)
			prompts.DELETE("/:promptType", d.DeletePrompt)
			prompts.POST("/:promptType/rename", d.RenamePrompt)
			prompts.POST("/centers/:center", d.CreateCenter)
		}

		presets := api.Group("/presets")
		{
			presets.GET("", d.ListPresets)
			presets.POST("", d.CreatePreset)
			presets.GET("/:presetID", d.GetPreset)
			presets.PUT("/:presetID", d.UpdatePreset)
			presets.DELETE("/:presetID", d.DeletePreset)
		}

		jobs := api.Group("/jobs")
		{
			jobs.POST("/quality-check", d.RunQualityCheckOnly)
			jobs.POST("/link-rows", d.RunLinkRowsOnly)
			jobs.POST("/full-pipeline", d.RunFullPipeline)
			jobs.POST("/discoverability", d.RunDiscoverability)
			jobs.POST("/continue-from-session", d.RunContinueFromSession)
			jobs.GET("/recent", d.RecentJobs)
			jobs.GET("/:jobID", d.JobStatus)
			jobs.GET("/:jobID/logs", d.JobLogs)
			jobs.GET("/:jobID/result/:stage", d.JobResult)
			jobs.POST("/:jobID/cancel", d.CancelJob)
			jobs.POST("/:jobID/kill", d.KillJob)
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("", d.CreateSession)
			sessions.GET("", d.ListSessions)
			sessions.GET("/:sessionID", d.GetSession)
			sessions.PATCH("/:sessionID", d.PatchSession)
			sessions.DELETE("/:sessionID", d.DeleteSession)
			sessions.POST("/:sessionID/prompt-types", d.AddPromptTypes)
			sessions.DELETE("/:sessionID/prompt-types", d.RemovePromptTypes)
			sessions.POST("/:sessionID/annotate", d.AnnotateOne)
			sessions.POST("/:sessionID/annotate/batch", d.AnnotateBatch)
			sessions.GET("/:sessionID/export", d.ExportLabelCSV)
			sessions.GET("/:sessionID/export/codes", d.ExportCodedCSV)

			icdo3 := sessions.Group("/:sessionID/icdo3")
			{
				icdo3.POST("/select", d.ICDO3Select)
				icdo3.POST("/combine", d.ICDO3Combine)
			}
		}

		icdo3 := api.Group("/icdo3")
		{
			icdo3.GET("/search", d.ICDO3Search)
			icdo3.GET("/validate", d.ICDO3Validate)
			icdo3.GET("/topographies", d.ICDO3Topographies)
			icdo3.GET("/morphologies", d.ICDO3Morphologies)
		}
	}

	return r
}
