// Package httpapi exposes the attachment sync service over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/metrics"
)

// NewRouter wires all routes. The webhook route reads the raw body itself,
// so no body-consuming middleware may run before it.
func NewRouter(h *Handler, logger logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "x-webhook-signature"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/attachments/v1")
	{
		v1.POST("/upload", h.Upload)
		v1.POST("/link-attachment", h.LinkAttachment)
		v1.GET("/attachments/:workItemId", h.ListAttachments)
		v1.POST("/force-sync/:workItemId", h.ForceSync)
		v1.POST("/download/:attachmentGuid", h.Download)
		v1.GET("/status/:workItemId", h.Status)
		v1.DELETE("/attachments/:attachmentGuid", h.Delete)
		v1.GET("/deduplication/:hash", h.DedupCheck)
		v1.GET("/upload-session/:sessionUuid", h.SessionProgress)
		v1.POST("/webhooks/workitem", h.Webhook)
	}
	return r
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	log := logger.With("module", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
