package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chaptr/api/handlers/books"
	"chaptr/internal/infra"
)

// SetupRouter builds the HTTP surface.
func SetupRouter(mode string, bookHandler *books.Handler) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), Metrics(), CORS())

	r.GET("/healthz", func(c *gin.Context) {
		if err := infra.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	docs := r.Group("/api/documents")
	{
		docs.POST("/upload", bookHandler.Upload)
		docs.GET("", bookHandler.List)
		docs.GET("/:id", bookHandler.Get)
		docs.GET("/:id/chunks", bookHandler.Chunks)
		docs.DELETE("/:id", bookHandler.Delete)
		docs.POST("/:id/process", bookHandler.Process)
		docs.POST("/:id/index", bookHandler.Index)
		docs.POST("/:id/chat", bookHandler.Chat)
	}

	return r
}
