package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldnote/scrapesched/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

// NewRouter builds the gin.Engine serving the /jobs/* REST surface (§6),
// grounded on the teacher's internal/api.SetupRouter.
func NewRouter(handler *JobsHandler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	jobs := router.Group("/jobs")
	jobs.POST("/submit", handler.Submit)
	jobs.GET("", handler.List)
	jobs.GET("/:id/status", handler.Status)
	jobs.GET("/:id/results", handler.Results)
	jobs.DELETE("/:id", handler.Cancel)

	return router
}

// loggingMiddleware emits one structured log line per request, grounded on
// the teacher's loggingMiddleware in internal/api/api.go.
func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}

// NewHTTPServer wraps router in an *http.Server bound to addr, grounded on
// the teacher's cmd/httpd server construction (explicit header timeout to
// avoid Slowloris-style connections, no ambient global server).
func NewHTTPServer(addr string, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
