package routes

import (
	"net/http"
	"time"

	"go-scooterscan/handlers"
	"go-scooterscan/logging"
	"go-scooterscan/metrics"
	"go-scooterscan/processor"

	"cloud.google.com/go/firestore"
	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Deps is everything the routes hand to their handlers. Firestore, Places
// and Metrics may be nil.
type Deps struct {
	Store     *handlers.RunStore
	Scanner   processor.Scanner
	Places    processor.PlaceResolver
	Firestore *firestore.Client
	Metrics   *metrics.Collector
	Logger    log.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = log.NewNopLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Hello, welcome to Go Scooterscan!",
		})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// api routes
	api := r.Group("/api")
	{
		api.POST("/scan", func(c *gin.Context) {
			handlers.StartScan(c, d.Store, d.Scanner, d.Places)
		})
		api.GET("/runs", func(c *gin.Context) {
			handlers.ListRuns(c, d.Store)
		})
		api.GET("/runs/:id", func(c *gin.Context) {
			handlers.GetRun(c, d.Store, d.Firestore)
		})
		api.GET("/runs/:id/geojson", func(c *gin.Context) {
			handlers.GetRunGeoJSON(c, d.Store, d.Firestore)
		})
	}

	return r
}

// requestLogger logs one line per request and makes the logger available to
// handlers through the request context.
func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), logger))
		c.Next()

		status := c.Writer.Status()
		lvl := level.Info
		if status >= http.StatusInternalServerError {
			lvl = level.Error
		}
		lvl(logger).Log(
			"msg", "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"took", time.Since(start),
		)
	}
}
