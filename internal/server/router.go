// Package server exposes the job queue, the breaker coordinator and lookups over HTTP.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

/*
Deps are the collaborators the routes are built from. A nil field leaves its
routes unregistered: an instance running in remote breaker mode has no
coordinator of its own to serve, and a coordinator-only instance may have no
lookup service.
*/
type Deps struct {
	Queue    *ridinglookup.JobQueueCoordinator
	Breakers ridinglookup.BreakerBackend
	Lookup   *ridinglookup.LookupService
}

// NewRouter builds the HTTP router.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	if deps.Queue != nil {
		qh := &queueHandlers{queue: deps.Queue}
		router.GET("/health", qh.health)
		router.POST("/batches", qh.submitBatch)
		router.GET("/status/:id", qh.status)
		router.POST("/jobs/retry", qh.retryFailed)
		router.POST("/jobs/process", qh.processNext)
		router.GET("/stats", qh.stats)
		router.GET("/deadletters", qh.deadLetters)
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
	}

	if deps.Breakers != nil {
		bh := &breakerHandlers{backend: deps.Breakers}
		router.POST("/breakers/:key/check", bh.check)
		router.POST("/breakers/:key/success", bh.success)
		router.POST("/breakers/:key/failure", bh.failure)
		router.GET("/breakers", bh.states)
		router.GET("/breakers/:key", bh.state)
		router.DELETE("/breakers", bh.reset)
		router.DELETE("/breakers/:key", bh.reset)
		router.PUT("/breakers/config", bh.updateConfig)
	}

	if deps.Lookup != nil {
		lh := &lookupHandlers{lookup: deps.Lookup}
		router.GET("/lookup", lh.get)
	}

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ridinglookup.Logger().Debug(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// fail writes err with the status its sentinel maps to.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ridinglookup.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ridinglookup.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ridinglookup.ErrBreakerOpen):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		ridinglookup.Logger().Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
