package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SnapshotMiddleware stores the bridge state under "snapshot".
func SnapshotMiddleware(controller bridgeController, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := controller.Snapshot(c.Request.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to retrieve bridge state")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status": "ko",
				"error":  "the bridge is not running",
			})
			return
		}

		c.Set("snapshot", snapshot)

		c.Next()
	}
}

// RelayStatusMiddleware asks the relay directly and stores "reported" and
// "reachable". Failures are logged and leave the zero values.
func RelayStatusMiddleware(status relayStatus, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reportedState, pingState := status.Status(c.Request.Context())

		if reportedState.Err != nil {
			logger.Error().Err(reportedState.Err).Msg("Failed to retrieve relay state")
		}
		if pingState.Err != nil {
			logger.Error().Err(pingState.Err).Msg("Failed to ping relay")
		}

		c.Set("reported", string(reportedState.Value))
		c.Set("reachable", pingState.Value)

		c.Next()
	}
}

func ConditionalMiddleware(predicate func(*gin.Context) bool, middleware gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if predicate(c) {
			middleware(c)
		} else {
			c.Next()
		}
	}
}

// RequestLogger replaces gin's default access log with zerolog.
func RequestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request")
	}
}
