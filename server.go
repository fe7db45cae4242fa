package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tr4cks/musicrelay/bridge"
	"github.com/tr4cks/musicrelay/relay"
	"github.com/tr4cks/musicrelay/sources"
)

const shutdownTimeout = 5 * time.Second

type bridgeController interface {
	Handle(event sources.Event)
	Sync()
	Snapshot(ctx context.Context) (bridge.Snapshot, error)
}

type relayStatus interface {
	Status(ctx context.Context) (relay.Result[relay.State], relay.Result[bool])
}

type timersResponse struct {
	On    bool `json:"on"`
	Off   bool `json:"off"`
	State bool `json:"state"`
}

type stateResponse struct {
	Playing        bool           `json:"playing"`
	Relay          relay.State    `json:"relay"`
	Timers         timersResponse `json:"timers"`
	Reported       relay.State    `json:"reported,omitempty"`
	LastCheck      time.Time      `json:"last_check,omitzero"`
	ToggleInFlight bool           `json:"toggle_in_flight"`
	Reachable      *bool          `json:"reachable,omitempty"`
}

func newStateResponse(snapshot bridge.Snapshot) stateResponse {
	return stateResponse{
		Playing: snapshot.Playing,
		Relay:   snapshot.Relay,
		Timers: timersResponse{
			On:    snapshot.OnTimer,
			Off:   snapshot.OffTimer,
			State: snapshot.StateTimer,
		},
		Reported:       snapshot.Reported,
		LastCheck:      snapshot.LastCheck,
		ToggleInFlight: snapshot.ToggleInFlight,
	}
}

func newRouter(config ServerConfig, controller bridgeController, status relayStatus, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(logger), gin.Recovery())
	router.SetTrustedProxies(nil)

	withAuth := ConditionalMiddleware(func(c *gin.Context) bool { return config.Username != "" },
		gin.BasicAuth(gin.Accounts{config.Username: config.Password}))

	api := router.Group("/api")
	{
		// ?ping=true also pings the relay and adds "reachable".
		withPing := ConditionalMiddleware(func(c *gin.Context) bool { return c.Query("ping") == "true" },
			RelayStatusMiddleware(status, logger))

		api.GET("/state", SnapshotMiddleware(controller, logger), withPing, func(c *gin.Context) {
			response := newStateResponse(c.MustGet("snapshot").(bridge.Snapshot))
			if _, ok := c.Get("reachable"); ok {
				reachable := c.GetBool("reachable")
				response.Reachable = &reachable
			}
			c.JSON(http.StatusOK, response)
		})

		api.GET("/relay", RelayStatusMiddleware(status, logger), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"reported":  c.GetString("reported"),
				"reachable": c.GetBool("reachable"),
			})
		})

		api.POST("/events/:event", withAuth, func(c *gin.Context) {
			event, err := sources.ParseEvent(c.Param("event"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"status": "ko",
					"error":  err.Error(),
				})
				return
			}

			controller.Handle(event)

			c.Status(http.StatusNoContent)
		})

		api.POST("/sync", withAuth, func(c *gin.Context) {
			controller.Sync()

			c.JSON(http.StatusAccepted, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// runServer serves the API until ctx is cancelled.
func runServer(ctx context.Context, addr string, handler http.Handler, logger *zerolog.Logger) error {
	server := &http.Server{Addr: addr, Handler: handler}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP API listening")
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
