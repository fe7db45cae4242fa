package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tr4cks/musicrelay/sources"
)

// Bridge connects an event source to a controller and keeps the source
// connected until stopped.
type Bridge struct {
	controller     *Controller
	source         sources.Source
	reconnectDelay time.Duration
	logger         zerolog.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func Start(ctx context.Context, controller *Controller, source sources.Source, reconnectDelay time.Duration, logger zerolog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		controller:     controller,
		source:         source,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		cancel:         cancel,
	}

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		if err := controller.Run(ctx); err != nil {
			b.logger.Error().Err(err).Msg("Controller exited")
		}
	}()
	go func() {
		defer b.wg.Done()
		b.supervise(ctx)
	}()

	return b
}

func (b *Bridge) supervise(ctx context.Context) {
	for {
		err := b.source.Run(ctx, b.controller.Handle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.logger.Error().Err(err).Dur("retry_in", b.reconnectDelay).Msg("Event source disconnected")
		} else {
			b.logger.Warn().Dur("retry_in", b.reconnectDelay).Msg("Event source ended")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.reconnectDelay):
		}
	}
}

func (b *Bridge) Controller() *Controller {
	return b.controller
}

// Emit forwards an event as if the source had delivered it.
func (b *Bridge) Emit(event sources.Event) {
	b.controller.Handle(event)
}

// Stop cancels all timers and disconnects from the event source. It is
// idempotent and safe on a nil Bridge.
func (b *Bridge) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() {
		b.logger.Info().Msg("Stopping bridge")
		b.cancel()
		b.controller.Stop()
		if err := b.source.Close(); err != nil {
			b.logger.Error().Err(err).Msg("Unable to close the event source")
		}
		b.wg.Wait()
	})
}
