// Package bridge keeps a power relay in line with music playback.
//
// A Controller owns all of the bridge state and mutates it from a single
// goroutine: playback events, timer fires and relay responses are all
// processed by Run, one at a time.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tr4cks/musicrelay/relay"
	"github.com/tr4cks/musicrelay/sources"
)

var (
	ErrStopped        = errors.New("controller stopped")
	ErrAlreadyRunning = errors.New("controller already running")
)

// Relay is the subset of relay.Client the controller drives.
type Relay interface {
	Toggle(ctx context.Context) error
	QueryState(ctx context.Context) (relay.State, error)
}

type Playback int

const (
	Paused Playback = iota
	Playing
)

func (p Playback) String() string {
	if p == Playing {
		return "playing"
	}
	return "paused"
}

// expectedRelay is the relay state implied by the playback state.
func (p Playback) expectedRelay() relay.State {
	if p == Playing {
		return relay.StateOn
	}
	return relay.StateOff
}

type Config struct {
	OnInterval    time.Duration
	OffDelay      time.Duration
	StateInterval time.Duration
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Playback       Playback    `json:"-"`
	Playing        bool        `json:"playing"`
	Relay          relay.State `json:"relay"`
	Reported       relay.State `json:"reported,omitempty"`
	LastCheck      time.Time   `json:"last_check,omitzero"`
	OnTimer        bool        `json:"on_timer"`
	OffTimer       bool        `json:"off_timer"`
	StateTimer     bool        `json:"state_timer"`
	ToggleInFlight bool        `json:"toggle_in_flight"`
}

type stateResult struct {
	state      relay.State
	err        error
	generation uint64
}

type Controller struct {
	relay  Relay
	config Config
	logger zerolog.Logger

	// Owned by the Run goroutine.
	playback   Playback
	relayState relay.State
	reported   relay.State
	lastCheck  time.Time
	toggling   bool
	// generation changes whenever a toggle starts or completes, so state
	// reports that overlap a toggle can be recognised as stale.
	generation uint64
	onTimer    *time.Ticker
	offTimer   *time.Timer
	stateTimer *time.Ticker

	events    chan sources.Event
	toggled   chan error
	checked   chan stateResult
	syncs     chan struct{}
	snapshots chan chan Snapshot

	mu      sync.Mutex
	running bool
	closed  bool
	done    chan struct{}
	stopped chan struct{}
}

// NewController returns a controller that assumes music is paused and the
// relay is off until told otherwise.
func NewController(r Relay, config Config, logger zerolog.Logger) *Controller {
	return &Controller{
		relay:      r,
		config:     config,
		logger:     logger,
		playback:   Paused,
		relayState: relay.StateOff,
		events:     make(chan sources.Event, 16),
		toggled:    make(chan error),
		checked:    make(chan stateResult),
		syncs:      make(chan struct{}, 1),
		snapshots:  make(chan chan Snapshot),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Handle queues a playback event. Events received once the controller has
// stopped, through Stop or a cancelled Run context, are dropped.
func (c *Controller) Handle(event sources.Event) {
	if c.isDone() {
		return
	}
	select {
	case c.events <- event:
	case <-c.done:
	case <-c.stopped:
	}
}

// Sync requests an immediate state check. Requests coalesce while one is pending.
func (c *Controller) Sync() {
	select {
	case c.syncs <- struct{}{}:
	default:
	}
}

func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case c.snapshots <- reply:
	case <-c.done:
		return Snapshot{}, ErrStopped
	case <-c.stopped:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run processes events until Stop is called or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer close(c.stopped)
	defer c.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case event := <-c.events:
			c.handleEvent(event)
		case <-tickerC(c.onTimer):
			c.onTick()
		case <-timerC(c.offTimer):
			c.offTimer = nil
			c.offFire()
		case <-tickerC(c.stateTimer):
			c.checkState()
		case <-c.syncs:
			c.checkState()
		case err := <-c.toggled:
			c.toggleDone(err)
		case res := <-c.checked:
			c.checkDone(res)
		case reply := <-c.snapshots:
			c.drainEvents()
			reply <- c.snapshot()
		}
	}
}

// Stop cancels every timer and waits for Run to return. It is safe to call
// more than once, and before Run.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	running := c.running
	c.mu.Unlock()

	if running {
		<-c.stopped
	}
}

func (c *Controller) isDone() bool {
	select {
	case <-c.done:
		return true
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// within calls fn with a deadline and stops waiting for it once the deadline
// passes, even if fn ignores its context.
func within[T any](timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	results := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		results <- result{value, err}
	}()

	select {
	case res := <-results:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: no answer within %s: %w", relay.ErrNetwork, timeout, ctx.Err())
	}
}

func (c *Controller) handleEvent(event sources.Event) {
	switch event {
	case sources.EventPlay:
		c.logger.Info().Msg("Music is playing")
		c.playback = Playing
		c.stopOffTimer()
		c.startOnTimer()
		c.startStateTimer()
	case sources.EventPause, sources.EventStop:
		if event == sources.EventPause {
			c.logger.Info().Msg("Music is paused")
		} else {
			c.logger.Info().Msg("Music has stopped")
		}
		c.playback = Paused
		c.stopOnTimer()
		c.startOffTimer()
		c.startStateTimer()
	default:
		c.logger.Warn().Stringer("event", event).Msg("Ignoring unknown event")
	}
}

// drainEvents handles queued events so a snapshot reflects every Handle call
// that returned before it was requested.
func (c *Controller) drainEvents() {
	for {
		select {
		case event := <-c.events:
			c.handleEvent(event)
		default:
			return
		}
	}
}

func (c *Controller) onTick() {
	if c.playback == Paused && c.relayState == relay.StateOn {
		c.logger.Info().Msg("Music is not playing, turning off relay")
		c.toggle()
	}
}

func (c *Controller) offFire() {
	if c.relayState == relay.StateOn {
		c.logger.Info().Msg("Music has stopped, turning off relay")
		c.toggle()
	}
}

// toggle fires a toggle request unless one is still outstanding. A request
// is given up on after one on-interval so the guard always releases.
func (c *Controller) toggle() {
	if c.toggling {
		c.logger.Debug().Msg("Toggle already in flight, skipping")
		return
	}
	c.toggling = true
	c.generation++
	go func() {
		if c.isDone() {
			return
		}
		_, err := within(c.config.OnInterval, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.relay.Toggle(ctx)
		})
		select {
		case c.toggled <- err:
		case <-c.done:
		case <-c.stopped:
		}
	}()
}

func (c *Controller) toggleDone(err error) {
	c.toggling = false
	c.generation++
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to toggle relay")
		return
	}
	from := c.relayState
	c.relayState = from.Toggled()
	c.logger.Info().Str("from", string(from)).Str("to", string(c.relayState)).Msg("Toggled relay")
}

// checkState queries the relay on every call. Each query is abandoned after
// one state-interval, and overlapping reports are told apart by generation.
func (c *Controller) checkState() {
	generation := c.generation
	go func() {
		if c.isDone() {
			return
		}
		state, err := within(c.config.StateInterval, c.relay.QueryState)
		select {
		case c.checked <- stateResult{state, err, generation}:
		case <-c.done:
		case <-c.stopped:
		}
	}()
}

// checkDone reconciles the relay with the reported state. The report is
// authoritative, so the tracked state is corrected before toggling.
func (c *Controller) checkDone(res stateResult) {
	c.lastCheck = time.Now()
	if res.err != nil {
		if errors.Is(res.err, relay.ErrUnexpectedState) {
			c.logger.Warn().Err(res.err).Msg("Relay reported an unexpected state, skipping correction")
		} else {
			c.logger.Error().Err(res.err).Msg("Failed to query relay state")
		}
		return
	}

	c.reported = res.state
	if c.toggling || res.generation != c.generation {
		c.logger.Debug().Str("state", string(res.state)).Msg("State report overlapped a toggle, skipping correction")
		return
	}
	c.relayState = res.state
	expected := c.playback.expectedRelay()
	if res.state != expected {
		c.logger.Info().
			Str("state", string(res.state)).
			Str("expected", string(expected)).
			Msgf("Incorrect state: %s, toggling relay", res.state)
		c.toggle()
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Playback:       c.playback,
		Playing:        c.playback == Playing,
		Relay:          c.relayState,
		Reported:       c.reported,
		LastCheck:      c.lastCheck,
		OnTimer:        c.onTimer != nil,
		OffTimer:       c.offTimer != nil,
		StateTimer:     c.stateTimer != nil,
		ToggleInFlight: c.toggling,
	}
}
