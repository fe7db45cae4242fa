package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tr4cks/musicrelay/relay"
	"github.com/tr4cks/musicrelay/sources"
)

// flakySource emits its events and then drops the connection.
type flakySource struct {
	sources.DefaultSource
	events []sources.Event
	runs   atomic.Int32
	closes atomic.Int32
}

func (s *flakySource) Run(ctx context.Context, emit func(sources.Event)) error {
	s.runs.Add(1)
	for _, ev := range s.events {
		emit(ev)
	}
	return errors.New("connection reset")
}

func (s *flakySource) Close() error {
	s.closes.Add(1)
	return nil
}

func TestBridge_ReconnectsSource(t *testing.T) {
	source := &flakySource{events: []sources.Event{sources.EventPlay}}
	c := NewController(newFakeRelay(relay.StateOff), idleConfig, zerolog.Nop())
	b := Start(context.Background(), c, source, 10*time.Millisecond, zerolog.Nop())
	defer b.Stop()

	require.Eventually(t, func() bool { return source.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s := snapshot(t, b.Controller())
	assert.True(t, s.Playing)
	assert.True(t, s.OnTimer)
}

func TestBridge_Emit(t *testing.T) {
	c := NewController(newFakeRelay(relay.StateOff), idleConfig, zerolog.Nop())
	b := Start(context.Background(), c, sources.NewWebhook(), time.Second, zerolog.Nop())
	defer b.Stop()

	b.Emit(sources.EventPlay)
	b.Emit(sources.EventStop)

	s := snapshot(t, c)
	assert.False(t, s.Playing)
	assert.True(t, s.OffTimer)
	assert.True(t, s.StateTimer)
}

func TestBridge_Stop(t *testing.T) {
	r := newFakeRelay(relay.StateOff)
	source := &flakySource{}
	c := NewController(r, Config{OnInterval: 5 * time.Millisecond, OffDelay: 5 * time.Millisecond, StateInterval: 5 * time.Millisecond}, zerolog.Nop())
	b := Start(context.Background(), c, source, time.Hour, zerolog.Nop())

	b.Emit(sources.EventPlay)
	require.Eventually(t, func() bool { return r.queryCount() > 0 }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Stop()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), source.closes.Load())

	time.Sleep(20 * time.Millisecond)
	_, queries := r.counts()
	b.Emit(sources.EventPause)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, queries, r.queryCount())

	var nilBridge *Bridge
	assert.NotPanics(t, nilBridge.Stop)
}
