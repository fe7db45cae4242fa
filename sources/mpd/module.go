package mpd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
	"github.com/tr4cks/musicrelay/sources"
)

type MPDSource struct {
	sources.DefaultSource
	Config MPDConfig

	network string
	addr    string
	logger  zerolog.Logger

	mu      sync.Mutex
	watcher *mpd.Watcher
}

type MPDConfig struct {
	Password string `mapstructure:"password"`
	// Socket is a unix socket path; when set it takes precedence over host/port.
	Socket string `mapstructure:"socket"`
}

func New(logger zerolog.Logger) sources.Source {
	return &MPDSource{logger: logger}
}

func (s *MPDSource) Init(endpoint sources.Endpoint, settings map[string]interface{}) error {
	err := sources.Validate(settings, &s.Config)
	if err != nil {
		return fmt.Errorf("error validating %q source configuration: %w", "mpd", err)
	}
	if s.Config.Socket != "" {
		s.network, s.addr = "unix", s.Config.Socket
	} else {
		if endpoint.Host == "" {
			return fmt.Errorf("mpd source requires a host or a socket")
		}
		s.network, s.addr = "tcp", net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
	}
	s.logger = s.logger.With().Str("addr", s.addr).Logger()
	return nil
}

func (s *MPDSource) dial() (*mpd.Client, error) {
	if s.Config.Password != "" {
		return mpd.DialAuthenticated(s.network, s.addr, s.Config.Password)
	}
	return mpd.Dial(s.network, s.addr)
}

// Run watches the player subsystem. MPD only says that something changed, so
// every notification is followed by a status query on a short-lived
// connection, and only changes of the play state are emitted.
func (s *MPDSource) Run(ctx context.Context, emit func(sources.Event)) error {
	w, err := mpd.NewWatcher(s.network, s.addr, s.Config.Password, "player")
	if err != nil {
		return fmt.Errorf("cannot watch %q: %w", s.addr, err)
	}
	s.setWatcher(w)
	defer s.Close()

	s.logger.Info().Msg("Connected to event source")

	var last *sources.Event
	report := func() error {
		event, err := s.currentEvent()
		if err != nil {
			return err
		}
		if last != nil && *last == event {
			return nil
		}
		last = &event
		emit(event)
		return nil
	}

	if err := report(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Error:
			return fmt.Errorf("watcher error: %w", err)
		case subsystem, ok := <-w.Event:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			s.logger.Debug().Str("subsystem", subsystem).Msg("Idle event")
			if err := report(); err != nil {
				return err
			}
		}
	}
}

func (s *MPDSource) currentEvent() (sources.Event, error) {
	c, err := s.dial()
	if err != nil {
		return 0, fmt.Errorf("cannot connect to %q: %w", s.addr, err)
	}
	defer c.Close()

	status, err := c.Status()
	if err != nil {
		return 0, fmt.Errorf("error fetching status: %w", err)
	}
	return eventFromStatus(status)
}

// eventFromStatus maps MPD's "state" attribute, which is one of play, pause
// or stop.
func eventFromStatus(status mpd.Attrs) (sources.Event, error) {
	state, ok := status["state"]
	if !ok {
		return 0, fmt.Errorf("status has no state attribute")
	}
	return sources.ParseEvent(state)
}

func (s *MPDSource) setWatcher(w *mpd.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher = w
}

func (s *MPDSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
