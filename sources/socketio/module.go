package socketio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tr4cks/musicrelay/sources"
)

type SocketIOSource struct {
	sources.DefaultSource
	Config SocketIOConfig

	url    string
	logger zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

type SocketIOConfig struct {
	EIO       int           `mapstructure:"eio" default:"4" validate:"oneof=3 4"`
	Path      string        `mapstructure:"path" default:"/socket.io/" validate:"required"`
	Handshake time.Duration `mapstructure:"handshake-timeout" default:"10s"`
}

func New(logger zerolog.Logger) sources.Source {
	return &SocketIOSource{logger: logger}
}

func (s *SocketIOSource) Init(endpoint sources.Endpoint, settings map[string]interface{}) error {
	err := sources.Validate(settings, &s.Config)
	if err != nil {
		return fmt.Errorf("error validating %q source configuration: %w", "socketio", err)
	}
	if endpoint.Host == "" {
		return fmt.Errorf("socketio source requires a host")
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port)),
		Path:     s.Config.Path,
		RawQuery: url.Values{"EIO": {strconv.Itoa(s.Config.EIO)}, "transport": {"websocket"}}.Encode(),
	}
	s.url = u.String()
	s.logger = s.logger.With().Str("url", s.url).Logger()
	return nil
}

func (s *SocketIOSource) Run(ctx context.Context, emit func(sources.Event)) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.Config.Handshake}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("cannot connect to %q: %w", s.url, err)
	}
	s.setConn(conn)
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// ReadMessage does not watch ctx; closing the socket unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var writeMu sync.Mutex
	write := func(msg string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error reading from socket: %w", err)
		}

		pkt, err := parsePacket(raw)
		if err != nil {
			continue
		}

		switch pkt.kind {
		case packetOpen:
			h, err := parseHandshake(pkt.data)
			if err != nil {
				return err
			}
			s.logger.Debug().Str("sid", h.SID).Dur("ping_interval", h.interval()).Msg("Engine.IO session opened")
			if s.Config.EIO >= 4 {
				// v4 servers wait for the client to join the default namespace
				if err := write(string([]byte{packetMessage, socketConnect})); err != nil {
					return fmt.Errorf("error joining namespace: %w", err)
				}
			} else if h.PingInterval > 0 {
				go s.keepAlive(ctx, h.interval(), write)
			}
		case packetPing:
			if err := write(string(packetPong) + string(pkt.data)); err != nil {
				return fmt.Errorf("error answering ping: %w", err)
			}
		case packetClose:
			return errors.New("server closed the session")
		case packetMessage:
			if err := s.handleMessage(pkt.data, emit); err != nil {
				return err
			}
		}
	}
}

func (s *SocketIOSource) handleMessage(data []byte, emit func(sources.Event)) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case socketConnect:
		s.logger.Info().Msg("Connected to event source")
	case socketDisconnect:
		return errors.New("server disconnected the namespace")
	case socketConnectError:
		return fmt.Errorf("namespace connection refused: %s", data[1:])
	case socketEvent:
		name, err := parseEventName(data[1:])
		if err != nil {
			s.logger.Warn().Err(err).Msg("Ignoring malformed event")
			return nil
		}
		event, err := sources.ParseEvent(name)
		if err != nil {
			s.logger.Debug().Str("event", name).Msg("Ignoring event")
			return nil
		}
		emit(event)
	}
	return nil
}

// keepAlive sends the client-initiated pings Engine.IO v3 expects.
func (s *SocketIOSource) keepAlive(ctx context.Context, interval time.Duration, write func(string) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(string(packetPing)); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (s *SocketIOSource) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *SocketIOSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
