package socketio

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tr4cks/musicrelay/sources"
)

func TestParseEventName(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "plain", payload: `["play"]`, want: "play"},
		{name: "with arguments", payload: `["pushState",{"status":"play"}]`, want: "pushState"},
		{name: "namespace", payload: `/volumio,["pause"]`, want: "pause"},
		{name: "ack id", payload: `12["stop"]`, want: "stop"},
		{name: "namespace and ack id", payload: `/volumio,7["stop"]`, want: "stop"},
		{name: "empty array", payload: `[]`, wantErr: true},
		{name: "not a string", payload: `[1]`, wantErr: true},
		{name: "not json", payload: `play`, wantErr: true},
		{name: "broken namespace", payload: `/volumio["play"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEventName([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePacket(t *testing.T) {
	pkt, err := parsePacket([]byte(`0{"sid":"abc","pingInterval":25000}`))
	require.NoError(t, err)
	assert.Equal(t, packetOpen, pkt.kind)

	h, err := parseHandshake(pkt.data)
	require.NoError(t, err)
	assert.Equal(t, "abc", h.SID)
	assert.Equal(t, 25*time.Second, h.interval())

	_, err = parsePacket(nil)
	assert.ErrorIs(t, err, errEmptyPacket)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newSource(t *testing.T, server *httptest.Server, settings map[string]interface{}) *SocketIOSource {
	t.Helper()
	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	source := New(zerolog.Nop()).(*SocketIOSource)
	require.NoError(t, source.Init(sources.Endpoint{Host: host, Port: p}, settings))
	return source
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	return string(data)
}

func TestRun_EIO4(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/socket.io/", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("EIO"))
		assert.Equal(t, "websocket", r.URL.Query().Get("transport"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		send := func(msg string) {
			assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}

		send(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`)
		assert.Equal(t, "40", readText(t, conn))
		send(`40{"sid":"def"}`)

		send("2")
		assert.Equal(t, "3", readText(t, conn))

		send(`42["pushState",{"status":"play"}]`)
		send(`42["play"]`)
		send(`42/volumio,["pause"]`)
		send(`421["stop"]`)
		send(`42"garbage`)
		send("1")
	}))
	defer server.Close()

	source := newSource(t, server, nil)

	var got []sources.Event
	err := source.Run(context.Background(), func(ev sources.Event) { got = append(got, ev) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed the session")
	assert.Equal(t, []sources.Event{sources.EventPlay, sources.EventPause, sources.EventStop}, got)
}

func TestRun_EIO3KeepAlive(t *testing.T) {
	pinged := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("EIO"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"abc","pingInterval":20,"pingTimeout":1000}`)))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("40")))
		assert.Equal(t, "2", readText(t, conn))
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("3")))
		close(pinged)
		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`42["play"]`)))
		// Hold the connection open until the client goes away.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	source := newSource(t, server, map[string]interface{}{"eio": 3})

	events := make(chan sources.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- source.Run(ctx, func(ev sources.Event) { events <- ev })
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("client never pinged")
	}
	select {
	case ev := <-events:
		assert.Equal(t, sources.EventPlay, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	source := newSource(t, server, nil)
	server.Close()

	err := source.Run(context.Background(), func(sources.Event) {})
	assert.Error(t, err)
}

func TestInit_InvalidSettings(t *testing.T) {
	source := New(zerolog.Nop())
	err := source.Init(sources.Endpoint{Host: "localhost", Port: 3000}, map[string]interface{}{"eio": 2})
	assert.Error(t, err)

	err = New(zerolog.Nop()).Init(sources.Endpoint{Port: 3000}, nil)
	assert.Error(t, err)
}
