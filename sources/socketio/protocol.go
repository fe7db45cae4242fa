package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.IO packet types.
const (
	packetOpen    byte = '0'
	packetClose   byte = '1'
	packetPing    byte = '2'
	packetPong    byte = '3'
	packetMessage byte = '4'
	packetUpgrade byte = '5'
	packetNoop    byte = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

var errEmptyPacket = errors.New("empty packet")

type packet struct {
	kind byte
	data []byte
}

type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

func (h handshake) interval() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

func parsePacket(raw []byte) (packet, error) {
	if len(raw) == 0 {
		return packet{}, errEmptyPacket
	}
	return packet{kind: raw[0], data: raw[1:]}, nil
}

func parseHandshake(data []byte) (handshake, error) {
	var h handshake
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("error decoding handshake: %w", err)
	}
	return h, nil
}

// parseEventName extracts the event name from a Socket.IO event payload,
// i.e. what follows the "2" packet type: an optional "/namespace,", an
// optional ack id and then a JSON array whose first element is the name.
func parseEventName(data []byte) (string, error) {
	if len(data) > 0 && data[0] == '/' {
		i := bytes.IndexByte(data, ',')
		if i < 0 {
			return "", fmt.Errorf("malformed namespace in %q", data)
		}
		data = data[i+1:]
	}
	for len(data) > 0 && data[0] >= '0' && data[0] <= '9' {
		data = data[1:]
	}

	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return "", fmt.Errorf("error decoding event payload: %w", err)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("event payload has no name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", fmt.Errorf("error decoding event name: %w", err)
	}
	return name, nil
}
