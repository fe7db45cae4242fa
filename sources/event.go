package sources

import (
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown playback event")

type Event int

const (
	EventPlay Event = iota
	EventPause
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

func ParseEvent(name string) (Event, error) {
	switch name {
	case "play":
		return EventPlay, nil
	case "pause":
		return EventPause, nil
	case "stop":
		return EventStop, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
