package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNetwork         = errors.New("relay unreachable")
	ErrUnexpectedState = errors.New("unexpected relay state")
)

// State is the power state reported by the relay's /state endpoint.
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
)

// Toggled returns the state the relay ends up in after a successful toggle.
func (s State) Toggled() State {
	if s == StateOn {
		return StateOff
	}
	return StateOn
}

// ParseState interprets a raw /state body. Surrounding whitespace is ignored,
// the comparison itself is exact and case-sensitive.
func ParseState(body string) (State, error) {
	switch state := State(strings.TrimSpace(body)); state {
	case StateOn, StateOff:
		return state, nil
	default:
		return StateUnknown, fmt.Errorf("%w: %q", ErrUnexpectedState, string(state))
	}
}
