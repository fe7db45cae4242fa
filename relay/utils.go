package relay

import (
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

type Result[T any] struct {
	Value T
	Err   error
}

func MakeAsync[R any](routine func() R) (func(), chan R) {
	channel := make(chan R, 1)

	return func() {
		defer close(channel)
		channel <- routine()
	}, channel
}

// Ping reports whether addr answers ICMP echo requests.
func Ping(addr string) (bool, error) {
	pinger, err := probing.NewPinger(addr)
	if err != nil {
		return false, fmt.Errorf("error creating new pinger: %w", err)
	}
	pinger.Count = 3
	pinger.Interval = 167 * time.Millisecond
	pinger.Timeout = 500 * time.Millisecond
	pinger.OnRecv = func(pkt *probing.Packet) {
		pinger.Stop()
	}
	err = pinger.Run()
	if err != nil {
		return false, fmt.Errorf("error sending ping: %w", err)
	}
	return pinger.PacketsRecv > 0, nil
}
