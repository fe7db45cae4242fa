package sources

import "context"

// Endpoint is the host/port the event source connects to.
type Endpoint struct {
	Host string
	Port int
}

type Source interface {
	Init(endpoint Endpoint, settings map[string]interface{}) error
	// Run delivers events to emit until ctx is cancelled or the connection
	// is lost. It returns nil only when ctx is done.
	Run(ctx context.Context, emit func(Event)) error
	Close() error
}

// DefaultSource never produces events; Run just waits for cancellation.
type DefaultSource struct{}

func (*DefaultSource) Init(endpoint Endpoint, settings map[string]interface{}) error {
	return nil
}

func (*DefaultSource) Run(ctx context.Context, emit func(Event)) error {
	<-ctx.Done()
	return nil
}

func (*DefaultSource) Close() error {
	return nil
}

// NewWebhook returns the source used when events are pushed through the HTTP API.
func NewWebhook() Source {
	return &DefaultSource{}
}
