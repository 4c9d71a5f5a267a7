package app

import (
	"context"

	"codeberg.org/mutker/templogger/internal/instrument"
	"codeberg.org/mutker/templogger/internal/poller"
)

// Session is an open instrument connection.
type Session interface {
	ReadTemperature(ctx context.Context) (float64, error)
	Endpoint() string
	Identity() string
	// Alive is false once the transport has failed or the session is closed.
	Alive() bool
	Close() error
}

// Opener connects to an instrument and verifies its identity.
type Opener func(ctx context.Context, endpoint, identity string, opts ...instrument.Option) (Session, error)

// OpenInstrument is the default Opener.
func OpenInstrument(ctx context.Context, endpoint, identity string, opts ...instrument.Option) (Session, error) {
	s, err := instrument.Open(ctx, endpoint, identity, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Status is what the status indicator shows.
type Status struct {
	State    poller.State
	Endpoint string
	Message  string
	Err      error
}

// Running reports whether samples are being logged.
func (s Status) Running() bool {
	return s.State == poller.Running
}

// StatusObserver is called after every status change, outside any lock.
type StatusObserver func(Status)
