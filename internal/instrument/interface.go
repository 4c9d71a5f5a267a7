package instrument

import (
	"context"
	"io"
)

// Transport is a byte stream to an instrument. Close must unblock a pending
// Read.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens the transport for a parsed endpoint.
type Dialer func(ctx context.Context, ep Endpoint, o *Options) (Transport, error)

// TemperatureReader is what the polling loop needs from a session.
type TemperatureReader interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// Querier sends a command and returns the trimmed single line response.
type Querier interface {
	Query(ctx context.Context, cmd string) (string, error)
}
