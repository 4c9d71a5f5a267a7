package recorder

import (
	"context"
	"time"
)

// Sample is one temperature reading.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Recorder persists samples. Implementations must not reorder them.
type Recorder interface {
	Append(ctx context.Context, s Sample) error
}

// Func adapts a function to Recorder.
type Func func(ctx context.Context, s Sample) error

func (f Func) Append(ctx context.Context, s Sample) error {
	return f(ctx, s)
}
