package metrics

import (
	"context"

	"codeberg.org/mutker/templogger/internal/recorder"
)

// Collector mirrors samples into the metrics database. It satisfies
// recorder.Recorder.
type Collector interface {
	Append(ctx context.Context, s recorder.Sample) error
	Flush() error
	Close() error
}

// Repository defines the interface for sample storage
type Repository interface {
	Record(s recorder.Sample) error
	Flush() error
	Close() error
}
