package poller

import (
	"context"
	"time"

	"codeberg.org/mutker/templogger/internal/recorder"
)

// Reader produces one temperature value per call.
type Reader interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// Sink receives every recorded sample, e.g. a live display.
type Sink interface {
	Update(elapsed time.Duration, value float64)
}

// Reporter is told about every tick outcome. It is called from the tick
// goroutine and must not call Start.
type Reporter interface {
	Report(ev Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev Event)

func (f ReporterFunc) Report(ev Event) {
	f(ev)
}

type EventKind int

const (
	EventSample EventKind = iota
	EventReadFailed
	EventRecordFailed
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventSample:
		return "sample"
	case EventReadFailed:
		return "read_failed"
	case EventRecordFailed:
		return "record_failed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event describes one tick outcome. Consecutive counts read failures in a
// row, including this one.
type Event struct {
	Kind        EventKind
	Sample      recorder.Sample
	Err         error
	Consecutive int
}

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// ErrorPolicy decides what happens after a failed read.
type ErrorPolicy int

const (
	// ContinueOnError reports the failure and keeps the schedule.
	ContinueOnError ErrorPolicy = iota
	// StopOnError reports the failure and moves the loop to Idle.
	StopOnError
)

func (p ErrorPolicy) String() string {
	if p == StopOnError {
		return "stop"
	}
	return "continue"
}

// Stats are counters since the loop was created.
type Stats struct {
	Ticks               uint64
	Samples             uint64
	ReadFailures        uint64
	RecordFailures      uint64
	ConsecutiveFailures int
	LastSample          recorder.Sample
	LastError           error
}
