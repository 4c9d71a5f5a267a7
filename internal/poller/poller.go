package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/recorder"
)

const DefaultInterval = 5 * time.Second

type Option func(*Loop)

// WithInterval sets the delay between the end of one tick and the start of
// the next.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithErrorPolicy(p ErrorPolicy) Option {
	return func(l *Loop) { l.policy = p }
}

// WithMaxConsecutiveFailures stops the loop after n failed reads in a row.
// Zero disables the limit.
func WithMaxConsecutiveFailures(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.maxFailures = n
		}
	}
}

func WithSink(s Sink) Option {
	return func(l *Loop) { l.sink = s }
}

func WithReporter(r Reporter) Option {
	return func(l *Loop) { l.reporter = r }
}

func WithLogger(log logger.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// Loop reads the instrument every interval while Running. Only one timer is
// ever pending and ticks never overlap.
type Loop struct {
	reader   Reader
	recorder recorder.Recorder
	sink     Sink
	reporter Reporter
	clock    Clock
	log      logger.Logger

	interval    time.Duration
	policy      ErrorPolicy
	maxFailures int

	// work is held for the duration of a tick.
	work sync.Mutex

	mu         sync.Mutex
	state      State
	gen        uint64
	timer      Timer
	ctx        context.Context
	stopOnDone func() bool
	started    time.Time
	stats      Stats
}

func New(reader Reader, rec recorder.Recorder, opts ...Option) *Loop {
	l := &Loop{
		reader:   reader,
		recorder: rec,
		clock:    RealClock(),
		log:      logger.Nop(),
		interval: DefaultInterval,
		policy:   ContinueOnError,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("poller")

	return l
}

// Start moves an idle loop to Running, runs the first tick before returning
// and schedules the next one. It returns false, doing nothing, if the loop is
// already running. Cancelling ctx stops the loop.
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	if l.state == Running {
		l.mu.Unlock()
		l.log.Debug().Msg("Start ignored, already running")
		return false
	}
	l.state = Running
	l.gen++
	gen := l.gen
	l.ctx = ctx
	l.started = l.clock.Now()
	l.stats.ConsecutiveFailures = 0
	l.stopOnDone = context.AfterFunc(ctx, func() { l.Stop() })
	l.mu.Unlock()

	l.log.Info().Dur("interval", l.interval).Str("on_error", l.policy.String()).Msg("Logging started")
	l.tick(gen)

	return true
}

// Stop cancels the pending tick and moves the loop to Idle. A tick already in
// progress completes and its sample is still recorded. Stopping an idle loop
// does nothing and returns false.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	if l.state == Idle {
		l.mu.Unlock()
		return false
	}
	l.halt()
	l.mu.Unlock()

	l.log.Info().Msg("Logging stopped")
	return true
}

// halt must be called with mu held.
func (l *Loop) halt() {
	l.state = Idle
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.stopOnDone != nil {
		l.stopOnDone()
		l.stopOnDone = nil
	}
}

// Wait blocks until a tick in progress, if any, has finished.
func (l *Loop) Wait() {
	l.work.Lock()
	defer l.work.Unlock()
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Running() bool {
	return l.State() == Running
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) Interval() time.Duration {
	return l.interval
}

func (l *Loop) tick(gen uint64) {
	l.work.Lock()
	defer l.work.Unlock()

	l.mu.Lock()
	if l.gen != gen || l.state != Running {
		l.mu.Unlock()
		return
	}
	ctx, started := l.ctx, l.started
	l.stats.Ticks++
	l.mu.Unlock()

	readErr := l.runOnce(ctx, started)

	var events []Event
	l.mu.Lock()
	if readErr != nil {
		l.stats.ReadFailures++
		l.stats.ConsecutiveFailures++
		l.stats.LastError = readErr
		events = append(events, Event{Kind: EventReadFailed, Err: readErr, Consecutive: l.stats.ConsecutiveFailures})
	} else {
		l.stats.ConsecutiveFailures = 0
	}

	switch {
	case l.gen != gen || l.state != Running:
		// Stopped while the tick was running.
	case readErr != nil && l.policy == StopOnError:
		l.halt()
		events = append(events, Event{Kind: EventStopped, Err: readErr, Consecutive: l.stats.ConsecutiveFailures})
	case readErr != nil && l.maxFailures > 0 && l.stats.ConsecutiveFailures >= l.maxFailures:
		err := errors.New().Wrap(ErrTooManyFailures, readErr).WithData(l.stats.ConsecutiveFailures)
		l.halt()
		events = append(events, Event{Kind: EventStopped, Err: err, Consecutive: l.stats.ConsecutiveFailures})
	default:
		l.timer = l.clock.AfterFunc(l.interval, func() { l.tick(gen) })
	}
	l.mu.Unlock()

	for _, ev := range events {
		l.logEvent(ev)
		l.report(ev)
	}
}

// runOnce reads, records and presents one sample. Only a read failure is
// returned; record failures are reported and the sample still reaches the
// sink.
func (l *Loop) runOnce(ctx context.Context, started time.Time) error {
	var value float64
	err := safeRun(func() error {
		v, err := l.reader.ReadTemperature(ctx)
		value = v
		return err
	})
	if err != nil {
		return err
	}

	now := l.clock.Now()
	s := recorder.Sample{Timestamp: now, Value: value}
	l.log.Debug().Float64("value", value).Msg("Sample read")

	if err := safeRun(func() error { return l.recorder.Append(ctx, s) }); err != nil {
		l.mu.Lock()
		l.stats.RecordFailures++
		l.stats.LastError = err
		l.mu.Unlock()

		ev := Event{Kind: EventRecordFailed, Sample: s, Err: err}
		l.logEvent(ev)
		l.report(ev)
	}

	if l.sink != nil {
		l.sink.Update(now.Sub(started), value)
	}

	l.mu.Lock()
	l.stats.Samples++
	l.stats.LastSample = s
	l.mu.Unlock()

	l.report(Event{Kind: EventSample, Sample: s})

	return nil
}

func (l *Loop) report(ev Event) {
	if l.reporter == nil {
		return
	}
	if err := safeRun(func() error { l.reporter.Report(ev); return nil }); err != nil {
		l.log.Error().Err(err).Msg("Reporter failed")
	}
}

func (l *Loop) logEvent(ev Event) {
	switch ev.Kind {
	case EventReadFailed:
		l.log.Warn().Err(ev.Err).Int("consecutive", ev.Consecutive).Msg("Failed to read temperature")
	case EventRecordFailed:
		l.log.Error().Err(ev.Err).Msg("Failed to record sample")
	case EventStopped:
		l.log.Error().Err(ev.Err).Msg("Logging stopped after read failure")
	}
}

// safeRun turns a panic in fn into an error.
func safeRun(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New().WithData(ErrTickPanic, fmt.Sprintf("%v", rec))
		}
	}()
	return fn()
}
