package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"codeberg.org/mutker/templogger/internal/config"
	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/instrument"
	"codeberg.org/mutker/templogger/internal/logger"
	"codeberg.org/mutker/templogger/internal/metrics"
	"codeberg.org/mutker/templogger/internal/poller"
	"codeberg.org/mutker/templogger/internal/recorder"
	"codeberg.org/mutker/templogger/internal/telemetry"
	"go.uber.org/multierr"
)

const (
	msgStopped = "Stopped"
	msgRunning = "Logging..."
)

type Option func(*App)

func WithLogger(l logger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithOpener replaces instrument.Open, mainly for tests.
func WithOpener(o Opener) Option {
	return func(a *App) {
		if o != nil {
			a.open = o
		}
	}
}

// WithRecorder replaces the sample log file as the primary recorder.
func WithRecorder(r recorder.Recorder) Option {
	return func(a *App) { a.primary = r }
}

func WithClock(c poller.Clock) Option {
	return func(a *App) { a.clock = c }
}

func WithSink(s poller.Sink) Option {
	return func(a *App) { a.sink = s }
}

func WithStatusObserver(o StatusObserver) Option {
	return func(a *App) { a.observer = o }
}

// App couples the instrument session, the polling loop and the recorders.
// The session is opened on the first start and reused afterwards, until its
// transport fails; a dead session is reopened by the next start or tick.
type App struct {
	cfg      *config.Config
	log      logger.Logger
	open     Opener
	clock    poller.Clock
	primary  recorder.Recorder
	rec      recorder.Recorder
	closers  []io.Closer
	sink     poller.Sink
	observer StatusObserver

	// control serializes Toggle, Start, Stop, SetEndpoint and Close.
	control  sync.Mutex
	endpoint string
	loop     *poller.Loop
	closed   bool

	// sessMu guards the session; ticks reopen it without taking control.
	sessMu  sync.Mutex
	target  string
	session Session

	mu     sync.Mutex
	status Status
	halted chan error
}

// New builds an App from cfg. Mirrors configured in cfg (SQLite metrics,
// InfluxDB export) are opened here.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      logger.Nop(),
		open:     OpenInstrument,
		endpoint: cfg.Endpoint,
		target:   cfg.Endpoint,
		halted:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("app")
	a.status = Status{State: poller.Idle, Endpoint: a.endpoint, Message: msgStopped}

	if a.primary == nil {
		file := recorder.NewFile(cfg.Destination())
		a.log.Info().Str("path", file.Path()).Msg("Logging samples to file")
		a.primary = file
	}

	mcfg := metrics.DefaultConfig()
	mcfg.DBPath = cfg.MetricsDB
	mcfg.Endpoint = cfg.Endpoint
	mcfg.Enabled = cfg.Metrics
	mc, err := metrics.NewService(mcfg, a.log)
	if err != nil {
		return nil, err
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.URL = cfg.InfluxURL
	tcfg.Token = cfg.InfluxToken
	tcfg.Org = cfg.InfluxOrg
	tcfg.Bucket = cfg.InfluxBucket
	tcfg.Endpoint = cfg.Endpoint
	tc, err := telemetry.NewService(tcfg, telemetry.WithLogger(a.log))
	if err != nil {
		return nil, multierr.Append(err, mc.Close())
	}

	a.closers = []io.Closer{mc, tc}
	a.rec = recorder.NewMulti(a.primary, mc, tc)

	return a, nil
}

// Status returns the current status.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Halted delivers the error that made the loop stop on its own.
func (a *App) Halted() <-chan error {
	return a.halted
}

func (a *App) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	observer := a.observer
	a.mu.Unlock()

	if observer != nil {
		observer(s)
	}
}

func (a *App) setObserver(o StatusObserver) {
	a.mu.Lock()
	a.observer = o
	a.mu.Unlock()
}

// Toggle stops a running loop or starts an idle one. It returns whether the
// loop is running afterwards.
func (a *App) Toggle(ctx context.Context) (bool, error) {
	a.control.Lock()
	defer a.control.Unlock()

	if a.loop != nil && a.loop.Running() {
		a.stopLocked()
		return false, nil
	}
	if err := a.startLocked(ctx); err != nil {
		return false, err
	}
	return a.loop.Running(), nil
}

// Start begins logging. Starting a running App does nothing.
func (a *App) Start(ctx context.Context) error {
	a.control.Lock()
	defer a.control.Unlock()

	if a.loop != nil && a.loop.Running() {
		return nil
	}
	return a.startLocked(ctx)
}

// Stop ends logging. A tick in progress still completes.
func (a *App) Stop() {
	a.control.Lock()
	defer a.control.Unlock()
	a.stopLocked()
}

func (a *App) startLocked(ctx context.Context) error {
	errFactory := errors.New()

	if a.closed {
		return errFactory.WithMessage(errors.ErrInvalidOperation, "app is closed")
	}
	if a.endpoint == "" {
		err := errFactory.New(errors.ErrMissingEndpoint)
		a.setStatus(Status{State: poller.Idle, Message: err.Error(), Err: err})
		return err
	}

	if _, err := a.liveSession(ctx); err != nil {
		a.setStatus(Status{State: poller.Idle, Endpoint: a.endpoint, Message: err.Error(), Err: err})
		return err
	}
	if a.loop == nil {
		a.loop = a.newLoop()
	}

	a.setStatus(Status{State: poller.Running, Endpoint: a.endpoint, Message: msgRunning})
	a.loop.Start(ctx)

	return nil
}

// liveSession returns the cached session, opening the target endpoint when
// there is none or the cached one has lost its transport.
func (a *App) liveSession(ctx context.Context) (Session, error) {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()

	if a.session != nil {
		if a.session.Alive() {
			return a.session, nil
		}
		a.log.Warn().Str("endpoint", a.target).Msg("Instrument connection lost, reconnecting")
		if err := a.session.Close(); err != nil {
			a.log.Debug().Err(err).Msg("Failed to close dead session")
		}
		a.session = nil
	}

	s, err := a.open(ctx, a.target, a.cfg.Identity,
		instrument.WithTimeout(a.cfg.Timeout),
		instrument.WithQuery(a.cfg.Query),
		instrument.WithBaud(a.cfg.Baud),
		instrument.WithPrologixPort(a.cfg.PrologixPort),
		instrument.WithLogger(a.log),
	)
	if err != nil {
		a.log.Error().Err(err).Str("endpoint", a.target).Msg("Failed to open instrument")
		return nil, err
	}
	a.session = s

	return s, nil
}

// sessionReader is the loop's view of the instrument. It follows the
// session across reconnects.
type sessionReader struct {
	a *App
}

func (r sessionReader) ReadTemperature(ctx context.Context) (float64, error) {
	s, err := r.a.liveSession(ctx)
	if err != nil {
		return 0, err
	}
	return s.ReadTemperature(ctx)
}

func (a *App) newLoop() *poller.Loop {
	opts := []poller.Option{
		poller.WithInterval(a.cfg.Interval),
		poller.WithMaxConsecutiveFailures(a.cfg.MaxFailures),
		poller.WithReporter(poller.ReporterFunc(a.report)),
		poller.WithLogger(a.log),
	}
	if a.cfg.OnError == config.PolicyStop {
		opts = append(opts, poller.WithErrorPolicy(poller.StopOnError))
	}
	if a.clock != nil {
		opts = append(opts, poller.WithClock(a.clock))
	}
	if a.sink != nil {
		opts = append(opts, poller.WithSink(a.sink))
	}
	return poller.New(sessionReader{a: a}, a.rec, opts...)
}

// stopLocked also covers a loop already stopped by its context.
func (a *App) stopLocked() {
	if a.loop != nil {
		a.loop.Stop()
	}
	if a.Status().Running() {
		a.setStatus(Status{State: poller.Idle, Endpoint: a.endpoint, Message: msgStopped})
	}
}

// report runs on the tick goroutine. A tick that completes after Stop still
// reports its sample; the state shown stays whatever Stop set.
func (a *App) report(ev poller.Event) {
	current := a.Status()
	switch ev.Kind {
	case poller.EventSample:
		a.setStatus(Status{
			State:    current.State,
			Endpoint: current.Endpoint,
			Message:  fmt.Sprintf("Last sample %.4f", ev.Sample.Value),
		})
	case poller.EventReadFailed, poller.EventRecordFailed:
		a.setStatus(Status{State: current.State, Endpoint: current.Endpoint, Message: ev.Err.Error(), Err: ev.Err})
	case poller.EventStopped:
		a.setStatus(Status{State: poller.Idle, Endpoint: current.Endpoint, Message: ev.Err.Error(), Err: ev.Err})
		select {
		case a.halted <- ev.Err:
		default:
		}
	}
}

// SetEndpoint selects another instrument. A running loop is stopped and the
// cached session closed; the next start connects to the new endpoint.
func (a *App) SetEndpoint(endpoint string) error {
	a.control.Lock()
	defer a.control.Unlock()

	if endpoint == a.endpoint {
		return nil
	}
	a.stopLocked()
	err := a.releaseSessionLocked()

	a.endpoint = endpoint
	a.sessMu.Lock()
	a.target = endpoint
	a.sessMu.Unlock()
	a.setStatus(Status{State: poller.Idle, Endpoint: endpoint, Message: msgStopped})
	a.log.Info().Str("endpoint", endpoint).Msg("Instrument endpoint selected")

	return err
}

// Endpoint returns the selected endpoint.
func (a *App) Endpoint() string {
	a.control.Lock()
	defer a.control.Unlock()
	return a.endpoint
}

func (a *App) releaseSessionLocked() error {
	if a.loop != nil {
		a.loop.Wait()
		a.loop = nil
	}

	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	a.session = nil
	return err
}

// Close stops logging, waits for a tick in progress, closes the instrument
// and flushes the mirrors.
func (a *App) Close() error {
	a.control.Lock()
	defer a.control.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	a.stopLocked()
	err := a.releaseSessionLocked()
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
