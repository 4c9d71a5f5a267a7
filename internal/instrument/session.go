package instrument

import (
	"bufio"
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/logger"
)

const (
	DefaultQuery   = "READ:DEV:MB1.T1:TEMP:SIG:TEMP"
	DefaultTimeout = 2 * time.Second
	DefaultBaud    = 9600

	identityQuery = "*IDN?"
	lineBuffer    = 16
)

// Options configures Open. The zero value is not usable; start from
// defaultOptions.
type Options struct {
	Timeout      time.Duration
	Query        string
	Baud         int
	PrologixPort string
	Terminator   byte
	Logger       logger.Logger
	Dialer       Dialer
}

type Option func(*Options)

// WithTimeout bounds every query, from write to the end of the response line.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithQuery sets the command ReadTemperature sends.
func WithQuery(cmd string) Option {
	return func(o *Options) {
		if cmd != "" {
			o.Query = cmd
		}
	}
}

func WithBaud(baud int) Option {
	return func(o *Options) {
		if baud > 0 {
			o.Baud = baud
		}
	}
}

// WithPrologixPort names the serial port of the Prologix controller used for
// GPIB endpoints.
func WithPrologixPort(port string) Option {
	return func(o *Options) { o.PrologixPort = port }
}

func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithDialer replaces the transport factory, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(o *Options) {
		if d != nil {
			o.Dialer = d
		}
	}
}

func defaultOptions() *Options {
	return &Options{
		Timeout:    DefaultTimeout,
		Query:      DefaultQuery,
		Baud:       DefaultBaud,
		Terminator: '\n',
		Logger:     logger.Nop(),
		Dialer:     Dial,
	}
}

type line struct {
	text string
	err  error
}

// Session is an open, identity verified connection to one instrument. Queries
// are serialized; a single reader goroutine feeds response lines so that each
// query can give up after its timeout without blocking on the transport.
type Session struct {
	endpoint Endpoint
	identity string
	opts     *Options
	log      logger.Logger

	transport Transport
	lines     chan line
	done      chan struct{}

	mu     sync.Mutex
	closed bool
	broken bool

	// owed counts answers to timed out queries that may still arrive; they
	// are skipped until owedUntil.
	owed      int
	owedUntil time.Time

	closeOnce sync.Once
	closeErr  error

	readErrMu sync.Mutex
	readErr   error
}

// Open connects to endpoint, asks the instrument for its identity and
// returns a Session only if the answer equals expectedIdentity. Any failure
// leaves no transport open.
func Open(ctx context.Context, endpoint, expectedIdentity string, opts ...Option) (*Session, error) {
	errFactory := errors.New()

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	expected := strings.TrimSpace(expectedIdentity)
	if expected == "" {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "expected instrument identity must not be empty")
	}

	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	log := o.Logger.With("instrument")
	log.Debug().Str("endpoint", ep.Raw).Str("transport", ep.Kind.String()).Msg("Opening instrument")

	t, err := o.Dialer(ctx, ep, o)
	if err != nil {
		if errors.HasCode(err, ErrInvalidEndpoint, errors.ErrMissingEndpoint) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrTransport, err).WithData(ep.Raw)
	}

	s := newSession(ep, t, o, log)

	actual, err := s.Query(ctx, identityQuery)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if actual != expected {
		_ = s.Close()
		log.Warn().Str("endpoint", ep.Raw).Str("identity", actual).Msg("Unexpected instrument ID")
		return nil, errFactory.WithData(ErrIdentityMismatch, actual)
	}
	s.identity = actual

	log.Info().Str("endpoint", ep.Raw).Msg("Connection successful")

	return s, nil
}

func newSession(ep Endpoint, t Transport, o *Options, log logger.Logger) *Session {
	s := &Session{
		endpoint:  ep,
		opts:      o,
		log:       log,
		transport: t,
		lines:     make(chan line, lineBuffer),
		done:      make(chan struct{}),
	}
	go s.pump()

	return s
}

func (s *Session) pump() {
	defer close(s.lines)

	r := bufio.NewReader(s.transport)
	for {
		text, err := r.ReadString(s.opts.Terminator)
		if text != "" && !s.deliver(line{text: text}) {
			return
		}
		if err != nil {
			s.readErrMu.Lock()
			s.readErr = err
			s.readErrMu.Unlock()
			return
		}
	}
}

// deliver hands a line to Query. It gives up once the session is closed so
// that a full buffer cannot keep the pump alive.
func (s *Session) deliver(l line) bool {
	select {
	case s.lines <- l:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) lastReadErr() error {
	s.readErrMu.Lock()
	defer s.readErrMu.Unlock()
	return s.readErr
}

// Endpoint returns the resource string the session was opened with.
func (s *Session) Endpoint() string {
	return s.endpoint.Raw
}

// Identity returns the verified *IDN? response.
func (s *Session) Identity() string {
	return s.identity
}

// Query writes cmd followed by the terminator and returns the next response
// line with surrounding whitespace removed.
//
// A query that timed out leaves its answer owed. Owed answers are skipped,
// whether they are already buffered or arrive while the next query waits,
// for up to one timeout after the failed query. An answer later than that,
// or an unsolicited line, can still be taken for the next response.
func (s *Session) Query(ctx context.Context, cmd string) (string, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errFactory.New(ErrClosed)
	}
	if s.owed > 0 && time.Now().After(s.owedUntil) {
		s.owed = 0
	}
	if err := s.drain(); err != nil {
		return "", err
	}

	if d, ok := s.transport.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(s.opts.Timeout))
	}
	payload := strings.TrimSpace(cmd) + string(s.opts.Terminator)
	if _, err := s.transport.Write([]byte(payload)); err != nil {
		s.broken = true
		return "", errFactory.Wrap(ErrTransport, err).WithData(cmd)
	}
	s.log.Debug().Str("cmd", cmd).Msg("Query sent")

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case l, ok := <-s.lines:
			if !ok {
				s.broken = true
				return "", errFactory.Wrap(ErrTransport, s.lastReadErr()).WithData(cmd)
			}
			resp := strings.TrimSpace(l.text)
			if s.owed > 0 {
				s.owed--
				s.log.Debug().Str("line", resp).Msg("Discarding late response")
				continue
			}
			s.log.Debug().Str("cmd", cmd).Str("response", resp).Msg("Query answered")
			return resp, nil
		case <-timer.C:
			s.owe()
			return "", errFactory.Wrap(ErrTransport, errors.New().WithData(errors.ErrTimeout, s.opts.Timeout)).WithData(cmd)
		case <-ctx.Done():
			s.owe()
			return "", errFactory.Wrap(ErrTransport, ctx.Err()).WithData(cmd)
		}
	}
}

// owe must be called with mu held.
func (s *Session) owe() {
	s.owed++
	s.owedUntil = time.Now().Add(s.opts.Timeout)
}

// drain drops buffered lines without blocking. Must be called with mu held.
func (s *Session) drain() error {
	for {
		select {
		case l, ok := <-s.lines:
			if !ok {
				s.broken = true
				return errors.New().Wrap(ErrTransport, s.lastReadErr())
			}
			if s.owed > 0 {
				s.owed--
			}
			s.log.Debug().Str("line", strings.TrimSpace(l.text)).Msg("Discarding stale response")
		default:
			return nil
		}
	}
}

// Alive reports whether the session can still be used. It turns false after
// Close and once the transport failed to read or write; such a session has
// to be replaced by a new Open.
func (s *Session) Alive() bool {
	s.mu.Lock()
	usable := !s.closed && !s.broken
	s.mu.Unlock()

	return usable && s.lastReadErr() == nil
}

// ReadTemperature sends the configured temperature query and parses the
// answer.
func (s *Session) ReadTemperature(ctx context.Context) (float64, error) {
	resp, err := s.Query(ctx, s.opts.Query)
	if err != nil {
		return 0, err
	}
	return ParseTemperature(resp)
}

// Close releases the transport. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)

		if err := s.transport.Close(); err != nil {
			s.closeErr = errors.New().Wrap(ErrTransport, err).WithData(s.endpoint.Raw)
		}
		s.log.Debug().Str("endpoint", s.endpoint.Raw).Msg("Instrument closed")
	})

	return s.closeErr
}

// ParseTemperature extracts the value from a response such as
// "STAT:DEV:MB1.T1:TEMP:SIG:TEMP:293.1234K": the field after the last colon,
// without its one character unit.
func ParseTemperature(resp string) (float64, error) {
	errFactory := errors.New()

	s := strings.TrimSpace(resp)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return 0, errFactory.WithData(ErrParse, resp)
	}
	field := s[i+1:]
	if len(field) < 2 {
		return 0, errFactory.WithData(ErrParse, resp)
	}
	unit := field[len(field)-1]
	if (unit >= '0' && unit <= '9') || unit == '.' {
		return 0, errFactory.WithData(ErrParse, resp)
	}

	v, err := strconv.ParseFloat(field[:len(field)-1], 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrParse, err).WithData(resp)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errFactory.WithData(ErrParse, resp)
	}

	return v, nil
}
