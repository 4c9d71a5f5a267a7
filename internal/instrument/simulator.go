package instrument

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// SimIdentity is what the simulated Mercury iTC answers to *IDN?.
const SimIdentity = "IDN:OXFORD INSTRUMENTS:MERCURY ITC:224550324:2.6.04.000"

// Simulator is an in-memory Transport that behaves like a Mercury iTC
// reporting a slowly drifting temperature. Commands are newline terminated.
type Simulator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	in     []byte
	out    bytes.Buffer
	closed bool

	identity string
	temp     float64
	rng      *rand.Rand
	silent   bool
}

type SimOption func(*Simulator)

// WithSimIdentity changes the *IDN? answer.
func WithSimIdentity(id string) SimOption {
	return func(s *Simulator) { s.identity = id }
}

// WithSimTemperature sets the starting temperature in kelvin.
func WithSimTemperature(k float64) SimOption {
	return func(s *Simulator) { s.temp = k }
}

// WithSimSeed makes the drift reproducible.
func WithSimSeed(seed int64) SimOption {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

func NewSimulator(opts ...SimOption) *Simulator {
	s := &Simulator{
		identity: SimIdentity,
		temp:     293.15,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetSilent makes the simulator swallow commands without answering.
func (s *Simulator) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.in = append(s.in, p...)
	for {
		i := bytes.IndexByte(s.in, '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimSpace(string(s.in[:i]))
		s.in = s.in[i+1:]
		if cmd == "" || s.silent {
			continue
		}
		s.out.WriteString(s.respond(cmd))
		s.out.WriteByte('\n')
	}
	s.cond.Broadcast()

	return len(p), nil
}

func (s *Simulator) respond(cmd string) string {
	upper := strings.ToUpper(cmd)
	switch {
	case upper == "*IDN?":
		return s.identity
	case strings.HasPrefix(upper, "READ:DEV:") && strings.HasSuffix(upper, ":TEMP"):
		s.temp += (s.rng.Float64() - 0.5) * 0.02
		return fmt.Sprintf("STAT:%s:%.4fK", cmd[len("READ:"):], s.temp)
	default:
		return "STAT:" + cmd + ":INVALID"
	}
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.out.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.out.Len() == 0 {
		return 0, io.EOF
	}

	return s.out.Read(p)
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	return nil
}
