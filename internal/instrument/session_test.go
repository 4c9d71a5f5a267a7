package instrument_test

import (
	"context"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/instrument"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = "IDN:OXFORD INSTRUMENTS:MERCURY ITC:224550324:2.6.04.000"

type reply struct {
	text  string
	delay time.Duration
}

// fakeTransport answers each command through respond. A false second return
// value means the instrument stays silent.
type fakeTransport struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	writes  []string
	closed  bool
	respond func(cmd string) (reply, bool)
}

func newFake(respond func(cmd string) (reply, bool)) *fakeTransport {
	pr, pw := io.Pipe()
	return &fakeTransport{pr: pr, pw: pw, respond: respond}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	cmd := strings.TrimSpace(string(p))
	f.mu.Lock()
	f.writes = append(f.writes, cmd)
	f.mu.Unlock()

	if r, ok := f.respond(cmd); ok {
		go func() {
			time.Sleep(r.delay)
			_, _ = f.pw.Write([]byte(r.text + "\n"))
		}()
	}
	return len(p), nil
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	return f.pr.Read(p)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	_ = f.pw.Close()
	return f.pr.Close()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func mercury(temp func() (reply, bool)) func(string) (reply, bool) {
	return func(cmd string) (reply, bool) {
		if cmd == "*IDN?" {
			return reply{text: testIdentity}, true
		}
		return temp()
	}
}

func dialer(f *fakeTransport) instrument.Option {
	return instrument.WithDialer(func(context.Context, instrument.Endpoint, *instrument.Options) (instrument.Transport, error) {
		return f, nil
	})
}

func TestParseTemperature(t *testing.T) {
	tests := []struct {
		resp    string
		want    float64
		wantErr bool
	}{
		{"NS:12.3456K", 12.3456, false},
		{"STAT:DEV:MB1.T1:TEMP:SIG:TEMP:293.1500K\r\n", 293.15, false},
		{"STAT:DEV:MB1.T1:TEMP:SIG:TEMP:-1.5C", -1.5, false},
		{"12.3456K", 0, true},
		{"NS:abcK", 0, true},
		{"NS:K", 0, true},
		{"NS:", 0, true},
		{"NS:12.5", 0, true},
		{"NS:NaNK", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := instrument.ParseTemperature(tt.resp)
		if tt.wantErr {
			require.Error(t, err, "response %q", tt.resp)
			assert.True(t, instrument.IsParseError(err), "response %q", tt.resp)
			continue
		}
		require.NoError(t, err, "response %q", tt.resp)
		assert.InDelta(t, tt.want, got, 1e-9, "response %q", tt.resp)
	}
}

func TestParseEndpoint(t *testing.T) {
	asrl4 := "/dev/ttyS3"
	if runtime.GOOS == "windows" {
		asrl4 = "COM4"
	}

	tests := []struct {
		raw  string
		kind instrument.Kind
		addr string
		gpib int
	}{
		{"ASRL/dev/ttyACM0::INSTR", instrument.KindSerial, "/dev/ttyACM0", 0},
		{"ASRL4::INSTR", instrument.KindSerial, asrl4, 0},
		{"asrlCOM3::INSTR", instrument.KindSerial, "COM3", 0},
		{"/dev/ttyUSB0", instrument.KindSerial, "/dev/ttyUSB0", 0},
		{" COM3 ", instrument.KindSerial, "COM3", 0},
		{"TCPIP0::10.0.0.5::7020::SOCKET", instrument.KindTCP, "10.0.0.5:7020", 0},
		{"GPIB0::12::INSTR", instrument.KindGPIB, "", 12},
		{"SIM::INSTR", instrument.KindSim, "", 0},
		{"sim", instrument.KindSim, "", 0},
	}
	for _, tt := range tests {
		ep, err := instrument.ParseEndpoint(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.kind, ep.Kind, tt.raw)
		assert.Equal(t, tt.addr, ep.Address, tt.raw)
		assert.Equal(t, tt.gpib, ep.GPIBAddr, tt.raw)
	}

	_, err := instrument.ParseEndpoint("  ")
	assert.True(t, errors.HasCode(err, errors.ErrMissingEndpoint))

	for _, raw := range []string{
		"ASRL::INSTR",
		"ASRL0::INSTR",
		"ASRL4::SOCKET",
		"TCPIP0::10.0.0.5::99999::SOCKET",
		"TCPIP0::::7020::SOCKET",
		"TCPIP0::10.0.0.5::7020",
		"GPIB0::31::INSTR",
		"GPIB0::x::INSTR",
		"USB0::0x1234::INSTR",
	} {
		_, err := instrument.ParseEndpoint(raw)
		require.Error(t, err, raw)
		assert.True(t, instrument.IsConnectionError(err), raw)
	}
}

func TestOpenSimulator(t *testing.T) {
	s, err := instrument.Open(context.Background(), "SIM::INSTR", instrument.SimIdentity)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "SIM::INSTR", s.Endpoint())
	assert.Equal(t, instrument.SimIdentity, s.Identity())

	v, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 293.15, v, 1.0)
}

func TestOpenIdentityMismatch(t *testing.T) {
	f := newFake(func(cmd string) (reply, bool) {
		return reply{text: "IDN:SOMEONE ELSE:MODEL 1"}, true
	})

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, instrument.IsConnectionError(err))
	assert.True(t, errors.HasCode(err, instrument.ErrIdentityMismatch))

	actual, ok := instrument.IdentityMismatch(err)
	require.True(t, ok)
	assert.Equal(t, "IDN:SOMEONE ELSE:MODEL 1", actual)
	assert.True(t, f.isClosed(), "transport must not stay open after a mismatch")
}

func TestOpenTransportFailure(t *testing.T) {
	failing := instrument.WithDialer(func(context.Context, instrument.Endpoint, *instrument.Options) (instrument.Transport, error) {
		return nil, io.ErrUnexpectedEOF
	})

	_, err := instrument.Open(context.Background(), "/dev/ttyUSB9", testIdentity, failing)
	require.Error(t, err)
	assert.True(t, instrument.IsConnectionError(err))
	assert.True(t, errors.HasCode(err, instrument.ErrTransport))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOpenSilentInstrument(t *testing.T) {
	f := newFake(func(string) (reply, bool) { return reply{}, false })

	start := time.Now()
	_, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f), instrument.WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, instrument.IsTransportError(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, f.isClosed())
}

func TestOpenRequiresIdentity(t *testing.T) {
	_, err := instrument.Open(context.Background(), "SIM::INSTR", " ")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestOpenMissingEndpoint(t *testing.T) {
	_, err := instrument.Open(context.Background(), "", testIdentity)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMissingEndpoint))
}

func TestReadTemperature(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{text: "NS:12.3456K"}, true }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f), instrument.WithQuery("READ:DEV:DB8.T1:TEMP"))
	require.NoError(t, err)
	defer s.Close()

	v, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 12.3456, v, 1e-9)

	f.mu.Lock()
	assert.Equal(t, []string{"*IDN?", "READ:DEV:DB8.T1:TEMP"}, f.writes)
	f.mu.Unlock()
}

func TestReadTemperatureMalformed(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{text: "garbage"}, true }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err)
	assert.True(t, instrument.IsParseError(err))
	assert.True(t, instrument.IsReadError(err))
	assert.False(t, instrument.IsTransportError(err))
}

func TestReadTemperatureTimeout(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{}, false }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f), instrument.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err)
	assert.True(t, instrument.IsTransportError(err))
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestReadTemperatureContextCanceled(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{}, false }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.ReadTemperature(ctx)
	require.Error(t, err)
	assert.True(t, instrument.IsTransportError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaleResponseDiscarded(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := newFake(mercury(func() (reply, bool) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return reply{text: "NS:1.0000K", delay: 100 * time.Millisecond}, true
		}
		return reply{text: "NS:2.0000K"}, true
	}))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f), instrument.WithTimeout(30*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err, "first answer arrives after the timeout")

	time.Sleep(150 * time.Millisecond)

	v, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9, "late answer to the first query must not be returned")
}

func TestLateResponseAfterDrainSkipped(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := newFake(mercury(func() (reply, bool) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return reply{text: "NS:1.0000K", delay: 250 * time.Millisecond}, true
		}
		return reply{text: "NS:2.0000K", delay: 100 * time.Millisecond}, true
	}))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f), instrument.WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))

	// The first answer lands while the second query is already waiting.
	v, err := s.ReadTemperature(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestAliveAfterTransportFailure(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{text: "NS:1.0000K"}, true }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Alive())

	// Instrument unplugged: the read side ends.
	require.NoError(t, f.pw.Close())

	require.Eventually(t, func() bool { return !s.Alive() }, time.Second, time.Millisecond)
	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err)
	assert.True(t, instrument.IsTransportError(err))
}

func TestAliveAfterClose(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{text: "NS:1K"}, true }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.False(t, s.Alive())
}

func TestCloseIdempotent(t *testing.T) {
	f := newFake(mercury(func() (reply, bool) { return reply{text: "NS:1K"}, true }))

	s, err := instrument.Open(context.Background(), "COM3", testIdentity, dialer(f))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, f.isClosed())

	_, err = s.ReadTemperature(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, instrument.ErrClosed))
	assert.True(t, instrument.IsTransportError(err))
}

func TestSimulatorSilentAndClose(t *testing.T) {
	sim := instrument.NewSimulator(instrument.WithSimSeed(1), instrument.WithSimTemperature(4.2))
	sim.SetSilent(true)
	_, err := sim.Write([]byte("*IDN?\n"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sim.Read(make([]byte, 16))
		done <- err
	}()

	require.NoError(t, sim.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}

	_, err = sim.Write([]byte("*IDN?\n"))
	assert.Error(t, err)
}
