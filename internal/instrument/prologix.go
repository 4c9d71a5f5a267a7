package instrument

import (
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/templogger/internal/logger"
	"go.uber.org/multierr"
)

// prologix drives a Prologix GPIB-USB controller in controller mode with
// read-after-write disabled, so every instrument command is followed by an
// explicit "++read eoi".
type prologix struct {
	rw  io.ReadWriteCloser
	log logger.Logger
}

func newPrologix(rw io.ReadWriteCloser, addr int, log logger.Logger) (*prologix, error) {
	p := &prologix{rw: rw, log: log}

	cmds := []string{
		"verbose 0",
		"savecfg 0",
		fmt.Sprintf("addr %d", addr),
		"mode 1",
		"auto 0",
		"eoi 1",
		"eos 2",
		"read_tmo_ms 500",
		"eot_enable 0",
	}
	for _, cmd := range cmds {
		if err := p.command(cmd); err != nil {
			return nil, multierr.Append(err, rw.Close())
		}
	}

	return p, nil
}

func (p *prologix) command(cmd string) error {
	p.log.Debug().Str("cmd", cmd).Msg("Prologix command")
	_, err := fmt.Fprintf(p.rw, "++%s\n", strings.ToLower(strings.TrimSpace(cmd)))
	return err
}

func (p *prologix) Write(b []byte) (int, error) {
	n, err := p.rw.Write(b)
	if err != nil {
		return n, err
	}
	if err := p.command("read eoi"); err != nil {
		return n, err
	}
	return n, nil
}

func (p *prologix) Read(b []byte) (int, error) {
	return p.rw.Read(b)
}

// Close returns the instrument to front panel control before releasing the
// port.
func (p *prologix) Close() error {
	return multierr.Append(p.command("loc"), p.rw.Close())
}
