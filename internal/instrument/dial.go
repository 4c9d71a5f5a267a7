package instrument

import (
	"context"
	"net"

	"codeberg.org/mutker/templogger/internal/errors"
	"go.bug.st/serial"
)

// Dial is the default Dialer. It opens the transport matching ep.Kind.
func Dial(ctx context.Context, ep Endpoint, o *Options) (Transport, error) {
	switch ep.Kind {
	case KindSerial:
		return openSerial(ep.Address, o.Baud)
	case KindTCP:
		d := net.Dialer{Timeout: o.Timeout}
		return d.DialContext(ctx, "tcp", ep.Address)
	case KindGPIB:
		if o.PrologixPort == "" {
			return nil, errors.New().WithMessage(ErrInvalidEndpoint, "GPIB endpoints need a Prologix controller port")
		}
		port, err := openSerial(o.PrologixPort, o.Baud)
		if err != nil {
			return nil, err
		}
		p, err := newPrologix(port, ep.GPIBAddr, o.Logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindSim:
		return NewSimulator(), nil
	default:
		return nil, errors.New().WithData(ErrInvalidEndpoint, ep.Raw)
	}
}

// openSerial opens a port in blocking mode: 8N1, no read timeout. Close
// unblocks a pending read.
func openSerial(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	_ = port.ResetInputBuffer()

	return port, nil
}
