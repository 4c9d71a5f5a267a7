package instrument

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"

	"codeberg.org/mutker/templogger/internal/errors"
)

// Kind identifies the transport behind an endpoint.
type Kind int

const (
	KindSerial Kind = iota
	KindTCP
	KindGPIB
	KindSim
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	case KindGPIB:
		return "gpib"
	case KindSim:
		return "sim"
	default:
		return "unknown"
	}
}

// Endpoint is a parsed instrument resource string.
type Endpoint struct {
	Raw  string
	Kind Kind
	// Address is the serial device for KindSerial and host:port for KindTCP.
	Address string
	// GPIBAddr is the primary bus address for KindGPIB.
	GPIBAddr int
}

func (e Endpoint) String() string {
	return e.Raw
}

// ParseEndpoint accepts VISA style resource strings and bare device names:
//
//	ASRL/dev/ttyACM0::INSTR   serial device by path
//	ASRL4::INSTR              serial board number (COM4 on Windows)
//	/dev/ttyUSB0, COM3        serial device
//	TCPIP0::10.0.0.5::7020::SOCKET
//	GPIB0::12::INSTR          via a Prologix GPIB-USB controller
//	SIM::INSTR                built-in simulated Mercury iTC
func ParseEndpoint(raw string) (Endpoint, error) {
	errFactory := errors.New()

	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, errFactory.New(errors.ErrMissingEndpoint)
	}
	ep := Endpoint{Raw: s}
	upper := strings.ToUpper(s)

	switch {
	case upper == "SIM" || upper == "SIM::INSTR":
		ep.Kind = KindSim
		return ep, nil

	case strings.HasPrefix(upper, "ASRL"):
		dev, err := parseASRL(s)
		if err != nil {
			return Endpoint{}, errFactory.Wrap(ErrInvalidEndpoint, err)
		}
		ep.Kind = KindSerial
		ep.Address = dev
		return ep, nil

	case strings.HasPrefix(upper, "TCPIP"):
		addr, err := parseTCPIP(s)
		if err != nil {
			return Endpoint{}, errFactory.Wrap(ErrInvalidEndpoint, err)
		}
		ep.Kind = KindTCP
		ep.Address = addr
		return ep, nil

	case strings.HasPrefix(upper, "GPIB"):
		addr, err := parseGPIB(s)
		if err != nil {
			return Endpoint{}, errFactory.Wrap(ErrInvalidEndpoint, err)
		}
		ep.Kind = KindGPIB
		ep.GPIBAddr = addr
		return ep, nil

	case strings.Contains(s, "::"):
		return Endpoint{}, errFactory.WithData(ErrInvalidEndpoint, s)
	}

	ep.Kind = KindSerial
	ep.Address = s

	return ep, nil
}

func parseASRL(s string) (string, error) {
	rest := s[len("ASRL"):]
	if i := strings.Index(rest, "::"); i >= 0 {
		if !strings.EqualFold(rest[i+2:], "INSTR") {
			return "", fmt.Errorf("unsupported resource class %q", rest[i+2:])
		}
		rest = rest[:i]
	}
	if rest == "" {
		return "", fmt.Errorf("missing serial device in %q", s)
	}

	board, err := strconv.Atoi(rest)
	if err != nil {
		// ASRL/dev/ttyACM0::INSTR and ASRLCOM3::INSTR name the device directly.
		return rest, nil
	}
	if board < 1 {
		return "", fmt.Errorf("invalid serial board number %d", board)
	}
	if runtime.GOOS == "windows" {
		return "COM" + rest, nil
	}

	return fmt.Sprintf("/dev/ttyS%d", board-1), nil
}

func parseTCPIP(s string) (string, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 4 || !strings.EqualFold(parts[3], "SOCKET") {
		return "", fmt.Errorf("expected TCPIP[board]::host::port::SOCKET, got %q", s)
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %q", parts[2])
	}
	if parts[1] == "" {
		return "", fmt.Errorf("missing host in %q", s)
	}

	return net.JoinHostPort(parts[1], parts[2]), nil
}

func parseGPIB(s string) (int, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || !strings.EqualFold(parts[2], "INSTR") {
		return 0, fmt.Errorf("expected GPIB[board]::address::INSTR, got %q", s)
	}
	addr, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid GPIB address %q", parts[1])
	}
	if !isPrimaryAddressValid(addr) {
		return 0, fmt.Errorf("invalid primary address %d (must be 0-30)", addr)
	}

	return addr, nil
}

func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}
