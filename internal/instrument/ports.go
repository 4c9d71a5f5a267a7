package instrument

import (
	"sort"

	"codeberg.org/mutker/templogger/internal/errors"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	Resource     string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts enumerates serial ports, sorted by name, together with the
// resource string that selects each one.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.New().Wrap(ErrTransport, err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Resource:     "ASRL" + d.Name + "::INSTR",
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	return ports, nil
}
