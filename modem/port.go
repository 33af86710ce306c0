package modem

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial"

	"i4.energy/across/email2sms/at"
)

// Port describes a serial device found during a scan.
type Port struct {
	Index int
	Name  string
}

func (p Port) String() string {
	return fmt.Sprintf("%d - %s", p.Index, p.Name)
}

// PortLister lists the names of candidate serial devices.
type PortLister interface {
	ListPorts() ([]string, error)
}

// PortListerFunc adapts a function to PortLister.
type PortListerFunc func() ([]string, error)

func (f PortListerFunc) ListPorts() ([]string, error) {
	return f()
}

// SerialPortLister lists the serial ports known to the operating system.
var SerialPortLister PortLister = PortListerFunc(serial.GetPortsList)

// ListPorts returns the candidate ports that can currently be opened. At
// most config.MaxPorts candidates are tried. Ports that fail to open are
// skipped; every port that opens is closed again before returning, so
// enumeration never holds a device.
//
// An empty result is not an error here; the caller decides whether having
// no ports is fatal.
func ListPorts(ctx context.Context, config Config) []Port {
	config.setDefaults()
	logger := config.Logger

	names, err := config.Lister.ListPorts()
	if err != nil {
		logger.Warn("Failed to list serial ports", "error", err)
		return []Port{}
	}
	if len(names) > config.MaxPorts {
		names = names[:config.MaxPorts]
	}

	ports := []Port{}
	for i, name := range names {
		t, err := config.Dialer.Dial(ctx, name)
		if err != nil {
			continue
		}
		if err := t.Close(); err != nil {
			logger.Debug("Failed to close serial port", "port", name, "error", err)
		}
		p := Port{Index: i, Name: name}
		logger.Debug("Found serial port", "port", p.String())
		ports = append(ports, p)
	}
	return ports
}

// Probe returns the subset of ports that answer AT with OK. Each port gets
// exactly one attempt; failures are logged and the port is left out.
func Probe(ctx context.Context, config Config, ports []Port) []Port {
	config.setDefaults()
	logger := config.Logger

	modems := []Port{}
	for _, p := range ports {
		if err := probePort(ctx, config, p); err != nil {
			logger.Warn("No modem on serial port", "port", p.String(), "error", err)
			continue
		}
		logger.Debug("Modem present", "port", p.String())
		modems = append(modems, p)
	}
	return modems
}

// probePort writes AT and expects the echoed command followed by OK.
func probePort(ctx context.Context, config Config, p Port) error {
	t, err := config.Dialer.Dial(ctx, p.Name)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.SetReadTimeout(config.ProbeTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w: %w", ErrDeviceUnavailable, err)
	}
	if _, err := t.Write([]byte(at.CmdAt + at.CR)); err != nil {
		return fmt.Errorf("write probe: %w: %w", ErrDeviceUnavailable, err)
	}

	lr := at.NewLineReader(t)
	// The device echoes what it was sent before answering.
	for _, want := range []string{at.CmdAt, at.OK} {
		line, complete, err := lr.ReadLine()
		if err != nil {
			return fmt.Errorf("read probe reply: %w", err)
		}
		if !complete {
			line = strings.TrimRight(line, at.CR)
			if line == "" {
				return ErrTimeout
			}
		}
		if line != want {
			return fmt.Errorf("%w: expected %q, got %q", ErrProtocolMismatch, want, line)
		}
	}
	return nil
}
