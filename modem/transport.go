package modem

//go:generate go tool mockgen -destination=mock_transport.go -package=modem . Transport,Dialer,PortLister

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport represents an open, bidirectional byte stream to a GSM modem.
//
// A Transport is owned by exactly one exchange: it is opened, used for a
// single command and its reply, and closed again. Reads must return zero
// bytes and no error once the read timeout elapses, which is how
// go.bug.st/serial ports behave.
type Transport interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds each Read call.
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport to the named port.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a simulated device). It should respect cancellation
// provided by the context and return an error wrapping ErrDeviceUnavailable
// when the port cannot be opened.
type Dialer interface {
	Dial(ctx context.Context, portName string) (Transport, error)
}

// openPort is replaced in tests.
var openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

// SerialDialer opens modems over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// Mode defaults to DefaultBaudRate, 8N1.
	Mode *serial.Mode
}

// Dial opens portName. The returned Transport is a serial.Port.
func (d SerialDialer) Dial(ctx context.Context, portName string) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if portName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := openPort(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", portName, ErrDeviceUnavailable, err)
	}
	return port, nil
}
