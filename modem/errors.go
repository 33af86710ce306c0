package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// open the serial port for each exchange.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when a closed Modem is used.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrDeviceUnavailable is returned when a serial port cannot be opened
	// or configured. During startup the next candidate port is tried.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrProtocolMismatch is returned when the modem answered, but not with
	// the reply the exchange required.
	ErrProtocolMismatch = errors.New("unexpected modem reply")

	// ErrTimeout is returned when an exchange required content and the read
	// timeout elapsed before any arrived.
	ErrTimeout = errors.New("no reply from modem")

	// ErrNoPorts is returned when enumeration found no serial ports.
	ErrNoPorts = errors.New("no serial ports found")

	// ErrNoModem is returned when no port hosts a modem that could be
	// initialized.
	ErrNoModem = errors.New("no modem found")

	// ErrSIMNotPresent is returned when the SIM presence check fails.
	ErrSIMNotPresent = errors.New("SIM not present")

	// ErrSIMPinRequired is returned when the SIM is not ready, typically
	// because it waits for a PIN. PIN entry is not automated.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrTextMode is returned in strict text mode when the modem refuses to
	// switch to text-mode SMS.
	ErrTextMode = errors.New("cannot switch modem to text mode")
)

// InitStep names a step of the initialization sequence.
type InitStep string

const (
	StepSIMCheck InitStep = "SIM check"
	StepPINCheck InitStep = "PIN check"
	StepTextMode InitStep = "text mode switch"
)

// InitError reports a failed initialization step.
//
// Fatal errors mean no other port can help (the SIM is missing or locked)
// and the caller should stop. Non-fatal errors let startup move on to the
// next candidate port. Deciding whether to exit is left to the caller.
type InitError struct {
	Port  Port
	Step  InitStep
	Reply string
	Fatal bool
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%s on port %s: %v", e.Step, e.Port.Name, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a fatal InitError.
func IsFatal(err error) bool {
	var initErr *InitError
	return errors.As(err, &initErr) && initErr.Fatal
}

// unexpected classifies a reply that did not match what an exchange
// required. An empty reply means the modem never answered.
func unexpected(reply string) error {
	if reply == "" {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %q", ErrProtocolMismatch, reply)
}
