package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/email2sms/at"
)

// Modem is the single session with a GSM modem. It owns the selected port
// and the gate that serializes every AT exchange on it.
//
// The serial line is half-duplex and the SMS submission is a two-phase
// exchange, so at most one exchange may be in flight at any time. Every
// public method that talks to the device holds mu for its whole duration.
type Modem struct {
	config Config
	logger *slog.Logger

	// mu serializes all access to the device.
	mu sync.Mutex
	// port is the modem handle, bound once initialization succeeded.
	port   Port
	ready  bool
	closed bool
}

// New finds and initializes a modem.
//
// If config.PortName is set only that port is initialized. Otherwise the
// candidate ports are enumerated, probed for a modem, and initialized in
// order until one succeeds.
//
// A fatal *InitError (missing SIM, PIN required) stops the search and is
// returned as is. When no port could be initialized the error wraps
// ErrNoPorts or ErrNoModem.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	m := &Modem{
		config: config,
		logger: config.Logger,
	}

	var candidates []Port
	if config.PortName != "" {
		candidates = []Port{{Index: 0, Name: config.PortName}}
	} else {
		ports := ListPorts(ctx, config)
		if len(ports) == 0 {
			return nil, ErrNoPorts
		}
		candidates = Probe(ctx, config, ports)
		if len(candidates) == 0 {
			return nil, ErrNoModem
		}
	}

	var errs []error
	for _, p := range candidates {
		m.logger.Debug("Trying modem", "port", p.String())
		err := m.initialize(ctx, p)
		if err == nil {
			m.port = p
			m.ready = true
			m.logger.Info("Initialised modem", "port", p.String())
			return m, nil
		}
		if IsFatal(err) {
			return nil, err
		}
		m.logger.Info("Failed to initialise modem", "port", p.String(), "error", err)
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %w", ErrNoModem, errors.Join(errs...))
}

// Port returns the port the modem was initialized on.
func (m *Modem) Port() Port {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

func (m *Modem) String() string {
	return fmt.Sprintf("modem on %s", m.Port().Name)
}

// Exec runs one AT command on the initialized modem and returns the reply
// with the echo removed. A zero timeout uses the configured command timeout.
func (m *Modem) Exec(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = m.config.CommandTimeout
	}
	return m.exchange(ctx, m.port, cmd, timeout)
}

// Abort sends Esc, cancelling an SMS envelope left open on the modem.
func (m *Modem) Abort(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}
	return m.abort(ctx)
}

// Close marks the modem as closed. No port is held between exchanges, so
// there is nothing to release; Close waits for an exchange in flight.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	return nil
}

// checkReady must be called with mu held.
func (m *Modem) checkReady() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if !m.ready {
		return ErrNotInitialized
	}
	return nil
}

// exchange must be called with mu held, or before the modem is published.
func (m *Modem) exchange(ctx context.Context, port Port, cmd string, timeout time.Duration) (string, error) {
	ex := &Exchange{Command: cmd, Timeout: timeout}
	return exchange(ctx, m.config.Dialer, port.Name, ex, m.logger)
}

func (m *Modem) abort(ctx context.Context) error {
	m.logger.Warn("Aborting SMS envelope", "port", m.port.Name)
	_, err := m.exchange(ctx, m.port, at.Esc, m.config.CommandTimeout)
	return err
}
