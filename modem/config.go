package modem

import (
	"log/slog"
	"time"
)

const (
	// DefaultBaudRate is the line speed the gateway's modems are run at.
	DefaultBaudRate = 19200
	// DefaultCountryCode is prepended to every destination number.
	DefaultCountryCode = "+353"
	// DefaultMaxPorts bounds port enumeration.
	DefaultMaxPorts = 256
)

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config holds the settings of a Modem. Zero values are replaced with
// defaults by New; use NewConfigBuilder to construct one fluently.
type Config struct {
	// Dialer opens serial ports. Required.
	Dialer Dialer
	// Lister lists candidate ports when PortName is empty.
	Lister PortLister
	// PortName skips enumeration and probing when set.
	PortName string
	// CountryCode is prepended to destinations after their leading zeros
	// are removed.
	CountryCode string
	// MaxPorts bounds how many candidates enumeration considers.
	MaxPorts int

	ProbeTimeout    time.Duration
	CommandTimeout  time.Duration
	SimCheckTimeout time.Duration
	SubmitTimeout   time.Duration

	// StrictTextMode makes a failed AT+CMGF=1 a fatal initialization error.
	// TODO: strict-mode: decide whether text-mode failure should be fatal by default.
	StrictTextMode bool
	// StrictSubmit requires the final OK after an SMS body is submitted and
	// aborts envelopes that did not produce a prompt.
	// TODO: strict-mode: decide whether the final OK should be required by default.
	StrictSubmit bool

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Lister == nil {
		c.Lister = SerialPortLister
	}
	if c.CountryCode == "" {
		c.CountryCode = DefaultCountryCode
	}
	if c.MaxPorts <= 0 {
		c.MaxPorts = DefaultMaxPorts
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = time.Second
	}
	if c.SimCheckTimeout == 0 {
		c.SimCheckTimeout = 5 * time.Second
	}
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder builds a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLister(l PortLister) *ConfigBuilder {
	b.config.Lister = l
	return b
}

func (b *ConfigBuilder) WithPortName(name string) *ConfigBuilder {
	b.config.PortName = name
	return b
}

func (b *ConfigBuilder) WithCountryCode(code string) *ConfigBuilder {
	b.config.CountryCode = code
	return b
}

func (b *ConfigBuilder) WithMaxPorts(n int) *ConfigBuilder {
	b.config.MaxPorts = n
	return b
}

func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.ProbeTimeout = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithSimCheckTimeout(d time.Duration) *ConfigBuilder {
	b.config.SimCheckTimeout = d
	return b
}

func (b *ConfigBuilder) WithSubmitTimeout(d time.Duration) *ConfigBuilder {
	b.config.SubmitTimeout = d
	return b
}

func (b *ConfigBuilder) WithStrictTextMode(strict bool) *ConfigBuilder {
	b.config.StrictTextMode = strict
	return b
}

func (b *ConfigBuilder) WithStrictSubmit(strict bool) *ConfigBuilder {
	b.config.StrictSubmit = strict
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
