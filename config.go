package main

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0").
	// Empty means every serial port is scanned for a modem.
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 19200)
	BaudRate int
	// CountryCode is prepended to destination numbers (e.g. "+353")
	CountryCode string
	// SMTPAddress is the address the SMTP listener accepts mail on (e.g. "localhost:25")
	SMTPAddress string
	// SMTPDomain is the domain announced in the SMTP greeting
	SMTPDomain string
	// BindAddress is the address the HTTP server listens on. Empty disables HTTP.
	BindAddress string
	// HTTPToken, if set, is required as a bearer token on HTTP submissions
	HTTPToken string
	// MQTTBroker is the broker URL (e.g. "tcp://localhost:1883"). Empty disables MQTT.
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	// JournalPath is the SQLite database send attempts are logged to. Empty disables the journal.
	JournalPath string
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// StrictTextMode makes a refused switch to text mode fatal
	StrictTextMode bool
	// StrictSubmit requires the modem to confirm every SMS body
	StrictSubmit bool
	// StopOnInvalidRecipient skips the remaining recipients of a mail after an invalid one
	StopOnInvalidRecipient bool
	// Simulate uses a built-in simulated modem instead of a serial device
	Simulate bool
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BaudRate = 19200
		c.CountryCode = "+353"
		c.SMTPAddress = "localhost:25"
		c.SMTPDomain = "localhost"
		c.MQTTTopic = "sms/send"
		c.MQTTClientID = "email2sms"
		c.LogLevel = "info"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for key, dst := range map[string]*string{
			"SERIAL_PORT":    &c.SerialPort,
			"COUNTRY_CODE":   &c.CountryCode,
			"SMTP_ADDRESS":   &c.SMTPAddress,
			"SMTP_DOMAIN":    &c.SMTPDomain,
			"BIND_ADDRESS":   &c.BindAddress,
			"HTTP_TOKEN":     &c.HTTPToken,
			"MQTT_BROKER":    &c.MQTTBroker,
			"MQTT_TOPIC":     &c.MQTTTopic,
			"MQTT_CLIENT_ID": &c.MQTTClientID,
			"MQTT_USERNAME":  &c.MQTTUsername,
			"MQTT_PASSWORD":  &c.MQTTPassword,
			"JOURNAL_PATH":   &c.JournalPath,
			"LOG_LEVEL":      &c.LogLevel,
		} {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		for key, dst := range map[string]*bool{
			"STRICT_TEXT_MODE":          &c.StrictTextMode,
			"STRICT_SUBMIT":             &c.StrictSubmit,
			"STOP_ON_INVALID_RECIPIENT": &c.StopOnInvalidRecipient,
			"SIMULATE":                  &c.Simulate,
		} {
			if v := os.Getenv(key); v != "" {
				if b, err := strconv.ParseBool(v); err == nil {
					*dst = b
				}
			}
		}

		return nil
	}
}

// RegisterFlags defines the command-line flags read by WithFlags.
func RegisterFlags(fSet *flag.FlagSet) {
	fSet.String("serial-port", "", "Serial port of the modem (empty scans all ports)")
	fSet.Int("baud-rate", 19200, "Baud rate for serial communication")
	fSet.String("country-code", "+353", "Country code prepended to destination numbers")
	fSet.String("smtp-address", "localhost:25", "Address the SMTP listener accepts mail on")
	fSet.String("smtp-domain", "localhost", "Domain announced by the SMTP listener")
	fSet.String("bind-address", "", "Bind address for the HTTP server (empty disables HTTP)")
	fSet.String("http-token", "", "Bearer token required by the HTTP server")
	fSet.String("mqtt-broker", "", "MQTT broker URL (empty disables MQTT)")
	fSet.String("mqtt-topic", "sms/send", "MQTT topic to receive SMS requests on")
	fSet.String("mqtt-client-id", "email2sms", "MQTT client ID")
	fSet.String("journal-path", "", "SQLite database recording send attempts (empty disables the journal)")
	fSet.String("log-level", "info", "Log level (debug, info, warn, error)")
	fSet.Bool("strict-text-mode", false, "Exit if the modem refuses text mode")
	fSet.Bool("strict-submit", false, "Require the modem to confirm every SMS body")
	fSet.Bool("stop-on-invalid-recipient", false, "Skip the remaining recipients of a mail after an invalid one")
	fSet.Bool("simulate", false, "Use a simulated modem")
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "country-code":
				c.CountryCode = f.Value.String()
			case "smtp-address":
				c.SMTPAddress = f.Value.String()
			case "smtp-domain":
				c.SMTPDomain = f.Value.String()
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "http-token":
				c.HTTPToken = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-topic":
				c.MQTTTopic = f.Value.String()
			case "mqtt-client-id":
				c.MQTTClientID = f.Value.String()
			case "journal-path":
				c.JournalPath = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "strict-text-mode":
				c.StrictTextMode = isTrue(f)
			case "strict-submit":
				c.StrictSubmit = isTrue(f)
			case "stop-on-invalid-recipient":
				c.StopOnInvalidRecipient = isTrue(f)
			case "simulate":
				c.Simulate = isTrue(f)
			}
		})
		return nil
	}
}

func isTrue(f *flag.Flag) bool {
	b, _ := strconv.ParseBool(f.Value.String())
	return b
}
