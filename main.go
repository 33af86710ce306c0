package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/email2sms/bridge"
	"i4.energy/across/email2sms/journal"
	"i4.energy/across/email2sms/modem"
)

const (
	shutdownTimeout = 30 * time.Second
	maxMessageBytes = 10 << 20
)

func main() {
	RegisterFlags(flag.CommandLine)
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(config.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Error("Email to SMS gateway stopped", "error", err)
		stop()
		os.Exit(1)
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run serves until ctx is done. It only returns an error when the modem or
// one of the listeners cannot be started.
func run(ctx context.Context, config *Config, logger *slog.Logger) error {
	builder := modem.NewConfigBuilder().
		WithPortName(config.SerialPort).
		WithCountryCode(config.CountryCode).
		WithStrictTextMode(config.StrictTextMode).
		WithStrictSubmit(config.StrictSubmit).
		WithLogger(logger.With("component", "modem"))
	if config.Simulate {
		// The simulated modem answers on the configured port name, if any.
		var ports []string
		if config.SerialPort != "" {
			ports = append(ports, config.SerialPort)
		}
		sim := modem.NewSimulator(ports...)
		builder.WithDialer(sim).WithLister(sim)
	} else {
		builder.WithDialer(modem.SerialDialer{
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		})
	}
	modemConfig, err := builder.Build()
	if err != nil {
		return err
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		if modem.IsFatal(err) {
			logger.Error("Fatal modem initialisation error", "error", err)
		}
		return err
	}
	defer m.Close()

	logger.Info("Starting Email to SMS gateway", "port", m.Port().Name)

	b := &bridge.Bridge{
		Sender:                 m,
		Logger:                 logger.With("component", "bridge"),
		StopOnInvalidRecipient: config.StopOnInvalidRecipient,
	}

	var journalReader JournalReader
	if config.JournalPath != "" {
		j, err := journal.Open(config.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		b.Recorder = j
		journalReader = j
	}

	smtpListener, err := net.Listen("tcp", config.SMTPAddress)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	smtpServer := NewSMTPServer(&MailBackend{
		Logger:          logger.With("component", "smtp"),
		Deliverer:       b,
		MaxMessageBytes: maxMessageBytes,
		BaseContext:     func() context.Context { return ctx },
	}, config.SMTPAddress, config.SMTPDomain)
	g.Go(func() error {
		logger.Info("Starting SMTP server", "address", smtpListener.Addr().String())
		if err := smtpServer.Serve(smtpListener); !isServerClosed(err) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Closing SMTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return smtpServer.Shutdown(shutdownCtx)
	})

	if config.BindAddress != "" {
		httpServer := &http.Server{
			Addr: config.BindAddress,
			Handler: &Server{
				Logger:  logger.With("component", "server"),
				Sender:  b,
				Journal: journalReader,
				Token:   config.HTTPToken,
			},
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Closing HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if config.MQTTBroker != "" {
		sub := &MQTTSubscriber{
			Logger: logger.With("component", "mqtt"),
			Sender: b,
			Topic:  config.MQTTTopic,
		}
		g.Go(func() error {
			logger.Info("Starting MQTT subscriber", "broker", config.MQTTBroker, "topic", config.MQTTTopic)
			sub.Run(ctx, config)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("Shut down")
	return err
}
