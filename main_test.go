package main

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer busy.Close()

	tests := []struct {
		name    string
		option  ConfigOption
		wantErr bool
	}{
		{
			name:   "Simulated modem",
			option: func(c *Config) error { return nil },
		},
		{
			name: "Simulated modem on configured port",
			option: func(c *Config) error {
				c.SerialPort = "/dev/ttyUSB7"
				return nil
			},
		},
		{
			name: "Unreachable MQTT broker keeps the gateway up",
			option: func(c *Config) error {
				c.MQTTBroker = "tcp://127.0.0.1:1"
				return nil
			},
		},
		{
			name: "SMTP address in use",
			option: func(c *Config) error {
				c.SMTPAddress = busy.Addr().String()
				return nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(WithDefaults(), func(c *Config) error {
				c.Simulate = true
				c.SMTPAddress = "127.0.0.1:0"
				return nil
			}, tt.option)
			if err != nil {
				t.Fatalf("unexpected error from LoadConfig(): %v", err)
			}

			start := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			err = run(ctx, config, slog.New(slog.DiscardHandler))
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
				t.Errorf("gateway stopped after %v, before its context was done", elapsed)
			}
		})
	}
}
