package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttRetryInterval = 10 * time.Second

// MQTTSubscriber sends an SMS for every {to, message} request published on
// its topic.
type MQTTSubscriber struct {
	Logger *slog.Logger
	Sender SMSSender
	Topic  string
}

type mqttRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, m mqtt.Message) {
	var req mqttRequest
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		s.Logger.Warn("Bad MQTT payload", "topic", m.Topic(), "error", err)
		return
	}
	if req.To == "" || req.Message == "" {
		s.Logger.Warn("MQTT request without 'to' or 'message'", "topic", m.Topic())
		return
	}

	if err := s.Sender.SendOne(context.Background(), req.To, req.Message); err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		return
	}
	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
}

// clientOptions subscribes to the topic on every (re)connect, so the
// subscription survives broker restarts.
func (s *MQTTSubscriber) clientOptions(config *Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTTBroker)
	opts.SetClientID(config.MQTTClientID)
	if config.MQTTUsername != "" {
		opts.SetUsername(config.MQTTUsername)
		opts.SetPassword(config.MQTTPassword)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(mqttRetryInterval)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.Logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.Logger.Info("MQTT connected, subscribing", "topic", s.Topic)
		if token := c.Subscribe(s.Topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
			s.Logger.Error("MQTT subscribe failed", "topic", s.Topic, "error", token.Error())
		}
	})
	return opts
}

// Run connects to the broker and stays subscribed until ctx is done. An
// unreachable broker is retried in the background and never stops the
// gateway.
func (s *MQTTSubscriber) Run(ctx context.Context, config *Config) {
	client := mqtt.NewClient(s.clientOptions(config))
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			s.Logger.Error("MQTT connect failed", "broker", config.MQTTBroker, "error", err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	client.Disconnect(500)
}
