package modem

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/email2sms/at"
)

// NormalizeNumber turns a national number into international format by
// removing its leading zeros and prepending countryCode.
//
// Only zeros are stripped: "0861234567" and "861234567" both become
// "+353861234567", but a number already carrying a "+" prefix is not left
// alone and ends up with the country code twice.
func NormalizeNumber(countryCode, number string) string {
	return countryCode + strings.TrimLeft(number, "0")
}

// SendSMS sends message to destination in text mode.
//
// The envelope (AT+CMGS) and the body submission run under one acquisition
// of the modem's gate, so no other exchange can slip in between the prompt
// and the body. The gate is released on every return path.
//
// SendSMS fails if the envelope is not answered with the "> " prompt. Unless
// StrictSubmit is set, the outcome of the body submission is not checked:
// the message counts as sent once the body was handed to the modem.
func (m *Modem) SendSMS(ctx context.Context, destination, message string) error {
	number := NormalizeNumber(m.config.CountryCode, destination)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkReady(); err != nil {
		return err
	}

	m.logger.Info("Sending SMS", "to", number, "message_length", len(message))

	reply, err := m.exchange(ctx, m.port, fmt.Sprintf(at.CmdSendSMS, number), m.config.CommandTimeout)
	if err != nil {
		return fmt.Errorf("open SMS envelope: %w", err)
	}
	if reply != at.Prompt {
		m.logger.Error("Cannot initialise SMS", "to", number, "reply", reply)
		if m.config.StrictSubmit {
			if err := m.abort(ctx); err != nil {
				m.logger.Warn("Failed to abort SMS envelope", "error", err)
			}
		}
		return fmt.Errorf("open SMS envelope: %w", unexpected(reply))
	}

	reply, err = m.exchange(ctx, m.port, message+at.CtrlZ, m.config.SubmitTimeout)
	if m.config.StrictSubmit {
		if err != nil {
			return fmt.Errorf("submit SMS body: %w", err)
		}
		if lastLine(reply) != at.OK {
			return fmt.Errorf("submit SMS body: %w", unexpected(reply))
		}
		return nil
	}

	switch {
	case err != nil:
		m.logger.Warn("SMS body submission failed, treating as sent", "to", number, "error", err)
	case lastLine(reply) != at.OK:
		m.logger.Warn("No final OK after SMS body, treating as sent", "to", number, "reply", reply)
	default:
		m.logger.Debug("SMS accepted by modem", "to", number, "reply", reply)
	}
	return nil
}

func lastLine(reply string) string {
	return reply[strings.LastIndex(reply, at.LF)+1:]
}
