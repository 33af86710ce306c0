// Package bridge turns received e-mail into text messages, one per valid
// envelope recipient.
package bridge

//go:generate go tool mockgen -destination=mock_sender.go -package=bridge . Sender,Recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"i4.energy/across/email2sms/mailmsg"
)

// RecipientDigits is the length of a valid local destination number.
const RecipientDigits = 10

// ErrInvalidRecipient is returned for a destination that is not exactly
// RecipientDigits ASCII digits.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Sender submits one text message. *modem.Modem implements it.
type Sender interface {
	SendSMS(ctx context.Context, destination, message string) error
}

// Recorder stores the outcome of a send attempt. sendErr is nil for a
// message the modem accepted.
type Recorder interface {
	Record(ctx context.Context, destination string, length int, sendErr error) error
}

// Bridge dispatches messages to a Sender.
type Bridge struct {
	Sender Sender
	// Recorder is optional.
	Recorder Recorder
	Logger   *slog.Logger
	// StopOnInvalidRecipient abandons the remaining recipients of a message
	// at the first invalid one. By default only that recipient is skipped.
	StopOnInvalidRecipient bool
}

// Report lists what happened to each recipient of a message.
type Report struct {
	Sent    []string
	Failed  []string
	Invalid []string
	// Abandoned are the recipients never looked at because
	// StopOnInvalidRecipient took effect.
	Abandoned []string
}

// ValidRecipient reports whether s consists of exactly RecipientDigits
// ASCII digits.
func ValidRecipient(s string) bool {
	if len(s) != RecipientDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatText builds the SMS text for msg.
func FormatText(msg *mailmsg.Message) string {
	return fmt.Sprintf("%s %s:\n%s", msg.From, msg.Subject, msg.Body)
}

// Deliver sends msg to the local part of every envelope recipient. Each
// recipient gets its own SendSMS call, so messages of concurrent deliveries
// may interleave but never split.
//
// The returned error joins every invalid recipient and send failure; the
// Report says which recipients were reached.
func (b *Bridge) Deliver(ctx context.Context, msg *mailmsg.Message) (Report, error) {
	var report Report
	var errs []error

	text := FormatText(msg)
	for i, rcpt := range msg.Recipients {
		number := mailmsg.LocalPart(rcpt)
		if !ValidRecipient(number) {
			b.logger().Warn("Recipient is not a 10-digit number", "recipient", rcpt)
			report.Invalid = append(report.Invalid, rcpt)
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidRecipient, rcpt))
			if b.StopOnInvalidRecipient {
				report.Abandoned = append(report.Abandoned, msg.Recipients[i+1:]...)
				break
			}
			continue
		}

		if err := b.send(ctx, number, text); err != nil {
			report.Failed = append(report.Failed, number)
			errs = append(errs, err)
			continue
		}
		report.Sent = append(report.Sent, number)
	}

	return report, errors.Join(errs...)
}

// SendOne validates to and sends text to it.
func (b *Bridge) SendOne(ctx context.Context, to, text string) error {
	if !ValidRecipient(to) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}
	return b.send(ctx, to, text)
}

func (b *Bridge) send(ctx context.Context, number, text string) error {
	b.logger().Debug("Recipient", "number", number)

	sendErr := b.Sender.SendSMS(ctx, number, text)
	if sendErr != nil {
		b.logger().Error("Failed to send SMS", "to", number, "error", sendErr)
		sendErr = fmt.Errorf("send to %s: %w", number, sendErr)
	} else {
		b.logger().Info("SMS sent", "to", number, "message_length", len(text))
	}

	if b.Recorder != nil {
		if err := b.Recorder.Record(ctx, number, len(text), sendErr); err != nil {
			b.logger().Warn("Failed to record SMS", "to", number, "error", err)
		}
	}
	return sendErr
}

func (b *Bridge) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}
