package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/emersion/go-smtp"

	"i4.energy/across/email2sms/bridge"
	"i4.energy/across/email2sms/mailmsg"
)

// Deliverer sends a parsed mail to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, msg *mailmsg.Message) (bridge.Report, error)
}

// MailBackend implements smtp.Backend. Every accepted mail is handed to
// the Deliverer; the modem's outcome does not affect the SMTP reply.
type MailBackend struct {
	Logger    *slog.Logger
	Deliverer Deliverer
	// MaxMessageBytes bounds the DATA read. Zero means no limit.
	MaxMessageBytes int64
	// BaseContext returns the parent of every delivery context. Deliveries
	// are cancelled when it is done. Nil means context.Background.
	BaseContext func() context.Context
}

// smtpTimeout bounds the connection I/O and the delivery of one message.
const smtpTimeout = 60 * time.Second

func (b *MailBackend) deliveryContext() (context.Context, context.CancelFunc) {
	ctx := context.Background()
	if b.BaseContext != nil {
		ctx = b.BaseContext()
	}
	return context.WithTimeout(ctx, smtpTimeout)
}

// NewSMTPServer returns an SMTP server for backend listening on addr.
func NewSMTPServer(backend *MailBackend, addr, domain string) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = addr
	s.Domain = domain
	s.ReadTimeout = smtpTimeout
	s.WriteTimeout = smtpTimeout
	s.MaxMessageBytes = backend.MaxMessageBytes
	s.MaxRecipients = 50
	return s
}

// NewSession is called by the go-smtp server for every new client connection.
func (b *MailBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return b.newSession(c.Conn().RemoteAddr().String()), nil
}

func (b *MailBackend) newSession(peer string) *MailSession {
	return &MailSession{
		backend: b,
		logger:  b.Logger.With("peer", peer),
	}
}

// MailSession holds the envelope of one SMTP transaction.
type MailSession struct {
	backend *MailBackend
	logger  *slog.Logger

	from  string
	rcpts []string
}

func (s *MailSession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *MailSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *MailSession) Data(r io.Reader) error {
	var data bytes.Buffer
	if _, err := io.Copy(&data, r); err != nil {
		s.logger.Error("Error reading DATA", "error", err)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 0},
			Message:      "Error reading message data",
		}
	}

	s.logger.Info("Receiving message",
		"mail_from", s.from,
		"rcpt_to", s.rcpts,
		"message_length", data.Len(),
	)

	msg, err := mailmsg.Parse(&data, s.rcpts)
	if err != nil {
		s.logger.Error("Failed to parse message", "error", err)
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	ctx, cancel := s.backend.deliveryContext()
	defer cancel()

	report, err := s.backend.Deliverer.Deliver(ctx, msg)
	if err != nil {
		s.logger.Warn("Message not delivered to every recipient",
			"sent", report.Sent,
			"failed", report.Failed,
			"invalid", report.Invalid,
			"abandoned", report.Abandoned,
			"error", err,
		)
		return nil
	}
	s.logger.Info("Message delivered", "sent", report.Sent)
	return nil
}

func (s *MailSession) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *MailSession) Logout() error {
	return nil
}

func isServerClosed(err error) bool {
	return err == nil || errors.Is(err, smtp.ErrServerClosed)
}
