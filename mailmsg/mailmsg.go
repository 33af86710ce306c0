// Package mailmsg extracts the parts of an e-mail the gateway turns into a
// text message.
package mailmsg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is what the gateway keeps of a received e-mail.
type Message struct {
	// From is the From header as written by the sender, with encoded words
	// decoded.
	From    string
	Subject string
	// Body is the decoded content of the first text/plain part. It is empty
	// when the message has none.
	Body string
	// Recipients are the envelope recipients, not the To header.
	Recipients []string
}

// ErrMalformed is returned when the data is not a parseable message.
var ErrMalformed = errors.New("malformed message")

// Parse reads an RFC 5322 message from r. Multipart messages are walked
// depth first and the first text/plain leaf is used as the body, whatever
// its disposition; other parts are skipped. Unknown charsets are tolerated and the raw bytes are kept.
func Parse(r io.Reader, recipients []string) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	defer mr.Close()

	msg := &Message{
		From:       headerText(mr.Header, "From"),
		Subject:    headerText(mr.Header, "Subject"),
		Recipients: recipients,
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		if !isPlainText(p.Header) {
			continue
		}

		body, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("read text part: %w", err)
		}
		msg.Body = string(body)
		break
	}

	return msg, nil
}

// headerText decodes encoded words, falling back to the raw value.
func headerText(h mail.Header, key string) string {
	v, err := h.Text(key)
	if err != nil {
		return h.Get(key)
	}
	return v
}

// isPlainText reports whether the part is text/plain, inline or attached.
// A part without a Content-Type header defaults to text/plain.
func isPlainText(ph mail.PartHeader) bool {
	var h *message.Header
	switch v := ph.(type) {
	case *mail.InlineHeader:
		h = &v.Header
	case *mail.AttachmentHeader:
		h = &v.Header
	default:
		return false
	}
	if h.Get("Content-Type") == "" {
		return true
	}
	t, _, err := h.ContentType()
	return err == nil && t == "text/plain"
}

// LocalPart returns the part of addr before the first "@". Angle brackets
// around the address are removed.
func LocalPart(addr string) string {
	addr = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(addr), "<"), ">")
	local, _, _ := strings.Cut(addr, "@")
	return local
}
