package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"i4.energy/across/email2sms/at"
)

// Exchange is a single AT command together with the reply lines it
// produced. It lives for one call to the session engine.
type Exchange struct {
	Command string
	Timeout time.Duration
	// Lines holds every line received, including the terminator line or the
	// partial line pending when the read timed out.
	Lines []string
}

// Raw joins the received lines with newlines.
func (e *Exchange) Raw() string {
	return strings.Join(e.Lines, at.LF)
}

// Reply returns the raw reply with the echoed command removed.
func (e *Exchange) Reply() string {
	return StripEcho(e.Command, e.Raw())
}

// StripEcho removes, at most once, a leading echo of command from raw. A
// trailing Ctrl-Z is not echoed by the device and is ignored.
func StripEcho(command, raw string) string {
	return strings.TrimPrefix(raw, strings.TrimRight(command, at.CtrlZ)+at.LF)
}

// exchange opens portName, writes ex.Command and reads until a terminator
// line (OK, ERROR or the SMS prompt) or until a read times out with no data.
// The port is closed before returning; nothing is kept open between calls.
//
// Errors are only returned when the device could not be used at all. A
// reply of ERROR or an empty reply is not an error here; callers compare the
// reply with what they expect.
func exchange(ctx context.Context, dialer Dialer, portName string, ex *Exchange, logger *slog.Logger) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t, err := dialer.Dial(ctx, portName)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		logger.Error("Unable to open serial port", "port", portName, "error", err)
		return "", err
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Debug("Failed to close serial port", "port", portName, "error", err)
		}
	}()

	if err := t.SetReadTimeout(ex.Timeout); err != nil {
		return "", fmt.Errorf("set read timeout: %w: %w", ErrDeviceUnavailable, err)
	}

	logger.Debug("Sending", "command", ex.Command)
	if _, err := t.Write([]byte(ex.Command + at.CR)); err != nil {
		return "", fmt.Errorf("write command %q: %w", ex.Command, err)
	}

	lr := at.NewLineReader(t)
	ex.Lines = ex.Lines[:0]
	for {
		line, complete, err := lr.ReadLine()
		if err != nil {
			return "", fmt.Errorf("read reply to %q: %w", ex.Command, err)
		}
		ex.Lines = append(ex.Lines, line)
		if !complete {
			logger.Debug("No bytes in serial buffer", "command", ex.Command)
			break
		}
		if at.IsTerminator(line) {
			break
		}
		if at.Classify(line) == at.TypeURC {
			logger.Debug("Unsolicited result code during exchange", "line", line)
		}
	}

	reply := ex.Reply()
	logger.Debug("Received", "command", ex.Command, "reply", reply)
	return reply, nil
}
