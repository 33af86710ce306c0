package at

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// LineReader reads modem output one byte at a time and assembles it into
// lines. It never reads ahead, so closing the underlying port after a
// terminator line discards nothing the caller has not seen.
//
// A read that returns zero bytes without an error means the port's read
// timeout elapsed. LineReader reports that as the end of the reply rather
// than as an error, because some commands produce no final result code
// within the allotted window. io.EOF is treated the same way.
type LineReader struct {
	r   io.Reader
	buf [1]byte
}

// NewLineReader returns a LineReader reading from r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r}
}

// ReadLine accumulates bytes until a line feed. The returned line has its
// trailing carriage returns removed. complete is false when the read timed
// out before a line feed arrived; line then holds whatever partial content
// was received.
func (lr *LineReader) ReadLine() (line string, complete bool, err error) {
	var sb strings.Builder
	for {
		n, err := lr.r.Read(lr.buf[:])
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return sb.String(), false, nil
			}
			return sb.String(), false, err
		}
		if lr.buf[0] == '\n' {
			return strings.TrimRight(sb.String(), CR), true, nil
		}
		sb.WriteByte(lr.buf[0])
	}
}

// Classify identifies the nature of a completed modem line.
func Classify(line string) ResponseType {
	switch line {
	case Prompt:
		return TypePrompt
	case OK, ERROR:
		return TypeFinal
	case UrcCall:
		return TypeURC
	}
	if strings.HasPrefix(line, UrcNewMsg) {
		return TypeURC
	}
	return TypeData
}

// IsTerminator reports whether line ends a reply: OK, ERROR or the SMS
// input prompt.
func IsTerminator(line string) bool {
	switch Classify(line) {
	case TypeFinal, TypePrompt:
		return true
	}
	return false
}

// SplitCommands frames the bytes a host writes to a modem into commands. It
// uses the signature of bufio.SplitFunc so it can be used with bufio.Scanner.
//
// Commands end with a carriage return, which is not part of the token. An
// SMS body ends with Ctrl-Z followed by a carriage return; the Ctrl-Z is
// kept. A lone Esc aborts an envelope and is returned as its own token.
func SplitCommands(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, CR+Esc); i >= 0 {
		if data[i] == Esc[0] {
			return i + 1, data[:i+1], nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = SplitCommands
