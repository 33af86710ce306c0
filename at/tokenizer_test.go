package at_test

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"i4.energy/across/email2sms/at"
)

// timeoutReader hands out its data and then behaves like a serial port whose
// read timeout elapsed: zero bytes and no error.
type timeoutReader struct {
	data  string
	reads int
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	r.reads++
	if r.data == "" {
		return 0, nil
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestLineReader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
		partial  string
	}{
		{
			name:     "Echo and OK",
			input:    "AT\r\r\nOK\r\n",
			expected: []string{"AT", "OK"},
		},
		{
			name:     "Multi-line reply with blank line",
			input:    "^SCKS: 0,1\r\n\r\nOK\r\n",
			expected: []string{"^SCKS: 0,1", "", "OK"},
		},
		{
			name:     "Prompt without line feed",
			input:    "AT+CMGS=\"+353861234567\"\r\r\n> ",
			expected: []string{`AT+CMGS="+353861234567"`},
			partial:  "> ",
		},
		{
			name:     "Bare line feeds",
			input:    "+CPIN: READY\n\nOK\n",
			expected: []string{"+CPIN: READY", "", "OK"},
		},
		{
			name:    "Nothing at all",
			input:   "",
			partial: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := at.NewLineReader(&timeoutReader{data: tt.input})

			var lines []string
			for {
				line, complete, err := lr.ReadLine()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !complete {
					if line != tt.partial {
						t.Errorf("partial line: expected %q, got %q", tt.partial, line)
					}
					break
				}
				lines = append(lines, line)
			}

			if len(lines) != len(tt.expected) {
				t.Fatalf("Expected %d lines, got %d.\nExpected: %q\nGot: %q",
					len(tt.expected), len(lines), tt.expected, lines)
			}
			for i, expected := range tt.expected {
				if lines[i] != expected {
					t.Errorf("Line %d: expected %q, got %q", i, expected, lines[i])
				}
			}
		})
	}
}

func TestLineReaderReadsOneByteAtATime(t *testing.T) {
	r := &timeoutReader{data: "OK\r\nleftover"}
	lr := at.NewLineReader(r)

	line, complete, err := lr.ReadLine()
	if err != nil || !complete || line != "OK" {
		t.Fatalf("expected complete OK line, got %q complete=%v err=%v", line, complete, err)
	}
	if r.data != "leftover" {
		t.Errorf("reader consumed past the line feed, remaining %q", r.data)
	}
	if r.reads != 4 {
		t.Errorf("expected 4 single-byte reads, got %d", r.reads)
	}
}

func TestLineReaderTreatsEOFAsTimeout(t *testing.T) {
	lr := at.NewLineReader(strings.NewReader("OK"))

	line, complete, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if complete {
		t.Error("expected incomplete line at EOF")
	}
	if line != "OK" {
		t.Errorf("expected partial %q, got %q", "OK", line)
	}
}

func TestLineReaderPropagatesReadErrors(t *testing.T) {
	lr := at.NewLineReader(failingReader{})

	if _, _, err := lr.ReadLine(); err == nil {
		t.Error("expected read error to be returned")
	}
}

func TestSplitCommands(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Single command",
			input:    "AT\r",
			expected: []string{"AT"},
		},
		{
			name:     "Envelope then body",
			input:    "AT+CMGS=\"+353861234567\"\rhi\x1a\r",
			expected: []string{`AT+CMGS="+353861234567"`, "hi\x1a"},
		},
		{
			name:     "Abort",
			input:    "AT+CMGS=\"+353861234567\"\r\x1b",
			expected: []string{`AT+CMGS="+353861234567"`, "\x1b"},
		},
		{
			name:     "Unterminated at EOF",
			input:    "AT+CPIN?",
			expected: []string{"AT+CPIN?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(at.SplitCommands)

			var tokens []string
			for scanner.Scan() {
				tokens = append(tokens, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				t.Fatalf("Scanner error: %v", err)
			}

			if len(tokens) != len(tt.expected) {
				t.Fatalf("Expected %d tokens, got %d.\nExpected: %q\nGot: %q",
					len(tt.expected), len(tokens), tt.expected, tokens)
			}
			for i, expected := range tt.expected {
				if tokens[i] != expected {
					t.Errorf("Token %d: expected %q, got %q", i, expected, tokens[i])
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected at.ResponseType
	}{
		// Final responses
		{name: "OK response", input: "OK", expected: at.TypeFinal},
		{name: "ERROR response", input: "ERROR", expected: at.TypeFinal},

		// URCs
		{name: "New message URC", input: "+CMTI: \"SM\",1", expected: at.TypeURC},
		{name: "Incoming call URC", input: "RING", expected: at.TypeURC},

		// Data responses
		{name: "Echoed command", input: "AT^SCKS?", expected: at.TypeData},
		{name: "SIM presence", input: "^SCKS: 0,1", expected: at.TypeData},
		{name: "PIN status", input: "+CPIN: READY", expected: at.TypeData},
		{name: "Blank line", input: "", expected: at.TypeData},
		{name: "Prompt without space", input: ">", expected: at.TypeData},
		{name: "OK with trailing space", input: "OK ", expected: at.TypeData},

		// Prompt
		{name: "SMS input prompt", input: "> ", expected: at.TypePrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := at.Classify(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v for input %q", tt.expected, result, tt.input)
			}
		})
	}
}

func TestIsTerminator(t *testing.T) {
	for _, line := range []string{"OK", "ERROR", "> "} {
		if !at.IsTerminator(line) {
			t.Errorf("expected %q to terminate a reply", line)
		}
	}
	for _, line := range []string{"", ">", "+CPIN: READY", "RING", "+CME ERROR: 10"} {
		if at.IsTerminator(line) {
			t.Errorf("expected %q not to terminate a reply", line)
		}
	}
}
