package modem

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"i4.energy/across/email2sms/at"
)

// Simulator is a scripted modem that needs no hardware. It implements both
// Dialer and PortLister, echoes every command the way a real device does
// and answers from a table of replies. It records every command written
// to it, which makes it useful for dry runs and for tests.
type Simulator struct {
	// Latency is slept after each write, before the reply becomes readable.
	Latency time.Duration

	mu       sync.Mutex
	ports    []string
	rules    []simRule
	commands []string
	open     int
	overlaps int
	msgRef   int
	// inBody is set after a prompt until the body is submitted or aborted.
	inBody bool
}

type simRule struct {
	match func(cmd string) bool
	reply func() string
}

// NewSimulator returns a Simulator exposing the given port names. It
// answers the commands the gateway uses like a modem with a ready SIM.
func NewSimulator(ports ...string) *Simulator {
	if len(ports) == 0 {
		ports = []string{"/dev/ttySIM0"}
	}
	s := &Simulator{ports: ports}
	s.On(at.CmdAt, "\r\nOK\r\n")
	s.On(at.CmdSimPresence, "\r\n^SCKS: 0,1\r\n\r\nOK\r\n")
	s.On(at.CmdSimStatus, "\r\n+CPIN: READY\r\n\r\nOK\r\n")
	s.On(at.CmdSetTextMode, "\r\nOK\r\n")
	s.OnPrefix("AT+CMGS=", "\r\n> ")
	s.addRule(isBody, func() string {
		s.msgRef++
		return fmt.Sprintf("\r\n+CMGS: %d\r\n\r\nOK\r\n", s.msgRef)
	})
	return s
}

// On sets the raw bytes sent after the echo of cmd. Later rules take
// precedence over earlier ones.
func (s *Simulator) On(cmd, reply string) {
	s.addRule(func(c string) bool { return c == cmd }, constant(reply))
}

// OnPrefix sets the reply for every command starting with prefix.
func (s *Simulator) OnPrefix(prefix, reply string) {
	s.addRule(func(c string) bool { return strings.HasPrefix(c, prefix) }, constant(reply))
}

// OnBody sets the reply to a submitted SMS body. By default the simulator
// answers with an incrementing +CMGS reference and OK.
func (s *Simulator) OnBody(reply string) {
	s.addRule(isBody, constant(reply))
}

func (s *Simulator) addRule(match func(string) bool, reply func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]simRule{{match: match, reply: reply}}, s.rules...)
}

func isBody(cmd string) bool {
	return strings.HasSuffix(cmd, at.CtrlZ)
}

func constant(reply string) func() string {
	return func() string { return reply }
}

// Commands returns every command written so far, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Overlaps reports how many times a port was opened while another
// connection was still open.
func (s *Simulator) Overlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}

// ListPorts implements PortLister.
func (s *Simulator) ListPorts() ([]string, error) {
	return append([]string(nil), s.ports...), nil
}

// Dial implements Dialer.
func (s *Simulator) Dial(ctx context.Context, portName string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known := false
	for _, p := range s.ports {
		known = known || p == portName
	}
	if !known {
		return nil, fmt.Errorf("open %s: %w", portName, ErrDeviceUnavailable)
	}

	if s.open > 0 {
		s.overlaps++
	}
	s.open++
	return &simConn{sim: s}, nil
}

func (s *Simulator) respond(cmd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd == "" {
		return ""
	}
	s.commands = append(s.commands, cmd)
	s.inBody = false
	if strings.HasSuffix(cmd, at.Esc) {
		return ""
	}

	echo := strings.TrimRight(cmd, at.CtrlZ) + at.CR
	for _, r := range s.rules {
		if r.match(cmd) {
			reply := r.reply()
			s.inBody = strings.HasSuffix(reply, at.Prompt)
			return echo + reply
		}
	}
	return echo + "\r\nERROR\r\n"
}

func (s *Simulator) awaitingBody() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inBody
}

// nextCommand frames the next command in data. While a body is expected
// carriage returns are part of the text and only Ctrl-Z or Esc end it.
func (s *Simulator) nextCommand(data []byte) (advance int, token []byte) {
	if !s.awaitingBody() {
		advance, token, _ = at.SplitCommands(data, false)
		return advance, token
	}

	i := bytes.IndexAny(data, at.CtrlZ+at.Esc)
	if i < 0 {
		return 0, nil
	}
	advance = i + 1
	if advance < len(data) && data[advance] == at.CR[0] {
		advance++
	}
	return advance, data[:i+1]
}

// simConn is one open connection to a Simulator.
type simConn struct {
	sim     *Simulator
	mu      sync.Mutex
	pending []byte
	output  []byte
	closed  bool
}

func (c *simConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrAlreadyClosed
	}
	c.pending = append(c.pending, p...)
	c.mu.Unlock()

	if c.sim.Latency > 0 {
		time.Sleep(c.sim.Latency)
	}
	for {
		c.mu.Lock()
		advance, token := c.sim.nextCommand(c.pending)
		c.pending = c.pending[advance:]
		c.mu.Unlock()
		if advance == 0 {
			break
		}

		reply := c.sim.respond(string(token))
		c.mu.Lock()
		c.output = append(c.output, reply...)
		c.mu.Unlock()
	}
	return len(p), nil
}

// Read returns buffered reply bytes, or zero bytes once the reply is
// exhausted, like a serial port whose read timeout elapsed.
func (c *simConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrAlreadyClosed
	}
	n := copy(p, c.output)
	c.output = c.output[n:]
	return n, nil
}

func (c *simConn) SetReadTimeout(time.Duration) error {
	return nil
}

func (c *simConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.sim.mu.Lock()
	c.sim.open--
	c.sim.mu.Unlock()
	return nil
}
