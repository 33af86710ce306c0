package modem_test

import (
	"fmt"
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/email2sms/modem"
)

const testPort = "/dev/ttyUSB0"

// MockSequenceBuilder collects the expected calls of consecutive AT
// exchanges. Each exchange opens the port, sets the read timeout, writes the
// command, reads the reply and closes the port again.
type MockSequenceBuilder struct {
	dialer    *modem.MockDialer
	transport *modem.MockTransport
	port      string
	calls     []any
}

func NewMockSequence(dialer *modem.MockDialer, transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		dialer:    dialer,
		transport: transport,
		port:      testPort,
		calls:     []any{},
	}
}

// OnPort makes the following exchanges expect port.
func (b *MockSequenceBuilder) OnPort(port string) *MockSequenceBuilder {
	b.port = port
	return b
}

// Exchange expects cmd to be written and answers with the raw reply bytes.
func (b *MockSequenceBuilder) Exchange(cmd string, timeout any, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.dialer.EXPECT().Dial(gomock.Any(), b.port).Return(b.transport, nil),
		b.transport.EXPECT().SetReadTimeout(timeout).Return(nil),
		b.transport.EXPECT().Write([]byte(cmd+"\r")).Return(len(cmd)+1, nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(replyWith(reply)).AnyTimes(),
		b.transport.EXPECT().Close().Return(nil),
	)
	return b
}

// Unreachable expects a dial of the current port that fails.
func (b *MockSequenceBuilder) Unreachable() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.dialer.EXPECT().Dial(gomock.Any(), b.port).Return(nil, fmt.Errorf("open %s: %w", b.port, modem.ErrDeviceUnavailable)),
	)
	return b
}

func (b *MockSequenceBuilder) SimPresent() *MockSequenceBuilder {
	return b.Exchange("AT^SCKS?", 5*time.Second, "AT^SCKS?\r\r\n^SCKS: 0,1\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimMissing() *MockSequenceBuilder {
	return b.Exchange("AT^SCKS?", 5*time.Second, "AT^SCKS?\r\r\n^SCKS: 0,0\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?", time.Second, "AT+CPIN?\r\r\n+CPIN: READY\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?", time.Second, "AT+CPIN?\r\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SMSTextMode() *MockSequenceBuilder {
	return b.Exchange("AT+CMGF=1", time.Second, "AT+CMGF=1\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SMSTextModeRefused() *MockSequenceBuilder {
	return b.Exchange("AT+CMGF=1", time.Second, "AT+CMGF=1\r\r\nERROR\r\n")
}

// Init expects the full, successful initialization sequence.
func (b *MockSequenceBuilder) Init() *MockSequenceBuilder {
	return b.SimPresent().SimReady().SMSTextMode()
}

func (b *MockSequenceBuilder) Envelope(number string) *MockSequenceBuilder {
	cmd := `AT+CMGS="` + number + `"`
	return b.Exchange(cmd, time.Second, cmd+"\r\r\n> ")
}

func (b *MockSequenceBuilder) Body(body, reply string) *MockSequenceBuilder {
	return b.Exchange(body+"\x1a", 15*time.Second, body+"\r"+reply)
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// replyWith serves data to successive reads, then behaves like a serial
// port whose read timeout elapsed.
func replyWith(data string) func([]byte) (int, error) {
	return func(p []byte) (int, error) {
		if data == "" {
			return 0, nil
		}
		n := copy(p, data)
		data = data[n:]
		return n, nil
	}
}
