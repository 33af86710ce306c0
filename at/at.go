package at

const (
	// Terminal Control
	CR     = "\r"
	LF     = "\n"
	Prompt = "> "
	CtrlZ  = "\x1a" // submits an SMS body
	Esc    = "\x1b" // aborts an open SMS envelope

	// Response Codes
	OK    = "OK"
	ERROR = "ERROR"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg = "+CMTI:"
	UrcCall   = "RING"
)

// Commands used by the gateway.
const (
	CmdAt          = "AT"
	CmdSimPresence = "AT^SCKS?"
	CmdSimStatus   = "AT+CPIN?"
	CmdSetTextMode = "AT+CMGF=1"
	CmdSendSMS     = `AT+CMGS="%s"`
)

// Exact replies expected by the initializer. The blank line is the modem's
// own spacing between the information response and the final result code.
const (
	ReplySimPresent = "^SCKS: 0,1\n\nOK"
	ReplySimReady   = "+CPIN: READY\n\nOK"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CPIN: ...)
	TypePrompt                     // SMS input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	}
	return "unknown"
}
