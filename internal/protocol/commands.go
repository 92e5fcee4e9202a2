// Package protocol implements the control-channel command protocol: it
// decodes command frames from the companion app and drives the log store,
// the measurement broker and the recording lifecycle accordingly.
package protocol

// Command identifies a control-channel command, the first byte of a command
// frame [cmd:1][reference:1][payload...].
type Command byte

const (
	CmdHello       Command = 0
	CmdSubscribe   Command = 1
	CmdUnsubscribe Command = 2
	CmdFetchLog    Command = 3
	CmdInitOffline Command = 4
	CmdGetLogCount Command = 5
	CmdStopLogging Command = 6
	CmdFetchAll    Command = 7
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "HELLO"
	case CmdSubscribe:
		return "SUBSCRIBE"
	case CmdUnsubscribe:
		return "UNSUBSCRIBE"
	case CmdFetchLog:
		return "FETCH_LOG"
	case CmdInitOffline:
		return "INIT_OFFLINE"
	case CmdGetLogCount:
		return "GET_LOG_COUNT"
	case CmdStopLogging:
		return "STOP_LOGGING"
	case CmdFetchAll:
		return "FETCH_ALL"
	default:
		return "UNKNOWN"
	}
}

// Single-byte success statuses.
const (
	StatusOK      byte = 0x00
	StatusCreated byte = 200
)

// Error statuses do not fit one byte and are sent as two bytes big-endian.
var (
	statusBadRequest          = []byte{0x01, 0x90} // 400
	statusTooManyRequests     = []byte{0x01, 0xAD} // 429
	statusInternalError       = []byte{0x01, 0xF4} // 500
	statusInsufficientStorage = []byte{0x01, 0xFB} // 507
)

// helloReply is the fixed HELLO acknowledgement payload.
var helloReply = []byte{'P', 'O', 'W', 'E', 'R'}
