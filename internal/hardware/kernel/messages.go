package kernel

import "github.com/traintastic/traintastic-go/internal/log"

// Message codes shared by every protocol kernel's I/O failure path.
var (
	MsgSocketDisconnected = log.Register(log.Message{Code: "E2001", Severity: log.Critical, Format: "socket disconnected: %v"})
	MsgSocketError        = log.Register(log.Message{Code: "E2002", Severity: log.Critical, Format: "socket error: %v"})
	MsgSerialPortError    = log.Register(log.Message{Code: "E2008", Severity: log.Critical, Format: "serial port error: %v"})
	MsgCANError           = log.Register(log.Message{Code: "E2009", Severity: log.Critical, Format: "CAN bus error: %v"})
	MsgHandshakeFailed    = log.Register(log.Message{Code: "E2011", Severity: log.Critical, Format: "handshake failed: %v"})

	MsgEchoTimeout     = log.Register(log.Message{Code: "W2020", Severity: log.Warning, Format: "echo timeout waiting for %v"})
	MsgResponseTimeout = log.Register(log.Message{Code: "W2021", Severity: log.Warning, Format: "response timeout waiting for %v, retries left %d"})
	MsgFrameDropped    = log.Register(log.Message{Code: "D2022", Severity: log.Debug, Format: "malformed frame dropped: %v"})
	MsgSendQueueFull   = log.Register(log.Message{Code: "W2023", Severity: log.Warning, Format: "send queue full, frame dropped"})
)
