// Package system interprets gateway control opcodes.
//
// Machine is the first stop for every decoded envelope. Hello starts the
// heartbeat and answers with Identify or Resume, depending on the configured
// Strategy and whether a session was captured. Heartbeat requests are echoed
// with the last sequence, acks clear the liveness flag, Reconnect and
// InvalidSession come back as the ErrReconnect and ErrInvalidSession signals,
// and READY captures the session and asks for command reconciliation. Other
// dispatch events are handed to a DispatchRouter.
package system
