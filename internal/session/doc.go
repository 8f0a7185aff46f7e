// Package session holds the mutable state of one gateway session.
//
// State is created empty at startup, populated on Ready (session id, resume
// URL), updated by every frame that carries a sequence number, and cleared when
// the gateway declares the session invalid. The heartbeat scheduler reads the
// sequence and drives the ack-pending liveness flag through BeginHeartbeat and
// Ack; the reconnect path reads ResumeData. All access goes through a single
// mutex so no caller ever sees half-updated resume data.
package session
