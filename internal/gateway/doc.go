// Package gateway runs one gateway session end to end.
//
// # Overview
//
// Gateway wires the session engine together: the websocket transport, the
// system state machine, the dispatch and interaction routers, the command
// registry, the outbound dispatcher and the REST client. Run drives it until
// its context is cancelled.
//
// # Receive Loop
//
// Run is a single goroutine that:
//
//  1. Connects when no socket is open, resuming to the captured resume URL
//     when the session allows it and identifying at the gateway URL
//     otherwise. An empty gateway URL is discovered through GET gateway/bot.
//  2. Receives one complete message and decodes its envelope.
//  3. Records the sequence number, in arrival order.
//  4. Acquires a slot in the processing pool (gateway.thread_factor) and
//     hands the envelope to a processing unit.
//
// Each unit runs the state machine, which may route the frame further, and
// delivers the resulting instruction. Units are tagged with a unit_id in
// every log line.
//
// # Reconnects
//
//	Reconnect opcode        close 4000, resume on the next socket
//	InvalidSession opcode   close 1000, identify on the next socket
//	missed heartbeat acks   close 4000, resume on the next socket
//	socket failure          reconnect with backoff, resume unless the close
//	                        code forbids it
//
// Failed connects and unexpected socket failures back off exponentially with
// jitter (gateway.reconnect_backoff). Deliberate closes reconnect at once.
//
// # Heartbeats
//
// Hello starts the heartbeat scheduler, replacing the previous one. The first
// beat goes out one interval after Hello, through the same write queue as
// every other frame. A beat that finds the previous one unacknowledged counts
// as a miss; gateway.missed_ack_limit misses zombie the connection.
//
// # Shutdown
//
// Cancelling the context stops the receive loop, the heartbeat and all
// units. Run then waits for the units and closes the socket, each bounded by
// gateway.close_timeout.
package gateway
