// Package wire implements the gateway envelope codec and payload models.
//
// # Overview
//
// Every gateway message is a JSON object:
//
//	{"op": 0, "s": 42, "t": "MESSAGE_CREATE", "d": {...}}
//
// Decode parses the header (op, s, t) and keeps "d" as raw JSON so that each
// handler decodes only the payload type it needs with DecodeData. Unknown
// opcodes decode successfully as OpUnknown; malformed JSON and envelopes with
// no opcode return a *DecodeError.
//
// # Enumerations
//
// Opcode, Event and InteractionType are closed sets. Callers switch over them
// and fall through to a no-op for the Unknown members.
//
// # Commands
//
// Command and CommandOption describe the application command tree.
// CommandsEqual compares two trees structurally while ignoring order, so a
// remote listing that differs only by permutation is not re-registered.
package wire
