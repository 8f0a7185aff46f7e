// ABOUTME: Closed enumerations for gateway opcodes, dispatch event names and interaction types
// ABOUTME: Unknown wire values map to explicit fallback members instead of failing

package wire

import "strings"

// Opcode classifies the control purpose of an envelope.
type Opcode int

const (
	OpUnknown        Opcode = -1
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatAck   Opcode = 11
)

// ParseOpcode maps a raw wire integer to a known opcode, or OpUnknown.
func ParseOpcode(raw int) Opcode {
	switch op := Opcode(raw); op {
	case OpDispatch, OpHeartbeat, OpIdentify, OpResume, OpReconnect,
		OpInvalidSession, OpHello, OpHeartbeatAck:
		return op
	default:
		return OpUnknown
	}
}

func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpInvalidSession:
		return "invalid_session"
	case OpHello:
		return "hello"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	default:
		return "unknown"
	}
}

// Event is a named dispatch event (opcode 0).
type Event int

const (
	EventUnknown Event = iota
	EventReady
	EventResumed
	EventMessageCreate
	EventInteractionCreate
)

// ParseEvent matches a dispatch event name case-insensitively.
func ParseEvent(name string) Event {
	switch strings.ToUpper(name) {
	case "READY":
		return EventReady
	case "RESUMED":
		return EventResumed
	case "MESSAGE_CREATE":
		return EventMessageCreate
	case "INTERACTION_CREATE":
		return EventInteractionCreate
	default:
		return EventUnknown
	}
}

func (e Event) String() string {
	switch e {
	case EventReady:
		return "READY"
	case EventResumed:
		return "RESUMED"
	case EventMessageCreate:
		return "MESSAGE_CREATE"
	case EventInteractionCreate:
		return "INTERACTION_CREATE"
	default:
		return "UNKNOWN"
	}
}

// InteractionType is the kind of user-triggered interaction.
type InteractionType int

const (
	InteractionPing         InteractionType = 1
	InteractionCommand      InteractionType = 2
	InteractionComponent    InteractionType = 3
	InteractionAutocomplete InteractionType = 4
	InteractionModalSubmit  InteractionType = 5
)

// CallbackType is the interaction response callback kind.
type CallbackType int

const (
	CallbackPong                   CallbackType = 1
	CallbackChannelMessage         CallbackType = 4
	CallbackDeferredChannelMessage CallbackType = 5
	CallbackDeferredUpdateMessage  CallbackType = 6
	CallbackUpdateMessage          CallbackType = 7
	CallbackAutocompleteResult     CallbackType = 8
	CallbackModal                  CallbackType = 9
)

// Message flags used on interaction replies.
const (
	FlagSuppressEmbeds = 1 << 2
	FlagEphemeral      = 1 << 6
)

// Gateway intents the bot identifies with.
const (
	IntentGuilds         = 1 << 0
	IntentGuildMessages  = 1 << 9
	IntentDirectMessages = 1 << 12
	IntentMessageContent = 1 << 15
)
