// ABOUTME: Envelope codec for the gateway wire format {op, s, t, d}
// ABOUTME: Decodes the header eagerly and leaves the payload raw for typed decoding later

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingOpcode indicates an envelope without an "op" field.
var ErrMissingOpcode = errors.New("envelope has no opcode")

// DecodeError reports a malformed or unexpected envelope or payload.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Envelope is one inbound gateway frame. Data is left undecoded.
type Envelope struct {
	Op    Opcode
	RawOp int
	Seq   *int64
	Event string
	Data  json.RawMessage
}

// DispatchEvent returns the named event for dispatch envelopes, EventUnknown otherwise.
func (e *Envelope) DispatchEvent() Event {
	if e.Op != OpDispatch {
		return EventUnknown
	}
	return ParseEvent(e.Event)
}

type rawEnvelope struct {
	Op    *int            `json:"op"`
	Seq   *int64          `json:"s"`
	Event *string         `json:"t"`
	Data  json.RawMessage `json:"d"`
}

// Decode parses the envelope header of a complete gateway message.
func Decode(data []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{What: "envelope", Err: err}
	}
	if raw.Op == nil {
		return nil, &DecodeError{What: "envelope", Err: ErrMissingOpcode}
	}

	env := &Envelope{
		Op:    ParseOpcode(*raw.Op),
		RawOp: *raw.Op,
		Seq:   raw.Seq,
		Data:  raw.Data,
	}
	if raw.Event != nil {
		env.Event = *raw.Event
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into v.
func DecodeData(env *Envelope, what string, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &DecodeError{What: what, Err: errors.New("payload is empty")}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return &DecodeError{What: what, Err: err}
	}
	return nil
}

// Frame is an outbound gateway message.
type Frame struct {
	Op   Opcode
	Data any
}

type rawFrame struct {
	Op    int     `json:"op"`
	Seq   *int64  `json:"s"`
	Event *string `json:"t"`
	Data  any     `json:"d"`
}

// Encode serializes a frame. Client frames never carry a sequence or event name.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(rawFrame{Op: int(f.Op), Data: f.Data})
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Op, err)
	}
	return data, nil
}

// HeartbeatFrame builds an opcode 1 frame carrying the last sequence, or null.
func HeartbeatFrame(seq *int64) Frame {
	return Frame{Op: OpHeartbeat, Data: seq}
}
