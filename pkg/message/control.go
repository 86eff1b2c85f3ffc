package message

import "github.com/chris-alexander-pop/agentcore/pkg/address"

// Started notifies an agent that it has started.
type Started struct{ Envelope }

func (*Started) Type() string { return "Started" }

// Stopped notifies an agent that it has stopped.
type Stopped struct{ Envelope }

func (*Stopped) Type() string { return "Stopped" }

// ProbeAgent probes the existence of an agent, used to trigger on-demand
// creation via a Factory without otherwise affecting it.
type ProbeAgent struct{ Envelope }

func (*ProbeAgent) Type() string { return "ProbeAgent" }

// SetReplyAgent sets the address an agent should reply to by default.
type SetReplyAgent struct {
	Envelope
	Address address.Address `json:"address"`
}

func (*SetReplyAgent) Type() string { return "SetReplyAgent" }

// Empty is a placeholder message carrying no information, sent as the reply
// when a handler returns no message and as a factory's acknowledgement.
type Empty struct{ Envelope }

func (*Empty) Type() string { return "Empty" }

// StopIteration terminates a streaming reply.
type StopIteration struct{ Envelope }

func (*StopIteration) Type() string { return "StopIteration" }

// Cancel requests cancellation of the currently running handler task on the
// target agent.
type Cancel struct{ Envelope }

func (*Cancel) Type() string { return "Cancel" }

// Error reports a handler failure.
type Error struct {
	Envelope
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (*Error) Type() string { return "Error" }

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Well-known error codes produced by the agent dispatch loop.
const (
	ErrCodeInternal  = "internal"
	ErrCodeCancelled = "cancelled"
	ErrCodeTimeout   = "timeout"
	ErrCodeNotFound  = "not_found"
	ErrCodeDecode    = "decode"
)

// GenericMessage wraps an opaque RawMessage whose Go type is not known
// statically; DecodeAny returns it for wire types with no registered Go type.
type GenericMessage struct {
	Envelope
	Raw RawMessage
}

func (*GenericMessage) Type() string { return "GenericMessage" }

func (g *GenericMessage) raw() RawMessage { return g.Raw }

func decodeGeneric(raw RawMessage) (Message, error) {
	g := &GenericMessage{Raw: raw}
	g.Envelope.Reply = raw.Reply
	g.Envelope.Extensions = raw.Header.Extensions
	return g, nil
}
