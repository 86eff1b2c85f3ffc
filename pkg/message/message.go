// Package message implements the wire envelope (Header/RawMessage) and the
// typed Message contract layered on top of it.
package message

import (
	"encoding/json"
	"reflect"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
)

// Header carries the wire-level metadata of a RawMessage.
type Header struct {
	Type        string         `json:"type"`
	ContentType string         `json:"content_type,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

// RawMessage is the bytes-on-the-wire envelope exchanged over a Channel.
type RawMessage struct {
	Header  Header           `json:"header"`
	Reply   *address.Address `json:"reply,omitempty"`
	Content []byte           `json:"content,omitempty"`
}

// Envelope holds the fields common to every typed Message: the reply
// address and extension metadata lifted from the RawMessage header. It is
// meant to be embedded by value; Env() is then promoted to the embedder.
type Envelope struct {
	Reply      *address.Address `json:"-"`
	Extensions map[string]any   `json:"-"`
}

// Env returns the envelope itself, so embedding types satisfy Message
// without repeating this accessor.
func (e *Envelope) Env() *Envelope { return e }

// Message is implemented by every typed message exchanged between agents.
// Concrete types embed Envelope by value and implement Type().
type Message interface {
	Type() string
	Env() *Envelope
}

var defaultContentType = "application/json"

// Encode converts a typed Message into its wire RawMessage. Fields other
// than Reply/Extensions are JSON-marshaled into Content; a content of "{}"
// is compacted to an empty byte slice, matching the empty-body law.
func Encode(m Message) (RawMessage, error) {
	if re, ok := m.(rawEncodable); ok {
		return re.raw(), nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return RawMessage{}, errors.New(errors.CodeDecodeFailed, "failed to encode message", err)
	}
	if string(data) == "{}" {
		data = nil
	}

	env := m.Env()
	return RawMessage{
		Header: Header{
			Type:        m.Type(),
			ContentType: defaultContentType,
			Extensions:  env.Extensions,
		},
		Reply:   env.Reply,
		Content: data,
	}, nil
}

type rawEncodable interface {
	raw() RawMessage
}

// Decode decodes raw into a fresh instance of T, validating that the wire
// type name matches T's. T must be a pointer to a struct implementing
// Message.
func Decode[T Message](raw RawMessage) (T, error) {
	var zero T

	instance, err := newInstance[T]()
	if err != nil {
		return zero, err
	}

	if raw.Header.Type != instance.Type() {
		return zero, errors.New(errors.CodeDecodeFailed,
			"unexpected message type: got "+raw.Header.Type+", want "+instance.Type(), nil)
	}

	if err := populate(instance, raw); err != nil {
		return zero, err
	}

	return instance, nil
}

// TypeName returns the wire type name T's zero value reports via Type(),
// without needing a RawMessage to decode. Handler registries use this to
// key a dispatch table by message type.
func TypeName[T Message]() (string, error) {
	instance, err := newInstance[T]()
	if err != nil {
		return "", err
	}
	return instance.Type(), nil
}

func newInstance[T Message]() (T, error) {
	var zero T
	ptrType := reflect.TypeOf(&zero).Elem()
	if ptrType.Kind() != reflect.Ptr {
		return zero, errors.New(errors.CodeInternal, "message type parameter must be a pointer to a struct", nil)
	}
	structType := ptrType.Elem()
	instance := reflect.New(structType).Interface().(T)
	return instance, nil
}

func populate(instance Message, raw RawMessage) error {
	if len(raw.Content) > 0 {
		if err := json.Unmarshal(raw.Content, instance); err != nil {
			return errors.New(errors.CodeDecodeFailed, "failed to decode message body", err)
		}
	}
	env := instance.Env()
	env.Reply = raw.Reply
	env.Extensions = raw.Header.Extensions
	return nil
}

// registry backs DecodeAny's dynamic dispatch by wire type name.
var registry = map[string]reflect.Type{}

// Register associates T's wire type name with its Go type, so DecodeAny can
// construct and decode instances of it. Agents call this once per handled
// message type, typically from an init() in the package that defines it.
func Register[T Message]() {
	instance, err := newInstance[T]()
	if err != nil {
		panic(err)
	}
	registry[instance.Type()] = reflect.TypeOf(instance).Elem()
}

// DecodeAny decodes raw into whatever Go type was registered for its wire
// type name, falling back to GenericMessage when none is registered.
func DecodeAny(raw RawMessage) (Message, error) {
	structType, ok := registry[raw.Header.Type]
	if !ok {
		return decodeGeneric(raw)
	}
	instance := reflect.New(structType).Interface().(Message)
	if err := populate(instance, raw); err != nil {
		return nil, err
	}
	return instance, nil
}

func init() {
	Register[*Started]()
	Register[*Stopped]()
	Register[*ProbeAgent]()
	Register[*SetReplyAgent]()
	Register[*Empty]()
	Register[*StopIteration]()
	Register[*Cancel]()
	Register[*Error]()
}
