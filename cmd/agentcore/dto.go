package main

import (
	"encoding/json"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// The types below mirror bridge.Server's wire shapes (pkg/bridge/dto.go).
// They are kept separate rather than imported, since they describe an HTTP
// contract between independent processes, not an internal Go API.

type addressDTO struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

func addressToDTO(a address.Address) addressDTO {
	return addressDTO{Name: a.Name, ID: a.ID}
}

type headerDTO struct {
	Type        string         `json:"type"`
	ContentType string         `json:"content_type,omitempty"`
	Extensions  map[string]any `json:"extensions,omitempty"`
}

type rawMessageDTO struct {
	Header  headerDTO       `json:"header"`
	Reply   *addressDTO     `json:"reply,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

func rawToDTO(raw message.RawMessage) rawMessageDTO {
	var reply *addressDTO
	if raw.Reply != nil {
		d := addressToDTO(*raw.Reply)
		reply = &d
	}
	var content json.RawMessage
	if len(raw.Content) > 0 {
		content = json.RawMessage(raw.Content)
	}
	return rawMessageDTO{
		Header: headerDTO{
			Type:        raw.Header.Type,
			ContentType: raw.Header.ContentType,
			Extensions:  raw.Header.Extensions,
		},
		Reply:   reply,
		Content: content,
	}
}

func (d rawMessageDTO) toRaw() message.RawMessage {
	var reply *address.Address
	if d.Reply != nil {
		a := address.Address{Name: d.Reply.Name, ID: d.Reply.ID}
		reply = &a
	}
	var content []byte
	if len(d.Content) > 0 {
		content = []byte(d.Content)
	}
	return message.RawMessage{
		Header: message.Header{
			Type:        d.Header.Type,
			ContentType: d.Header.ContentType,
			Extensions:  d.Header.Extensions,
		},
		Reply:   reply,
		Content: content,
	}
}

type publishRequest struct {
	Addr      addressDTO    `json:"addr"`
	Msg       rawMessageDTO `json:"msg"`
	Request   bool          `json:"request,omitempty"`
	Reply     string        `json:"reply,omitempty"`
	TimeoutMS int64         `json:"timeout_ms,omitempty"`
	Probe     *bool         `json:"probe,omitempty"`
}

type subscribeRequest struct {
	Addr addressDTO `json:"addr"`
}

type replyTopicResponse struct {
	Topic string `json:"topic"`
}

type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
