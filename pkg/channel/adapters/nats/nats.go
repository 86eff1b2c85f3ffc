// Package nats implements channel.Driver over a NATS connection, the
// production broker binding.
package nats

import (
	"context"
	"encoding/json"

	natsgo "github.com/nats-io/nats.go"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// Config configures the NATS driver.
type Config struct {
	URL string `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
}

// Driver implements channel.Driver over a single NATS connection. Each
// RawMessage's header and content are JSON-encoded as the NATS message
// payload, but Reply is carried by NATS' own reply-subject field rather
// than mirrored into the body, matching the wire contract's "reply is
// carried by the broker's native reply subject".
type Driver struct {
	cfg  Config
	conn *natsgo.Conn
}

// New creates a driver that connects lazily on Connect.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

func (d *Driver) Connect(ctx context.Context) error {
	conn, err := natsgo.Connect(d.cfg.URL)
	if err != nil {
		return channel.ErrConnectionFailed(err)
	}
	d.conn = conn
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}

func (d *Driver) NewReplyTopic(ctx context.Context) (string, error) {
	return natsgo.NewInbox(), nil
}

func (d *Driver) PublishRaw(ctx context.Context, topic string, raw message.RawMessage) error {
	reply := raw.Reply
	raw.Reply = nil // carried by msg.Reply below, not the JSON body
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.New(errors.CodeDecodeFailed, "failed to encode raw message", err)
	}

	msg := &natsgo.Msg{Subject: topic, Data: data}
	if reply != nil {
		msg.Reply = reply.Topic()
	}
	if err := d.conn.PublishMsg(msg); err != nil {
		return channel.ErrPublishFailed(err)
	}
	return nil
}

func (d *Driver) SubscribeRaw(ctx context.Context, topic, queue string, handler func(message.RawMessage)) (channel.Subscription, error) {
	cb := func(m *natsgo.Msg) {
		var raw message.RawMessage
		if err := json.Unmarshal(m.Data, &raw); err != nil {
			return
		}
		if m.Reply != "" {
			if replyAddr, err := address.FromTopic(m.Reply); err == nil {
				raw.Reply = &replyAddr
			}
		}
		handler(raw)
	}

	var sub *natsgo.Subscription
	var err error
	if queue != "" {
		sub, err = d.conn.QueueSubscribe(topic, queue, cb)
	} else {
		sub, err = d.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, channel.ErrSubscribeFailed(err)
	}

	return &subscription{sub: sub}, nil
}

type subscription struct {
	sub *natsgo.Subscription
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	return s.sub.Unsubscribe()
}
