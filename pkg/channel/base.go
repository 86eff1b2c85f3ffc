package channel

import (
	"context"
	"io"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// base is the default Channel implementation layered over any Driver.
type base struct {
	driver Driver
}

// New wraps driver with the default probe/publish_multi/request semantics
// shared by every binding.
func New(driver Driver) Channel {
	return &base{driver: driver}
}

func (c *base) Connect(ctx context.Context) error { return c.driver.Connect(ctx) }
func (c *base) Close(ctx context.Context) error   { return c.driver.Close(ctx) }

func (c *base) NewReplyTopic(ctx context.Context) (string, error) {
	return c.driver.NewReplyTopic(ctx)
}

func (c *base) Subscribe(ctx context.Context, addr address.Address, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	o := resolveSubscribeOptions(opts)
	return c.driver.SubscribeRaw(ctx, addr.Topic(), o.Queue, func(raw message.RawMessage) {
		handler(ctx, raw)
	})
}

func (c *base) Publish(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (*message.RawMessage, error) {
	o := resolveOptions(opts)

	if o.Probe {
		if err := c.probe(ctx, addr); err != nil {
			return nil, err
		}
	}

	topic := addr.Topic()

	if o.Reply != "" {
		msg.Reply = &address.Address{Name: o.Reply}
		if err := c.driver.PublishRaw(ctx, topic, msg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !o.Request {
		if err := c.driver.PublishRaw(ctx, topic, msg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	reply, err := c.request(ctx, topic, msg, o.Timeout)
	if err != nil {
		return nil, err
	}
	if reply.Header.Type == (*message.Error)(nil).Type() {
		errMsg, decodeErr := message.Decode[*message.Error](reply)
		if decodeErr == nil {
			return nil, ErrRemote(errMsg.Code, errMsg.Message)
		}
	}
	return &reply, nil
}

// request implements the one-shot request/reply pattern (allocate inbox,
// subscribe, publish with that inbox as reply, wait) shared by every
// Driver, so adapters never need their own request primitive.
func (c *base) request(ctx context.Context, topic string, msg message.RawMessage, timeout time.Duration) (message.RawMessage, error) {
	inbox, err := c.driver.NewReplyTopic(ctx)
	if err != nil {
		return message.RawMessage{}, err
	}

	replies := make(chan message.RawMessage, 1)
	sub, err := c.driver.SubscribeRaw(ctx, inbox, "", func(raw message.RawMessage) {
		select {
		case replies <- raw:
		default:
		}
	})
	if err != nil {
		return message.RawMessage{}, err
	}
	defer sub.Unsubscribe(ctx)

	msg.Reply = &address.Address{Name: inbox}
	if err := c.driver.PublishRaw(ctx, topic, msg); err != nil {
		return message.RawMessage{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case raw := <-replies:
		return raw, nil
	case <-timer.C:
		return message.RawMessage{}, ErrDeliverTimeout(context.DeadlineExceeded)
	case <-ctx.Done():
		return message.RawMessage{}, ctx.Err()
	}
}

// needsProbe reports whether addr designates a session agent that may need
// on-demand creation: it has a non-empty ID and is neither a singleton nor
// an ephemeral reply address.
func needsProbe(addr address.Address) bool {
	return addr.ID != "" && !addr.IsReply() && !addr.IsSingleton()
}

func (c *base) probe(ctx context.Context, addr address.Address) error {
	if !needsProbe(addr) {
		return nil
	}

	create := &createAgentProbe{SessionID: addr.ID}
	raw, err := message.Encode(create)
	if err != nil {
		return err
	}

	factoryAddr := address.New(addr.Name, "")
	_, err = c.Publish(ctx, factoryAddr, raw, WithRequest(), WithoutProbe())
	return err
}

// createAgentProbe mirrors factory.CreateAgent's wire shape without
// importing the factory package, which would create an import cycle
// (factory depends on channel).
type createAgentProbe struct {
	message.Envelope
	SessionID string `json:"session_id"`
}

func (*createAgentProbe) Type() string { return "CreateAgent" }

// replyIterator is the default publish_multi implementation: allocate an
// inbox, subscribe, publish with that inbox as reply, then pump envelopes
// until StopIteration/Error/ctx-done.
type replyIterator struct {
	sub  Subscription
	ch   chan message.RawMessage
	done bool
}

func (c *base) PublishMulti(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (ReplyIterator, error) {
	o := resolveOptions(opts)

	inbox, err := c.NewReplyTopic(ctx)
	if err != nil {
		return nil, err
	}

	it := &replyIterator{ch: make(chan message.RawMessage, 64)}
	sub, err := c.Subscribe(ctx, address.Address{Name: inbox}, func(_ context.Context, raw message.RawMessage) {
		select {
		case it.ch <- raw:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	it.sub = sub

	publishOpts := []PublishOption{WithRequest(), WithReply(inbox)}
	if !o.Probe {
		publishOpts = append(publishOpts, WithoutProbe())
	}
	if _, err := c.Publish(ctx, addr, msg, publishOpts...); err != nil {
		_ = sub.Unsubscribe(ctx)
		return nil, err
	}

	return it, nil
}

func (it *replyIterator) Next(ctx context.Context) (message.RawMessage, error) {
	if it.done {
		return message.RawMessage{}, io.EOF
	}
	select {
	case raw := <-it.ch:
		switch raw.Header.Type {
		case (*message.StopIteration)(nil).Type():
			it.done = true
			return message.RawMessage{}, io.EOF
		case (*message.Error)(nil).Type():
			it.done = true
			errMsg, err := message.Decode[*message.Error](raw)
			if err != nil {
				return message.RawMessage{}, err
			}
			return message.RawMessage{}, ErrRemote(errMsg.Code, errMsg.Message)
		default:
			return raw, nil
		}
	case <-ctx.Done():
		return message.RawMessage{}, ctx.Err()
	}
}

func (it *replyIterator) Close(ctx context.Context) error {
	return it.sub.Unsubscribe(ctx)
}
