// Package channel defines the abstract broker abstraction agents talk
// through: topic delivery, request/reply, queue groups, and ephemeral
// reply inboxes. Concrete bindings live under channel/adapters/*.
package channel

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// DefaultTimeout is the default request/reply timeout, matching the
// original broker's 0.5s default.
const DefaultTimeout = 500 * time.Millisecond

// Handler processes one inbound raw envelope. It must return promptly;
// long-running work belongs in a spawned task so the subscription callback
// stays responsive.
type Handler func(ctx context.Context, raw message.RawMessage)

// Subscription is a live subscription returned by Subscribe.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// ReplyIterator yields the envelopes of a publish_multi stream, terminated
// by io.EOF once a StopIteration envelope is observed.
type ReplyIterator interface {
	// Next blocks until the next envelope, an error, or ctx cancellation.
	// It returns io.EOF after the stream's StopIteration has been consumed.
	Next(ctx context.Context) (message.RawMessage, error)
	Close(ctx context.Context) error
}

// PublishOptions configures a single Publish/PublishMulti call.
type PublishOptions struct {
	Request bool
	Reply   string
	Timeout time.Duration
	Probe   bool
}

// PublishOption mutates PublishOptions.
type PublishOption func(*PublishOptions)

// WithRequest marks the publish as expecting a reply.
func WithRequest() PublishOption {
	return func(o *PublishOptions) { o.Request = true }
}

// WithReply sets an explicit reply subject. When set, Publish does not wait
// synchronously for a reply — the caller is expected to already have a
// subscription on that subject (this is how PublishMulti streams replies).
func WithReply(topic string) PublishOption {
	return func(o *PublishOptions) { o.Reply = topic }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) PublishOption {
	return func(o *PublishOptions) { o.Timeout = d }
}

// WithoutProbe disables the on-demand-creation probe for this call.
func WithoutProbe() PublishOption {
	return func(o *PublishOptions) { o.Probe = false }
}

func resolveOptions(opts []PublishOption) PublishOptions {
	o := PublishOptions{Timeout: DefaultTimeout, Probe: true}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// SubscribeOptions configures Subscribe.
type SubscribeOptions struct {
	Queue string
}

// SubscribeOption mutates SubscribeOptions.
type SubscribeOption func(*SubscribeOptions)

// WithQueue subscribes as part of a load-balanced queue group: only one
// member of the group receives each message.
func WithQueue(group string) SubscribeOption {
	return func(o *SubscribeOptions) { o.Queue = group }
}

func resolveSubscribeOptions(opts []SubscribeOption) SubscribeOptions {
	var o SubscribeOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// Channel is the abstract broker every agent, factory and discovery
// component is built against.
type Channel interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Publish delivers msg to addr. With WithRequest and no explicit reply,
	// it blocks for a single reply envelope (or DeliverTimeout). With an
	// explicit reply, or without WithRequest, it returns immediately.
	Publish(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (*message.RawMessage, error)

	// PublishMulti delivers msg to addr and returns an iterator over the
	// reply stream, terminated by the target's StopIteration.
	PublishMulti(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (ReplyIterator, error)

	// Subscribe registers handler to receive envelopes published to addr.
	Subscribe(ctx context.Context, addr address.Address, handler Handler, opts ...SubscribeOption) (Subscription, error)

	// NewReplyTopic allocates a fresh, unique `_INBOX.*` topic.
	NewReplyTopic(ctx context.Context) (string, error)
}
