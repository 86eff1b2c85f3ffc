package channel

import (
	"context"

	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// Driver is the narrow transport contract a concrete binding (inproc, nats)
// implements. Base layers probing, request/reply and publish_multi on top
// of it using only these primitives, so adapters only deal with raw topic
// delivery; request/reply is always expressed at the application level via
// RawMessage.Reply, never a transport-native request feature.
type Driver interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// PublishRaw fires raw at topic without waiting for any reply.
	PublishRaw(ctx context.Context, topic string, raw message.RawMessage) error

	// SubscribeRaw registers handler against topic, optionally as part of
	// queue (empty for no load balancing).
	SubscribeRaw(ctx context.Context, topic, queue string, handler func(message.RawMessage)) (Subscription, error)

	NewReplyTopic(ctx context.Context) (string, error)
}
