package channel

import (
	"context"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented wraps a Channel with logging and tracing.
type Instrumented struct {
	next   Channel
	tracer trace.Tracer
}

// NewInstrumented wraps next with OpenTelemetry spans and structured logs,
// mirroring the messaging package's InstrumentedBroker.
func NewInstrumented(next Channel) *Instrumented {
	return &Instrumented{next: next, tracer: otel.Tracer("pkg/channel")}
}

func (c *Instrumented) Connect(ctx context.Context) error {
	logger.L().InfoContext(ctx, "connecting channel")
	if err := c.next.Connect(ctx); err != nil {
		logger.L().ErrorContext(ctx, "failed to connect channel", "error", err)
		return err
	}
	return nil
}

func (c *Instrumented) Close(ctx context.Context) error {
	logger.L().InfoContext(ctx, "closing channel")
	return c.next.Close(ctx)
}

func (c *Instrumented) NewReplyTopic(ctx context.Context) (string, error) {
	return c.next.NewReplyTopic(ctx)
}

func (c *Instrumented) Publish(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (*message.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "channel.Publish", trace.WithAttributes(
		attribute.String("channel.topic", addr.Topic()),
		attribute.String("channel.message_type", msg.Header.Type),
	))
	defer span.End()

	logger.L().DebugContext(ctx, "publishing", "topic", addr.Topic(), "type", msg.Header.Type)

	reply, err := c.next.Publish(ctx, addr, msg, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "publish failed", "topic", addr.Topic(), "error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "published")
	return reply, nil
}

func (c *Instrumented) PublishMulti(ctx context.Context, addr address.Address, msg message.RawMessage, opts ...PublishOption) (ReplyIterator, error) {
	ctx, span := c.tracer.Start(ctx, "channel.PublishMulti", trace.WithAttributes(
		attribute.String("channel.topic", addr.Topic()),
		attribute.String("channel.message_type", msg.Header.Type),
	))
	defer span.End()

	it, err := c.next.PublishMulti(ctx, addr, msg, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "publish_multi failed", "topic", addr.Topic(), "error", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "streaming")
	return it, nil
}

func (c *Instrumented) Subscribe(ctx context.Context, addr address.Address, handler Handler, opts ...SubscribeOption) (Subscription, error) {
	logger.L().DebugContext(ctx, "subscribing", "topic", addr.Topic())
	sub, err := c.next.Subscribe(ctx, addr, handler, opts...)
	if err != nil {
		logger.L().ErrorContext(ctx, "subscribe failed", "topic", addr.Topic(), "error", err)
		return nil, err
	}
	return sub, nil
}
