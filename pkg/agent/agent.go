// Package agent implements BaseAgent, the handler-dispatch and lifecycle
// machinery every concrete agent embeds.
package agent

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/concurrency"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// Agent is the contract a Factory and Runtime drive: an addressable,
// startable/stoppable message handler.
type Agent interface {
	Address() address.Address
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Started() bool
	IdleSince() time.Time
}

// rawHandler dispatches a decoded raw message to a typed handler and
// returns the reply to send back, if any.
type rawHandler func(ctx context.Context, raw message.RawMessage) (message.Message, error)

// rawStreamHandler dispatches a decoded raw message to a typed streaming
// handler, invoking emit for each reply chunk.
type rawStreamHandler func(ctx context.Context, raw message.RawMessage, emit func(message.Message) error) error

// Emit publishes one chunk of a streaming reply.
type Emit func(message.Message) error

// BaseAgent is the embeddable base every concrete agent builds on. It owns
// subscription lifecycle, handler dispatch, cooperative cancellation, idle
// tracking and a small bag of mutable state for subclasses.
type BaseAgent struct {
	addr    address.Address
	channel channel.Channel

	mu             concurrency.SmartRWMutex
	handlers       map[string]rawHandler
	streamHandlers map[string]rawStreamHandler
	replyAgent     *address.Address
	stateBag       map[string]any

	started      bool
	sub          channel.Subscription
	lastActivity int64 // unix nano, atomic via mu

	tasksMu concurrency.SmartMutex
	tasks   map[int64]context.CancelFunc
	nextID  int64

	idleTimeout time.Duration
	idleStop    chan struct{}
	onIdle      func(ctx context.Context, a *BaseAgent)
}

// Option configures a BaseAgent at construction time.
type Option func(*BaseAgent)

// WithIdleTimeout arranges for onIdle to be invoked once the agent has
// handled no message for d. Factory does not use this option; it recycles
// session agents by polling IdleSince.
func WithIdleTimeout(d time.Duration, onIdle func(ctx context.Context, a *BaseAgent)) Option {
	return func(b *BaseAgent) {
		b.idleTimeout = d
		b.onIdle = onIdle
	}
}

// NewBaseAgent constructs a BaseAgent addressed at addr, publishing and
// subscribing over ch.
func NewBaseAgent(addr address.Address, ch channel.Channel, opts ...Option) *BaseAgent {
	b := &BaseAgent{
		addr:           addr,
		channel:        ch,
		handlers:       make(map[string]rawHandler),
		streamHandlers: make(map[string]rawStreamHandler),
		stateBag:       make(map[string]any),
		tasks:          make(map[int64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BaseAgent) Address() address.Address { return b.addr }

func (b *BaseAgent) Started() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

func (b *BaseAgent) IdleSince() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Unix(0, b.lastActivity)
}

// RegisterHandler associates M's wire type with a request/reply handler.
// fn's return value, if non-nil, is published back to the inbound
// message's reply address; a returned error becomes an Error reply.
func RegisterHandler[M message.Message](b *BaseAgent, fn func(ctx context.Context, msg M) (message.Message, error)) {
	typeName, err := message.TypeName[M]()
	if err != nil {
		panic(err)
	}
	b.handlers[typeName] = func(ctx context.Context, raw message.RawMessage) (message.Message, error) {
		msg, err := message.Decode[M](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, msg)
	}
}

// RegisterStreamHandler associates M's wire type with a streaming handler:
// fn calls emit any number of times before returning; BaseAgent follows
// the stream with a StopIteration, or an Error reply if fn returns one.
func RegisterStreamHandler[M message.Message](b *BaseAgent, fn func(ctx context.Context, msg M, emit Emit) error) {
	typeName, err := message.TypeName[M]()
	if err != nil {
		panic(err)
	}
	b.streamHandlers[typeName] = func(ctx context.Context, raw message.RawMessage, emit func(message.Message) error) error {
		msg, err := message.Decode[M](raw)
		if err != nil {
			return err
		}
		return fn(ctx, msg, emit)
	}
}

// SetState stores an arbitrary value under key, for subclasses that need
// mutable per-agent state visible across handler invocations.
func (b *BaseAgent) SetState(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateBag[key] = value
}

// GetState retrieves a value previously stored with SetState.
func (b *BaseAgent) GetState(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.stateBag[key]
	return v, ok
}

// Start subscribes the agent to its own topic and, if configured, begins
// idle-timeout tracking.
func (b *BaseAgent) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.lastActivity = time.Now().UnixNano()
	b.mu.Unlock()

	sub, err := b.channel.Subscribe(ctx, b.addr, b.Receive)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.started = true
	b.mu.Unlock()

	if b.idleTimeout > 0 && b.onIdle != nil {
		b.idleStop = make(chan struct{})
		concurrency.SafeGo(ctx, func() { b.watchIdle(ctx) })
	}

	started := &message.Started{}
	b.publishLifecycle(ctx, started)
	return nil
}

// Stop unsubscribes, cancels every in-flight handler task and marks the
// agent stopped.
func (b *BaseAgent) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	sub := b.sub
	b.started = false
	b.mu.Unlock()

	if b.idleStop != nil {
		close(b.idleStop)
	}
	b.cancelAll()

	if sub != nil {
		if err := sub.Unsubscribe(ctx); err != nil {
			return err
		}
	}

	b.publishLifecycle(ctx, &message.Stopped{})
	return nil
}

func (b *BaseAgent) publishLifecycle(ctx context.Context, m message.Message) {
	b.mu.RLock()
	reply := b.replyAgent
	b.mu.RUnlock()
	if reply == nil {
		return
	}
	raw, err := message.Encode(m)
	if err != nil {
		return
	}
	if _, err := b.channel.Publish(ctx, *reply, raw, channel.WithoutProbe()); err != nil {
		logger.L().WarnContext(ctx, "failed to publish lifecycle notification", "agent", b.addr.String(), "error", err)
	}
}

func (b *BaseAgent) watchIdle(ctx context.Context) {
	ticker := time.NewTicker(b.idleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-b.idleStop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.hasActiveTasks() {
				continue
			}
			if time.Since(b.IdleSince()) >= b.idleTimeout {
				b.onIdle(ctx, b)
				return
			}
		}
	}
}

func (b *BaseAgent) hasActiveTasks() bool {
	b.tasksMu.Lock()
	defer b.tasksMu.Unlock()
	return len(b.tasks) > 0
}

// Receive dispatches one inbound raw message: control messages are handled
// inline, everything else spawns a cancellable handler task.
func (b *BaseAgent) Receive(ctx context.Context, raw message.RawMessage) {
	b.mu.Lock()
	b.lastActivity = time.Now().UnixNano()
	b.mu.Unlock()

	switch raw.Header.Type {
	case (*message.Cancel)(nil).Type():
		b.cancelAll()
		return
	case (*message.ProbeAgent)(nil).Type(), (*message.Empty)(nil).Type():
		return
	case (*message.SetReplyAgent)(nil).Type():
		setReply, err := message.Decode[*message.SetReplyAgent](raw)
		if err == nil {
			b.mu.Lock()
			b.replyAgent = &setReply.Address
			b.mu.Unlock()
		}
		return
	}

	// A handler that panics is answered like one that returned an error.
	recoverToReply := func() {
		if r := recover(); r != nil {
			b.reply(ctx, raw, nil, fmt.Errorf("handler panic: %v", r))
		}
	}

	if handler, ok := b.handlers[raw.Header.Type]; ok {
		b.runTask(ctx, func(taskCtx context.Context) {
			defer recoverToReply()
			result, err := handler(taskCtx, raw)
			b.reply(ctx, raw, result, err)
		})
		return
	}

	if streamHandler, ok := b.streamHandlers[raw.Header.Type]; ok {
		b.runTask(ctx, func(taskCtx context.Context) {
			defer recoverToReply()
			emit := func(m message.Message) error {
				return b.emit(ctx, raw, m)
			}
			err := streamHandler(taskCtx, raw, emit)
			if err != nil {
				b.reply(ctx, raw, nil, err)
				return
			}
			b.reply(ctx, raw, &message.StopIteration{}, nil)
		})
		return
	}

	target, ok := b.replyTarget(raw)
	if !ok {
		logger.L().ErrorContext(ctx, "no handler registered for message type and no reply target to report it", "agent", b.addr.String(), "type", raw.Header.Type)
		return
	}
	b.publish(ctx, target, &message.Error{
		Code:    message.ErrCodeDecode,
		Message: "message type '" + raw.Header.Type + "' not found",
	})
}

func (b *BaseAgent) runTask(ctx context.Context, fn func(taskCtx context.Context)) {
	taskCtx, cancel := context.WithCancel(ctx)

	b.tasksMu.Lock()
	b.nextID++
	id := b.nextID
	b.tasks[id] = cancel
	b.tasksMu.Unlock()

	concurrency.SafeGo(ctx, func() {
		defer func() {
			b.tasksMu.Lock()
			delete(b.tasks, id)
			b.tasksMu.Unlock()
			cancel()
		}()
		fn(taskCtx)
	})
}

func (b *BaseAgent) cancelAll() {
	b.tasksMu.Lock()
	defer b.tasksMu.Unlock()
	for _, cancel := range b.tasks {
		cancel()
	}
}

// replyTarget resolves where a reply to raw should go: the message's own
// reply address if set, else the agent's default reply target.
func (b *BaseAgent) replyTarget(raw message.RawMessage) (address.Address, bool) {
	if raw.Reply != nil {
		return *raw.Reply, true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.replyAgent != nil {
		return *b.replyAgent, true
	}
	return address.Address{}, false
}

func (b *BaseAgent) reply(ctx context.Context, raw message.RawMessage, result message.Message, handlerErr error) {
	target, ok := b.replyTarget(raw)
	if !ok {
		if handlerErr != nil {
			logger.L().ErrorContext(ctx, "handler failed with no reply target", "agent", b.addr.String(), "error", handlerErr)
		}
		return
	}

	var out message.Message
	if handlerErr != nil {
		out = errorMessage(handlerErr)
	} else if result != nil {
		out = result
	} else {
		out = &message.Empty{}
	}
	b.publish(ctx, target, out)
}

// publish encodes out and sends it to target, the resolved reply address
// for whatever envelope is being answered.
func (b *BaseAgent) publish(ctx context.Context, target address.Address, out message.Message) {
	encoded, err := message.Encode(out)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to encode reply", "agent", b.addr.String(), "error", err)
		return
	}
	if _, err := b.channel.Publish(ctx, target, encoded, channel.WithoutProbe()); err != nil {
		logger.L().ErrorContext(ctx, "failed to publish reply", "agent", b.addr.String(), "error", err)
	}
}

func (b *BaseAgent) emit(ctx context.Context, raw message.RawMessage, m message.Message) error {
	target, ok := b.replyTarget(raw)
	if !ok {
		return errors.New(errors.CodeInvalidArgument, "streaming handler has no reply target", nil)
	}
	encoded, err := message.Encode(m)
	if err != nil {
		return err
	}
	_, err = b.channel.Publish(ctx, target, encoded, channel.WithoutProbe())
	return err
}

// errorMessage converts a handler failure into the wire Error reply.
// Cancellation is detected from the error itself (the task's own ctx,
// which cancelAll cancels) rather than the long-lived subscription ctx
// Receive runs under, which is never cancelled per message.
func errorMessage(err error) *message.Error {
	if goerrors.Is(err, context.Canceled) {
		return &message.Error{Code: message.ErrCodeCancelled, Message: err.Error()}
	}
	code := message.ErrCodeInternal
	if appErr, ok := err.(*errors.AppError); ok {
		code = appErr.Code
	}
	return &message.Error{Code: code, Message: err.Error()}
}
