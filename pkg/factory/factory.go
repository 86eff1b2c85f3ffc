// Package factory implements Factory, the per-agent-type spawner that
// creates and recycles session agents on demand.
package factory

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/agent"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/concurrency"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// CreateAgent requests that a session agent for SessionID exist, creating
// it on demand. It is also the shape channel.Publish sends when probing a
// session address before delivering the caller's real message.
type CreateAgent struct {
	message.Envelope
	SessionID string `json:"session_id"`
}

func (*CreateAgent) Type() string { return "CreateAgent" }

// DeleteAgent requests that a session agent be stopped and discarded.
// Delivery is best-effort: because factory instances share a queue group,
// a DeleteAgent for a session owned by a sibling instance is simply a
// no-op where it lands.
type DeleteAgent struct {
	message.Envelope
	SessionID string `json:"session_id"`
}

func (*DeleteAgent) Type() string { return "DeleteAgent" }

func init() {
	message.Register[*CreateAgent]()
	message.Register[*DeleteAgent]()
}

// Spawn constructs a fresh, not-yet-started session agent for sessionID.
type Spawn func(sessionID string) agent.Agent

const (
	defaultIdleTimeout = 60 * time.Second
	defaultRecycleTick = 20 * time.Second
	queueSuffix        = "_workers"
)

// Factory owns the lifecycle of every session agent it has created for a
// single agent type name, spawning them on demand and recycling ones that
// have gone idle.
type Factory struct {
	name  string
	ch    channel.Channel
	spawn Spawn

	idleTimeout time.Duration
	recycleTick time.Duration

	mu     concurrency.SmartRWMutex
	agents map[string]agent.Agent

	sub     channel.Subscription
	stopped chan struct{}
}

// Option configures a Factory at construction time.
type Option func(*Factory)

// WithFactoryIdleTimeout overrides the default idle timeout a spawned
// session agent is recycled after.
func WithFactoryIdleTimeout(d time.Duration) Option {
	return func(f *Factory) { f.idleTimeout = d }
}

// WithRecycleInterval overrides how often the factory polls its session
// agents for idleness. Exposed mainly so tests can shrink both this and
// the idle timeout to exercise recycling without waiting on production
// timings.
func WithRecycleInterval(d time.Duration) Option {
	return func(f *Factory) { f.recycleTick = d }
}

// New builds a Factory for agent type name. spawn constructs a new,
// unstarted agent for a given session id; the factory itself starts it.
func New(name string, ch channel.Channel, spawn Spawn, opts ...Option) *Factory {
	f := &Factory{
		name:        name,
		ch:          ch,
		spawn:       spawn,
		idleTimeout: defaultIdleTimeout,
		recycleTick: defaultRecycleTick,
		agents:      make(map[string]agent.Agent),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start subscribes the factory to its topic, queue-grouped so that
// multiple factory replicas for the same agent type load-balance
// CreateAgent/DeleteAgent requests rather than each handling every one.
func (f *Factory) Start(ctx context.Context) error {
	addr := address.New(f.name, "")
	queue := addr.Topic() + queueSuffix

	sub, err := f.ch.Subscribe(ctx, addr, f.receive, channel.WithQueue(queue))
	if err != nil {
		return err
	}
	f.sub = sub
	f.stopped = make(chan struct{})

	concurrency.SafeGo(ctx, func() { f.recycleLoop(ctx) })
	return nil
}

// Stop unsubscribes and stops every session agent this factory instance
// currently owns.
func (f *Factory) Stop(ctx context.Context) error {
	if f.stopped != nil {
		close(f.stopped)
	}
	if f.sub != nil {
		if err := f.sub.Unsubscribe(ctx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	agents := make([]agent.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		agents = append(agents, a)
	}
	f.agents = make(map[string]agent.Agent)
	f.mu.Unlock()

	concurrency.FanOut(ctx, len(agents), func(i int) {
		_ = agents[i].Stop(ctx)
	})
	return nil
}

func (f *Factory) receive(ctx context.Context, raw message.RawMessage) {
	switch raw.Header.Type {
	case (*CreateAgent)(nil).Type():
		f.handleCreate(ctx, raw)
	case (*DeleteAgent)(nil).Type():
		f.handleDelete(ctx, raw)
	default:
		logger.L().WarnContext(ctx, "factory received unexpected message type", "factory", f.name, "type", raw.Header.Type)
	}
}

func (f *Factory) handleCreate(ctx context.Context, raw message.RawMessage) {
	req, err := message.Decode[*CreateAgent](raw)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to decode CreateAgent", "factory", f.name, "error", err)
		return
	}

	if _, err := f.getOrCreate(ctx, req.SessionID); err != nil {
		logger.L().ErrorContext(ctx, "failed to create session agent", "factory", f.name, "session_id", req.SessionID, "error", err)
		return
	}

	if raw.Reply != nil {
		f.ackEmpty(ctx, *raw.Reply)
	}
}

func (f *Factory) handleDelete(ctx context.Context, raw message.RawMessage) {
	req, err := message.Decode[*DeleteAgent](raw)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to decode DeleteAgent", "factory", f.name, "error", err)
		return
	}

	f.mu.Lock()
	a, ok := f.agents[req.SessionID]
	if ok {
		delete(f.agents, req.SessionID)
	}
	f.mu.Unlock()

	if ok {
		_ = a.Stop(ctx)
	}

	if raw.Reply != nil {
		f.ackEmpty(ctx, *raw.Reply)
	}
}

func (f *Factory) ackEmpty(ctx context.Context, reply address.Address) {
	encoded, err := message.Encode(&message.Empty{})
	if err != nil {
		return
	}
	if _, err := f.ch.Publish(ctx, reply, encoded, channel.WithoutProbe()); err != nil {
		logger.L().ErrorContext(ctx, "failed to ack factory request", "factory", f.name, "error", err)
	}
}

func (f *Factory) getOrCreate(ctx context.Context, sessionID string) (agent.Agent, error) {
	f.mu.RLock()
	if a, ok := f.agents[sessionID]; ok {
		f.mu.RUnlock()
		return a, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.agents[sessionID]; ok {
		return a, nil
	}

	a := f.spawn(sessionID)
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	f.agents[sessionID] = a
	return a, nil
}

func (f *Factory) recycleLoop(ctx context.Context) {
	ticker := time.NewTicker(f.recycleTick)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopped:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.recycleIdle(ctx)
		}
	}
}

func (f *Factory) recycleIdle(ctx context.Context) {
	f.mu.Lock()
	var toStop []agent.Agent
	for sessionID, a := range f.agents {
		if time.Since(a.IdleSince()) >= f.idleTimeout {
			toStop = append(toStop, a)
			delete(f.agents, sessionID)
		}
	}
	f.mu.Unlock()

	concurrency.FanOut(ctx, len(toStop), func(i int) {
		a := toStop[i]
		if err := a.Stop(ctx); err != nil {
			logger.L().WarnContext(ctx, "failed to stop idle session agent", "factory", f.name, "agent", a.Address().String(), "error", err)
		}
	})
}
