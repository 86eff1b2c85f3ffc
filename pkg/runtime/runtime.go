// Package runtime ties channel, factory and discovery together into the
// single façade a process uses to register agent types and talk to them.
package runtime

import (
	"context"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/concurrency"
	"github.com/chris-alexander-pop/agentcore/pkg/discovery"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/factory"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

const discoveryName = "discovery"

// AgentSpec describes one agent type a Runtime can spawn session agents
// for on demand.
type AgentSpec struct {
	Name        string
	Description string
	Operations  []discovery.Operation
	New         factory.Spawn
}

// Runtime is the top-level façade: it owns the channel connection, the
// cluster discovery aggregator, and one Factory per registered agent type.
type Runtime struct {
	ch        channel.Channel
	discovery *discovery.Aggregator

	mu        concurrency.SmartRWMutex
	factories map[string]*factory.Factory
}

// New constructs a Runtime over ch. Call Start before registering specs.
func New(ch channel.Channel) *Runtime {
	return &Runtime{
		ch:        ch,
		factories: make(map[string]*factory.Factory),
	}
}

// Start connects the channel and brings up cluster discovery.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.ch.Connect(ctx); err != nil {
		return err
	}

	r.discovery = discovery.NewAggregator(discoveryName, r.ch)
	return r.discovery.Start(ctx)
}

// Stop tears discovery down, stops every registered factory, and closes
// the channel.
func (r *Runtime) Stop(ctx context.Context) error {
	if r.discovery != nil {
		if err := r.discovery.Stop(ctx); err != nil {
			return err
		}
	}
	if err := r.Deregister(ctx); err != nil {
		return err
	}
	return r.ch.Close(ctx)
}

// Channel exposes the underlying broker for callers that need to publish
// directly (e.g. a CLI or HTTP bridge).
func (r *Runtime) Channel() channel.Channel {
	return r.ch
}

// RegisterSpec registers an agent type: it is announced to discovery, and
// a Factory is started to spawn session agents for it on demand.
func (r *Runtime) RegisterSpec(ctx context.Context, spec AgentSpec) error {
	if r.discovery != nil {
		if err := r.discovery.Register(ctx, spec.Name, spec.Description, spec.Operations); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.factories[spec.Name]; exists {
		r.mu.Unlock()
		return errors.New(errors.CodeAlreadyExists, "agent type "+spec.Name+" already registered", nil)
	}
	f := factory.New(spec.Name, r.ch, spec.New)
	r.factories[spec.Name] = f
	r.mu.Unlock()

	return f.Start(ctx)
}

// Register is a convenience wrapper around RegisterSpec for agent types
// with no description or operations.
func (r *Runtime) Register(ctx context.Context, name string, spawn factory.Spawn) error {
	return r.RegisterSpec(ctx, AgentSpec{Name: name, New: spawn})
}

// Deregister stops and removes the factories for names, or every
// registered factory if none are given.
func (r *Runtime) Deregister(ctx context.Context, names ...string) error {
	r.mu.Lock()
	var toStop []*factory.Factory
	if len(names) > 0 {
		for _, name := range names {
			if f, ok := r.factories[name]; ok {
				toStop = append(toStop, f)
				delete(r.factories, name)
			}
		}
	} else {
		for name, f := range r.factories {
			toStop = append(toStop, f)
			delete(r.factories, name)
		}
	}
	r.mu.Unlock()

	for _, f := range toStop {
		if err := f.Stop(ctx); err != nil {
			return err
		}
	}

	if r.discovery != nil {
		return r.discovery.Deregister(ctx, names...)
	}
	return nil
}

// Delete requests that the session agent at addr be stopped and discarded.
// Delivery is best-effort, matching Factory's queue-grouped DeleteAgent
// handling.
func (r *Runtime) Delete(ctx context.Context, addr address.Address) error {
	factoryAddr := address.New(addr.Name, "")
	raw, err := message.Encode(&factory.DeleteAgent{SessionID: addr.ID})
	if err != nil {
		return err
	}
	_, err = r.ch.Publish(ctx, factoryAddr, raw, channel.WithoutProbe())
	return err
}
