package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/agent"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

const discoverWait = 450 * time.Millisecond

// Aggregator is the cluster-facing discovery agent. It is queue-grouped
// across every replica in the cluster, so exactly one replica handles a
// given query; that replica then scatters the query to every process-local
// Server sharing its topic and gathers their replies.
type Aggregator struct {
	addr   address.Address
	ch     channel.Channel
	server *Server
	base   *agent.BaseAgent

	sub channel.Subscription
}

// NewAggregator constructs the discovery aggregator for name (conventionally
// "discovery"), along with its process-local Server at "<name>.server".
func NewAggregator(name string, ch channel.Channel) *Aggregator {
	a := &Aggregator{
		addr:   address.New(name, ""),
		ch:     ch,
		server: NewServer(address.New(name+".server", ""), ch),
	}
	a.base = agent.NewBaseAgent(a.addr, ch)
	agent.RegisterHandler(a.base, a.handleDiscover)
	agent.RegisterHandler(a.base, a.handleSubscribe)
	agent.RegisterHandler(a.base, a.handleUnsubscribe)
	return a
}

func (a *Aggregator) Address() address.Address { return a.addr }

// Start subscribes the aggregator queue-grouped to its topic and starts
// its process-local server.
func (a *Aggregator) Start(ctx context.Context) error {
	queue := a.addr.Topic() + "_workers"
	sub, err := a.ch.Subscribe(ctx, a.addr, a.base.Receive, channel.WithQueue(queue))
	if err != nil {
		return err
	}
	a.sub = sub

	return a.server.Start(ctx)
}

func (a *Aggregator) Stop(ctx context.Context) error {
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	if a.sub == nil {
		return nil
	}
	return a.sub.Unsubscribe(ctx)
}

// Register registers name on this process's local server.
func (a *Aggregator) Register(ctx context.Context, name, description string, operations []Operation) error {
	if name == a.addr.Name {
		return errors.New(errors.CodeInvalidArgument, "agent type '"+name+"' is reserved", nil)
	}
	return a.server.Register(ctx, name, description, operations)
}

// Deregister deregisters names (or every local type) from this process's
// local server.
func (a *Aggregator) Deregister(ctx context.Context, names ...string) error {
	return a.server.Deregister(ctx, names...)
}

func (a *Aggregator) handleDiscover(ctx context.Context, msg *DiscoveryQuery) (message.Message, error) {
	var mu sync.Mutex
	agents := make(map[string]Schema)

	inbox, err := a.ch.NewReplyTopic(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := a.ch.Subscribe(ctx, address.Address{Name: inbox}, func(ctx context.Context, raw message.RawMessage) {
		reply, err := message.Decode[*DiscoveryReply](raw)
		if err != nil || len(reply.Agents) == 0 {
			return
		}
		mu.Lock()
		for _, schema := range reply.Agents {
			agents[schema.Name] = schema
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe(ctx)

	raw, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}
	if _, err := a.ch.Publish(ctx, a.server.Address(), raw, channel.WithRequest(), channel.WithReply(inbox), channel.WithoutProbe()); err != nil {
		return nil, err
	}

	select {
	case <-time.After(discoverWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	result := make([]Schema, 0, len(agents))
	for _, schema := range agents {
		result = append(result, schema)
	}
	mu.Unlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return &DiscoveryReply{Agents: result}, nil
}

func (a *Aggregator) handleSubscribe(ctx context.Context, msg *SubscribeToAgentUpdates) (message.Message, error) {
	raw, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}
	_, err = a.ch.Publish(ctx, a.server.Address(), raw, channel.WithoutProbe())
	return nil, err
}

func (a *Aggregator) handleUnsubscribe(ctx context.Context, msg *UnsubscribeFromAgentUpdates) (message.Message, error) {
	raw, err := message.Encode(msg)
	if err != nil {
		return nil, err
	}
	_, err = a.ch.Publish(ctx, a.server.Address(), raw, channel.WithoutProbe())
	return nil, err
}
