package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/agent"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/concurrency"
	"github.com/chris-alexander-pop/agentcore/pkg/datastructures/trie"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/logger"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

const synchronizeWait = 200 * time.Millisecond

// Server is a process-local discovery server: it holds the agent types
// registered in this process and answers search/synchronize queries
// arriving on its shared, cluster-wide topic.
type Server struct {
	addr address.Address
	ch   channel.Channel
	base *agent.BaseAgent

	mu            concurrency.SmartRWMutex
	schemas       *trie.Trie[Schema]
	subscriptions map[address.Address]DiscoveryQuery

	sub channel.Subscription
}

// NewServer constructs a discovery server addressed at addr (conventionally
// "<discovery-name>.server").
func NewServer(addr address.Address, ch channel.Channel) *Server {
	s := &Server{
		addr:          addr,
		ch:            ch,
		schemas:       trie.New[Schema](),
		subscriptions: make(map[address.Address]DiscoveryQuery),
	}
	s.base = agent.NewBaseAgent(addr, ch)
	agent.RegisterHandler(s.base, s.handleSearch)
	agent.RegisterHandler(s.base, s.handleSynchronize)
	agent.RegisterHandler(s.base, s.handleSubscribe)
	agent.RegisterHandler(s.base, s.handleUnsubscribe)
	return s
}

func (s *Server) Address() address.Address { return s.addr }

// Start first synchronizes this server's (empty) subscription set with its
// peers sharing the same topic, then subscribes for real. Synchronizing
// before subscribing avoids the server receiving its own broadcast query.
func (s *Server) Start(ctx context.Context) error {
	if err := s.synchronize(ctx); err != nil {
		logger.L().WarnContext(ctx, "discovery server synchronize failed", "error", err)
	}

	sub, err := s.ch.Subscribe(ctx, s.addr, s.base.Receive)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe(ctx)
}

func (s *Server) synchronize(ctx context.Context) error {
	inbox, err := s.ch.NewReplyTopic(ctx)
	if err != nil {
		return err
	}

	sub, err := s.ch.Subscribe(ctx, address.Address{Name: inbox}, func(ctx context.Context, raw message.RawMessage) {
		reply, err := message.Decode[*synchronizeReply](raw)
		if err != nil {
			return
		}
		s.mu.Lock()
		for topic, query := range reply.Subscriptions {
			addr, err := address.FromTopic(topic)
			if err != nil {
				continue
			}
			s.subscriptions[addr] = query
		}
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe(ctx)

	raw, err := message.Encode(&synchronizeQuery{})
	if err != nil {
		return err
	}
	if _, err := s.ch.Publish(ctx, s.addr, raw, channel.WithRequest(), channel.WithReply(inbox), channel.WithoutProbe()); err != nil {
		return err
	}

	select {
	case <-time.After(synchronizeWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Register adds name to this server's local registry, notifying any
// subscriber whose query matches it.
func (s *Server) Register(ctx context.Context, name, description string, operations []Operation) error {
	if name == s.addr.Name {
		return errors.New(errors.CodeInvalidArgument, "agent type '"+name+"' is reserved", nil)
	}

	s.mu.Lock()
	if _, ok := s.schemas.Get(name); ok {
		s.mu.Unlock()
		return errors.New(errors.CodeAlreadyExists, "agent type '"+name+"' already registered", nil)
	}
	schema := Schema{Name: name, Description: description, Operations: operations}
	s.schemas.Insert(name, schema)
	subscriptions := s.snapshotSubscriptions()
	s.mu.Unlock()

	for addr, query := range subscriptions {
		if !query.Matches(name) {
			continue
		}
		msg := &AgentsRegistered{Agents: []Schema{{Name: schema.Name, Description: schema.Description}}}
		s.notify(ctx, addr, msg)
	}
	return nil
}

// Deregister removes names (or every registered type, if none given) from
// this server's local registry, notifying matching subscribers.
func (s *Server) Deregister(ctx context.Context, names ...string) error {
	s.mu.Lock()
	var removed []string
	if len(names) > 0 {
		for _, name := range names {
			if _, ok := s.schemas.Get(name); ok {
				s.schemas.Delete(name)
				removed = append(removed, name)
			}
		}
	} else {
		for _, schema := range s.schemas.Values("") {
			removed = append(removed, schema.Name)
		}
		for _, name := range removed {
			s.schemas.Delete(name)
		}
	}
	subscriptions := s.snapshotSubscriptions()
	s.mu.Unlock()

	for addr, query := range subscriptions {
		var matched []Schema
		for _, name := range removed {
			if query.Matches(name) {
				matched = append(matched, Schema{Name: name})
			}
		}
		if len(matched) > 0 {
			s.notify(ctx, addr, &AgentsDeregistered{Agents: matched})
		}
	}
	return nil
}

func (s *Server) snapshotSubscriptions() map[address.Address]DiscoveryQuery {
	out := make(map[address.Address]DiscoveryQuery, len(s.subscriptions))
	for addr, query := range s.subscriptions {
		out[addr] = query
	}
	return out
}

func (s *Server) notify(ctx context.Context, addr address.Address, m message.Message) {
	raw, err := message.Encode(m)
	if err != nil {
		return
	}
	if _, err := s.ch.Publish(ctx, addr, raw, channel.WithoutProbe()); err != nil {
		logger.L().WarnContext(ctx, "failed to notify discovery subscriber", "addr", addr.String(), "error", err)
	}
}

func (s *Server) handleSearch(ctx context.Context, msg *DiscoveryQuery) (message.Message, error) {
	s.mu.RLock()
	var schemas []Schema
	if msg.Recursive {
		schemas = s.schemas.Values(msg.Namespace)
	} else {
		schemas = s.schemas.DirectValues(msg.Namespace)
	}
	s.mu.RUnlock()

	agents := make([]Schema, 0, len(schemas))
	for _, schema := range schemas {
		if !msg.Inclusive && schema.Name == msg.Namespace {
			continue
		}
		out := Schema{Name: schema.Name, Description: schema.Description}
		if msg.Detailed {
			out.Operations = schema.Operations
		}
		agents = append(agents, out)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	return &DiscoveryReply{Agents: agents}, nil
}

func (s *Server) handleSynchronize(ctx context.Context, msg *synchronizeQuery) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make(map[string]DiscoveryQuery, len(s.subscriptions))
	for addr, query := range s.subscriptions {
		subs[addr.Topic()] = query
	}
	return &synchronizeReply{Subscriptions: subs}, nil
}

func (s *Server) handleSubscribe(ctx context.Context, msg *SubscribeToAgentUpdates) (message.Message, error) {
	s.mu.Lock()
	s.subscriptions[msg.Sender] = msg.Query
	s.mu.Unlock()
	return nil, nil
}

func (s *Server) handleUnsubscribe(ctx context.Context, msg *UnsubscribeFromAgentUpdates) (message.Message, error) {
	s.mu.Lock()
	delete(s.subscriptions, msg.Sender)
	s.mu.Unlock()
	return nil, nil
}
