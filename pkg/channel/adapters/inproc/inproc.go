// Package inproc implements channel.Driver for a single process, with no
// external broker dependency. It is used by tests and standalone examples.
package inproc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

// Driver is an in-memory implementation of channel.Driver. Subscribers on
// the same topic and queue group are load-balanced round robin; subscribers
// in different (or no) queue groups all receive every message, matching
// NATS fan-out semantics.
type Driver struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	inbox  atomic.Int64
}

type topicState struct {
	mu          sync.Mutex
	direct      []*subscriber
	queueGroups map[string][]*subscriber
	rrIndex     map[string]int
}

type subscriber struct {
	id      int64
	topic   string
	handler func(message.RawMessage)
}

// New creates a new in-process driver.
func New() *Driver {
	return &Driver{topics: make(map[string]*topicState)}
}

func (d *Driver) Connect(ctx context.Context) error { return nil }
func (d *Driver) Close(ctx context.Context) error   { return nil }

func (d *Driver) NewReplyTopic(ctx context.Context) (string, error) {
	n := d.inbox.Add(1)
	return fmt.Sprintf("_INBOX.%d", n), nil
}

func (d *Driver) state(topic string) *topicState {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.topics[topic]
	if !ok {
		t = &topicState{queueGroups: make(map[string][]*subscriber), rrIndex: make(map[string]int)}
		d.topics[topic] = t
	}
	return t
}

func (d *Driver) PublishRaw(ctx context.Context, topic string, raw message.RawMessage) error {
	d.mu.RLock()
	t, ok := d.topics[topic]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	var targets []*subscriber
	targets = append(targets, t.direct...)
	for group, subs := range t.queueGroups {
		if len(subs) == 0 {
			continue
		}
		idx := t.rrIndex[group] % len(subs)
		t.rrIndex[group] = idx + 1
		targets = append(targets, subs[idx])
	}
	t.mu.Unlock()

	for _, s := range targets {
		sub := s
		go sub.handler(raw)
	}
	return nil
}

func (d *Driver) SubscribeRaw(ctx context.Context, topic, queue string, handler func(message.RawMessage)) (channel.Subscription, error) {
	t := d.state(topic)
	sub := &subscriber{id: d.inbox.Add(1), topic: topic, handler: handler}

	t.mu.Lock()
	if queue == "" {
		t.direct = append(t.direct, sub)
	} else {
		t.queueGroups[queue] = append(t.queueGroups[queue], sub)
	}
	t.mu.Unlock()

	return &subscription{driver: d, topic: topic, queue: queue, sub: sub}, nil
}

type subscription struct {
	driver *Driver
	topic  string
	queue  string
	sub    *subscriber
}

func (s *subscription) Unsubscribe(ctx context.Context) error {
	t := s.driver.state(s.topic)
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.queue == "" {
		t.direct = removeSub(t.direct, s.sub)
		return nil
	}
	t.queueGroups[s.queue] = removeSub(t.queueGroups[s.queue], s.sub)
	return nil
}

func removeSub(subs []*subscriber, target *subscriber) []*subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s.id != target.id {
			out = append(out, s)
		}
	}
	return out
}
