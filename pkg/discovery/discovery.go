// Package discovery implements agent-type discovery: a process-local
// DiscoveryServer that tracks locally registered agent types, and a
// cluster-wide Aggregator that scatters a query to every server and
// gathers their replies.
package discovery

import (
	"strings"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

const separator = "."

// Operation describes one handler an agent type exposes, used by the
// detailed discovery view.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Schema describes a registered agent type.
type Schema struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Operations  []Operation `json:"operations,omitempty"`
}

// DiscoveryQuery asks for the agent types registered under a namespace.
type DiscoveryQuery struct {
	message.Envelope
	Namespace string `json:"namespace"`
	Recursive bool   `json:"recursive"`
	Inclusive bool   `json:"inclusive"`
	Detailed  bool   `json:"detailed"`
}

func (*DiscoveryQuery) Type() string { return "DiscoveryQuery" }

// Matches reports whether name (an agent type) satisfies the query: it
// must sit under Namespace, and either be Namespace itself (only counted
// when Inclusive), a direct child, or — when Recursive — any descendant.
func (q *DiscoveryQuery) Matches(name string) bool {
	if name == "" {
		return false
	}

	if q.Namespace == "" {
		if q.Recursive {
			return true
		}
		return !strings.Contains(name, separator)
	}

	if name == q.Namespace {
		return q.Inclusive
	}

	childPrefix := q.Namespace + separator
	if !strings.HasPrefix(name, childPrefix) {
		return false
	}
	if q.Recursive {
		return true
	}
	return !strings.Contains(strings.TrimPrefix(name, childPrefix), separator)
}

// DiscoveryReply carries the agent schemas a query matched.
type DiscoveryReply struct {
	message.Envelope
	Agents []Schema `json:"agents"`
}

func (*DiscoveryReply) Type() string { return "DiscoveryReply" }

// SubscribeToAgentUpdates asks to be notified whenever an agent type
// matching Query registers or deregisters.
type SubscribeToAgentUpdates struct {
	message.Envelope
	Sender address.Address `json:"sender"`
	Query  DiscoveryQuery  `json:"query"`
}

func (*SubscribeToAgentUpdates) Type() string { return "SubscribeToAgentUpdates" }

// UnsubscribeFromAgentUpdates cancels a prior SubscribeToAgentUpdates.
type UnsubscribeFromAgentUpdates struct {
	message.Envelope
	Sender address.Address `json:"sender"`
}

func (*UnsubscribeFromAgentUpdates) Type() string { return "UnsubscribeFromAgentUpdates" }

// AgentsRegistered notifies a subscriber that agents have registered.
type AgentsRegistered struct {
	message.Envelope
	Agents []Schema `json:"agents"`
}

func (*AgentsRegistered) Type() string { return "AgentsRegistered" }

// AgentsDeregistered notifies a subscriber that agents have deregistered.
type AgentsDeregistered struct {
	message.Envelope
	Agents []Schema `json:"agents"`
}

func (*AgentsDeregistered) Type() string { return "AgentsDeregistered" }

// synchronizeQuery asks a discovery server for its current subscriptions,
// used when a new server instance joins and needs to catch up with its
// peers.
type synchronizeQuery struct{ message.Envelope }

func (*synchronizeQuery) Type() string { return "_SynchronizeQuery" }

type synchronizeReply struct {
	message.Envelope
	Subscriptions map[string]DiscoveryQuery `json:"subscriptions"`
}

func (*synchronizeReply) Type() string { return "_SynchronizeReply" }

func init() {
	message.Register[*DiscoveryQuery]()
	message.Register[*DiscoveryReply]()
	message.Register[*SubscribeToAgentUpdates]()
	message.Register[*UnsubscribeFromAgentUpdates]()
	message.Register[*AgentsRegistered]()
	message.Register[*AgentsDeregistered]()
	message.Register[*synchronizeQuery]()
	message.Register[*synchronizeReply]()
}
