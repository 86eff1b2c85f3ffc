// Package address implements the bijection between agent addresses and the
// topic strings they are published/subscribed under.
package address

import (
	"strings"

	"github.com/chris-alexander-pop/agentcore/pkg/errors"
)

const (
	factoryTopicPrefix = "coagent.factory."
	agentTopicPrefix   = "coagent.agent."
	replyTopicPrefix   = "_INBOX."
)

// agentTypesToTopics maps singleton agent type names to their fixed topic.
var agentTypesToTopics = map[string]string{
	"discovery":        "coagent.discovery",
	"discovery.server": "coagent.discovery.server",
}

var topicsToAgentTypes = func() map[string]string {
	m := make(map[string]string, len(agentTypesToTopics))
	for k, v := range agentTypesToTopics {
		m[v] = k
	}
	return m
}()

// Address identifies an agent: its type (Name) and, for session agents
// spawned by a Factory, its session id (ID). A zero-value ID addresses the
// factory for Name itself.
type Address struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// New builds an Address for a session agent, or a factory address when id
// is empty.
func New(name, id string) Address {
	return Address{Name: name, ID: id}
}

// IsReply reports whether this address is an ephemeral reply inbox.
func (a Address) IsReply() bool {
	return strings.HasPrefix(a.Name, replyTopicPrefix)
}

// IsSingleton reports whether Name designates a process-wide singleton
// agent (currently: discovery and discovery.server) rather than a
// factory/session agent.
func (a Address) IsSingleton() bool {
	_, ok := agentTypesToTopics[a.Name]
	return ok
}

// Topic returns the canonical topic string for this address.
func (a Address) Topic() string {
	if topic, ok := agentTypesToTopics[a.Name]; ok {
		return topic
	}
	if a.IsReply() {
		return a.Name
	}
	if a.ID != "" {
		return agentTopicPrefix + a.Name + "." + a.ID
	}
	return factoryTopicPrefix + a.Name
}

// FromTopic parses a topic string back into an Address. It is the inverse
// of Topic for singleton, reply and factory topics, and for session topics
// whose agent name contains no "."; a session topic is split at the first
// "." after its prefix, so any further dots become part of the ID.
func FromTopic(topic string) (Address, error) {
	if name, ok := topicsToAgentTypes[topic]; ok {
		return Address{Name: name}, nil
	}
	if strings.HasPrefix(topic, replyTopicPrefix) {
		return Address{Name: topic}, nil
	}

	var relative string
	switch {
	case strings.HasPrefix(topic, agentTopicPrefix):
		relative = strings.TrimPrefix(topic, agentTopicPrefix)
	case strings.HasPrefix(topic, factoryTopicPrefix):
		return Address{Name: strings.TrimPrefix(topic, factoryTopicPrefix)}, nil
	default:
		return Address{}, errors.New(errors.CodeInvalidArgument, "invalid topic: "+topic, nil)
	}

	name, id, found := strings.Cut(relative, ".")
	if !found {
		return Address{Name: name}, nil
	}
	return Address{Name: name, ID: id}, nil
}

func (a Address) String() string {
	return a.Topic()
}
