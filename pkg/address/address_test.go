package address_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
)

func TestTopicRoundTrip(t *testing.T) {
	cases := []address.Address{
		address.New("weather", "session-1"),
		address.New("weather", ""),
		{Name: "discovery"},
		{Name: "discovery.server"},
	}

	for _, a := range cases {
		topic := a.Topic()
		back, err := address.FromTopic(topic)
		require.NoError(t, err)
		assert.Equal(t, a, back, "topic=%q", topic)
	}
}

func TestTopicShapes(t *testing.T) {
	assert.Equal(t, "coagent.factory.weather", address.New("weather", "").Topic())
	assert.Equal(t, "coagent.agent.weather.session-1", address.New("weather", "session-1").Topic())
	assert.Equal(t, "coagent.discovery", address.Address{Name: "discovery"}.Topic())
	assert.Equal(t, "coagent.discovery.server", address.Address{Name: "discovery.server"}.Topic())
}

func TestFromTopicRejectsUnknownPrefix(t *testing.T) {
	_, err := address.FromTopic("nonsense.topic")
	assert.Error(t, err)
}

func TestIsReplyAndIsSingleton(t *testing.T) {
	reply, err := address.FromTopic("_INBOX.abc123")
	require.NoError(t, err)
	assert.True(t, reply.IsReply())
	assert.False(t, reply.IsSingleton())

	singleton := address.Address{Name: "discovery"}
	assert.True(t, singleton.IsSingleton())
	assert.False(t, singleton.IsReply())
}

func TestFromTopicSessionIDContainingDots(t *testing.T) {
	// FromTopic's first-dot-split quirk: everything after the first "." in
	// the relative portion becomes the ID, even if it contains more dots.
	a, err := address.FromTopic("coagent.agent.weather.session.with.dots")
	require.NoError(t, err)
	assert.Equal(t, "weather", a.Name)
	assert.Equal(t, "session.with.dots", a.ID)
}
