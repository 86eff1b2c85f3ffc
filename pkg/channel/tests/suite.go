// Package tests provides a channel.Channel conformance suite: adapter
// packages embed ChannelTestSuite and set Ch in SetupTest so the same
// request/reply and queue-group behavior is verified identically across
// every Driver binding.
package tests

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"github.com/chris-alexander-pop/agentcore/pkg/test"
)

// ChannelTestSuite exercises the channel.Channel contract independent of
// the underlying Driver. Concrete adapter test packages embed it and
// populate Ch (and call test.Suite.SetupTest) before each test runs.
type ChannelTestSuite struct {
	test.Suite
	Ch channel.Channel
}

func (s *ChannelTestSuite) TearDownTest() {
	if s.Ch != nil {
		s.Ch.Close(s.Ctx)
	}
}

// TestRequestReplyRoundTrip checks that a subscriber echoing a request back
// to its reply address satisfies a synchronous Publish(WithRequest()) call.
func (s *ChannelTestSuite) TestRequestReplyRoundTrip() {
	addr := address.Address{Name: "tests.echo"}
	_, err := s.Ch.Subscribe(s.Ctx, addr, func(ctx context.Context, raw message.RawMessage) {
		if raw.Reply == nil {
			return
		}
		s.Ch.Publish(ctx, *raw.Reply, raw, channel.WithoutProbe())
	})
	s.Require().NoError(err)

	raw := message.RawMessage{Header: message.Header{Type: "Ping"}}
	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()
	reply, err := s.Ch.Publish(ctx, addr, raw, channel.WithRequest())
	s.Require().NoError(err)
	s.Require().NotNil(reply)
	s.Equal("Ping", reply.Header.Type)
}

// TestQueueGroupLoadBalancesAcrossSubscribers checks that every message
// published to a queue-grouped topic lands on exactly one group member, and
// that the group as a whole receives every message.
func (s *ChannelTestSuite) TestQueueGroupLoadBalancesAcrossSubscribers() {
	addr := address.Address{Name: "tests.queue"}
	const group = "tests.queue_workers"
	const messages = 20

	var countA, countB int64
	_, err := s.Ch.Subscribe(s.Ctx, addr, func(context.Context, message.RawMessage) {
		atomic.AddInt64(&countA, 1)
	}, channel.WithQueue(group))
	s.Require().NoError(err)
	_, err = s.Ch.Subscribe(s.Ctx, addr, func(context.Context, message.RawMessage) {
		atomic.AddInt64(&countB, 1)
	}, channel.WithQueue(group))
	s.Require().NoError(err)

	for i := 0; i < messages; i++ {
		raw := message.RawMessage{Header: message.Header{Type: "x"}}
		_, err := s.Ch.Publish(s.Ctx, addr, raw)
		s.Require().NoError(err)
	}

	s.Eventually(func() bool {
		return atomic.LoadInt64(&countA)+atomic.LoadInt64(&countB) == messages
	}, time.Second, 5*time.Millisecond)
	s.Greater(atomic.LoadInt64(&countA), int64(0))
	s.Greater(atomic.LoadInt64(&countB), int64(0))
}

// TestNewReplyTopicIsEphemeralAndUnique checks that allocated reply topics
// are distinct and recognized as ephemeral reply addresses.
func (s *ChannelTestSuite) TestNewReplyTopicIsEphemeralAndUnique() {
	first, err := s.Ch.NewReplyTopic(s.Ctx)
	s.Require().NoError(err)
	second, err := s.Ch.NewReplyTopic(s.Ctx)
	s.Require().NoError(err)

	s.NotEqual(first, second)
	s.True(address.Address{Name: first}.IsReply())
}
