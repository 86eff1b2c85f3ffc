package inproc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

func TestFanOutDeliversToAllDirectSubscribers(t *testing.T) {
	ctx := context.Background()
	d := inproc.New()
	require.NoError(t, d.Connect(ctx))
	defer d.Close(ctx)

	var mu sync.Mutex
	var got []string

	for _, id := range []string{"one", "two"} {
		id := id
		_, err := d.SubscribeRaw(ctx, "topic", "", func(raw message.RawMessage) {
			mu.Lock()
			got = append(got, id)
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	require.NoError(t, d.PublishRaw(ctx, "topic", message.RawMessage{Header: message.Header{Type: "x"}}))

	// PublishRaw hands each delivery to its own goroutine.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"one", "two"}, got)
}

func TestQueueGroupLoadBalances(t *testing.T) {
	ctx := context.Background()
	d := inproc.New()
	require.NoError(t, d.Connect(ctx))
	defer d.Close(ctx)

	var mu sync.Mutex
	counts := map[string]int{}

	for _, id := range []string{"worker-a", "worker-b"} {
		id := id
		_, err := d.SubscribeRaw(ctx, "topic", "workers", func(raw message.RawMessage) {
			mu.Lock()
			counts[id]++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, d.PublishRaw(ctx, "topic", message.RawMessage{Header: message.Header{Type: "x"}}))
	}

	// PublishRaw hands each delivery to its own goroutine.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["worker-a"]+counts["worker-b"] == 10
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, counts, 2, "both queue members should have received at least one message")
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 10, total)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	d := inproc.New()
	require.NoError(t, d.Connect(ctx))
	defer d.Close(ctx)

	received := 0
	sub, err := d.SubscribeRaw(ctx, "topic", "", func(raw message.RawMessage) {
		received++
	})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe(ctx))

	require.NoError(t, d.PublishRaw(ctx, "topic", message.RawMessage{Header: message.Header{Type: "x"}}))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, received)
}

func TestNewReplyTopicIsUnique(t *testing.T) {
	ctx := context.Background()
	d := inproc.New()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		topic, err := d.NewReplyTopic(ctx)
		require.NoError(t, err)
		assert.False(t, seen[topic], "reply topic %q generated twice", topic)
		seen[topic] = true
	}
}
