package channel_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	"github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

func newChannel(t *testing.T) channel.Channel {
	t.Helper()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(context.Background()))
	t.Cleanup(func() { ch.Close(context.Background()) })
	return ch
}

func TestPublishFireAndForget(t *testing.T) {
	ch := newChannel(t)
	addr := address.Address{Name: "topic-only"}

	received := make(chan message.RawMessage, 1)
	_, err := ch.Subscribe(context.Background(), addr, func(ctx context.Context, raw message.RawMessage) {
		received <- raw
	})
	require.NoError(t, err)

	raw := message.RawMessage{Header: message.Header{Type: "x"}}
	reply, err := ch.Publish(context.Background(), addr, raw)
	require.NoError(t, err)
	assert.Nil(t, reply)

	select {
	case got := <-received:
		assert.Equal(t, "x", got.Header.Type)
	case <-time.After(time.Second):
		t.Fatal("message was never delivered")
	}
}

func TestPublishRequestTimesOutWithNoSubscriber(t *testing.T) {
	ch := newChannel(t)
	addr := address.Address{Name: "nobody-home"}

	raw := message.RawMessage{Header: message.Header{Type: "x"}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := ch.Publish(ctx, addr, raw, channel.WithRequest(), channel.WithTimeout(100*time.Millisecond))
	assert.Nil(t, reply)
	assert.True(t, errors.Is(err, channel.CodeDeliverTimeout))
}

func TestPublishSurfacesRemoteError(t *testing.T) {
	ch := newChannel(t)
	addr := address.Address{Name: "erroring"}

	_, err := ch.Subscribe(context.Background(), addr, func(ctx context.Context, raw message.RawMessage) {
		if raw.Reply == nil {
			return
		}
		errRaw, encErr := message.Encode(&message.Error{Code: "INTERNAL", Message: "boom"})
		if encErr != nil {
			return
		}
		ch.Publish(ctx, *raw.Reply, errRaw, channel.WithoutProbe())
	})
	require.NoError(t, err)

	raw := message.RawMessage{Header: message.Header{Type: "x"}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := ch.Publish(ctx, addr, raw, channel.WithRequest())
	assert.Nil(t, reply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, "INTERNAL"))
}

func TestPublishMultiStreamsUntilStopIteration(t *testing.T) {
	ch := newChannel(t)
	addr := address.Address{Name: "streamer"}

	_, err := ch.Subscribe(context.Background(), addr, func(ctx context.Context, raw message.RawMessage) {
		if raw.Reply == nil {
			return
		}
		for i := 0; i < 3; i++ {
			chunk, _ := message.Encode(&message.Empty{})
			ch.Publish(ctx, *raw.Reply, chunk, channel.WithoutProbe())
		}
		stop, _ := message.Encode(&message.StopIteration{})
		ch.Publish(ctx, *raw.Reply, stop, channel.WithoutProbe())
	})
	require.NoError(t, err)

	raw := message.RawMessage{Header: message.Header{Type: "x"}}
	it, err := ch.PublishMulti(context.Background(), addr, raw)
	require.NoError(t, err)
	defer it.Close(context.Background())

	count := 0
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := it.Next(ctx)
		cancel()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		count++
	}
	assert.Equal(t, 3, count)
}

func TestProbeSkippedForFactoryAndSingletonAddresses(t *testing.T) {
	ch := newChannel(t)

	// A factory address (empty ID) never triggers a probe, so publishing
	// without a subscriber and without WithRequest just succeeds silently.
	_, err := ch.Publish(context.Background(), address.New("anything", ""), message.RawMessage{Header: message.Header{Type: "x"}})
	assert.NoError(t, err)

	// A singleton address is not probed either, even when it carries an ID.
	_, err = ch.Publish(context.Background(), address.Address{Name: "discovery", ID: "x"}, message.RawMessage{Header: message.Header{Type: "x"}})
	assert.NoError(t, err)
}
