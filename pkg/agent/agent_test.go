package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/agent"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	pkgerrors "github.com/chris-alexander-pop/agentcore/pkg/errors"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

type echoRequest struct {
	message.Envelope
	Text string `json:"text"`
}

func (*echoRequest) Type() string { return "echoRequest" }

type echoReply struct {
	message.Envelope
	Text string `json:"text"`
}

func (*echoReply) Type() string { return "echoReply" }

type blockRequest struct {
	message.Envelope
}

func (*blockRequest) Type() string { return "blockRequest" }

func init() {
	message.Register[*echoRequest]()
	message.Register[*echoReply]()
	message.Register[*blockRequest]()
}

func newTestChannel(ctx context.Context, t *testing.T) channel.Channel {
	t.Helper()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(ctx))
	t.Cleanup(func() { ch.Close(context.Background()) })
	return ch
}

func TestBaseAgentRequestReply(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(ctx, t)

	addr := address.New("echo", "session-1")
	base := agent.NewBaseAgent(addr, ch)
	agent.RegisterHandler(base, func(ctx context.Context, msg *echoRequest) (message.Message, error) {
		return &echoReply{Text: msg.Text}, nil
	})
	require.NoError(t, base.Start(ctx))
	defer base.Stop(ctx)

	raw, err := message.Encode(&echoRequest{Text: "hi"})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := ch.Publish(reqCtx, addr, raw, channel.WithRequest(), channel.WithoutProbe())
	require.NoError(t, err)
	require.NotNil(t, reply)

	decoded, err := message.Decode[*echoReply](*reply)
	require.NoError(t, err)
	assert.Equal(t, "hi", decoded.Text)
}

func TestBaseAgentCancelStopsInFlightHandler(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(ctx, t)

	addr := address.New("blocker", "session-1")
	base := agent.NewBaseAgent(addr, ch)

	cancelled := make(chan struct{}, 1)
	agent.RegisterHandler(base, func(ctx context.Context, msg *blockRequest) (message.Message, error) {
		<-ctx.Done()
		cancelled <- struct{}{}
		return nil, ctx.Err()
	})
	require.NoError(t, base.Start(ctx))
	defer base.Stop(ctx)

	raw, err := message.Encode(&blockRequest{})
	require.NoError(t, err)

	reqCtx, cancelReq := context.WithTimeout(ctx, time.Second)
	defer cancelReq()
	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Publish(reqCtx, addr, raw, channel.WithRequest(), channel.WithoutProbe())
		errCh <- err
	}()

	// give the handler a moment to start, then cancel it.
	time.Sleep(20 * time.Millisecond)
	cancelRaw, err := message.Encode(&message.Cancel{})
	require.NoError(t, err)
	_, err = ch.Publish(ctx, addr, cancelRaw, channel.WithoutProbe())
	require.NoError(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler was not cancelled")
	}

	// base.Publish converts an Error-typed reply into a Go error, so the
	// cancelled handler's reply surfaces here rather than as a RawMessage.
	replyErr := <-errCh
	require.Error(t, replyErr)
	assert.True(t, pkgerrors.Is(replyErr, message.ErrCodeCancelled), "expected cancelled error, got %v", replyErr)
}

func TestBaseAgentProbeIsDropped(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(ctx, t)

	addr := address.New("probeable", "session-1")
	base := agent.NewBaseAgent(addr, ch)
	require.NoError(t, base.Start(ctx))
	defer base.Stop(ctx)

	raw, err := message.Encode(&message.ProbeAgent{})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	reply, err := ch.Publish(reqCtx, addr, raw, channel.WithRequest(), channel.WithTimeout(150*time.Millisecond), channel.WithoutProbe())
	assert.Error(t, err)
	assert.Nil(t, reply)
}

func TestBaseAgentUnknownTypeGetsDecodeError(t *testing.T) {
	ctx := context.Background()
	ch := newTestChannel(ctx, t)

	addr := address.New("silent", "session-1")
	base := agent.NewBaseAgent(addr, ch)
	require.NoError(t, base.Start(ctx))
	defer base.Stop(ctx)

	raw := message.RawMessage{Header: message.Header{Type: "NoSuchType"}}
	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err := ch.Publish(reqCtx, addr, raw, channel.WithRequest(), channel.WithoutProbe())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, message.ErrCodeDecode), "expected decode error, got %v", err)
}
