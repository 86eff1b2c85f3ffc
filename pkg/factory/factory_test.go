package factory_test

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
	"github.com/chris-alexander-pop/agentcore/pkg/factory"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

type pingMsg struct{ message.Envelope }

func (*pingMsg) Type() string { return "ping" }

type pongMsg struct{ message.Envelope }

func (*pongMsg) Type() string { return "pong" }

func init() {
	message.Register[*pingMsg]()
	message.Register[*pongMsg]()
}

func spawnEcho(ch channel.Channel, spawned *int) factory.Spawn {
	return func(sessionID string) agent.Agent {
		*spawned++
		base := agent.NewBaseAgent(address.New("echo", sessionID), ch)
		agent.RegisterHandler(base, func(ctx context.Context, msg *pingMsg) (message.Message, error) {
			return &pongMsg{}, nil
		})
		return base
	}
}

func TestFactorySpawnsOnDemandAndReusesAgent(t *testing.T) {
	ctx := context.Background()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	spawned := 0
	f := factory.New("echo", ch, spawnEcho(ch, &spawned))
	require.NoError(t, f.Start(ctx))
	defer f.Stop(ctx)

	addr := address.New("echo", "session-a")
	raw, err := message.Encode(&pingMsg{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		reply, err := ch.Publish(reqCtx, addr, raw, channel.WithRequest())
		cancel()
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, "pong", reply.Header.Type)
	}

	assert.Equal(t, 1, spawned, "the same session agent should be reused across requests")
}

func TestFactorySpawnsSeparateAgentsPerSession(t *testing.T) {
	ctx := context.Background()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	spawned := 0
	f := factory.New("echo", ch, spawnEcho(ch, &spawned))
	require.NoError(t, f.Start(ctx))
	defer f.Stop(ctx)

	for _, session := range []string{"a", "b"} {
		addr := address.New("echo", session)
		raw, err := message.Encode(&pingMsg{})
		require.NoError(t, err)

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err = ch.Publish(reqCtx, addr, raw, channel.WithRequest())
		cancel()
		require.NoError(t, err)
	}

	assert.Equal(t, 2, spawned)
}

func TestFactoryDeleteAgentStopsIt(t *testing.T) {
	ctx := context.Background()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	spawned := 0
	f := factory.New("echo", ch, spawnEcho(ch, &spawned))
	require.NoError(t, f.Start(ctx))
	defer f.Stop(ctx)

	addr := address.New("echo", "session-a")
	raw, err := message.Encode(&pingMsg{})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	_, err = ch.Publish(reqCtx, addr, raw, channel.WithRequest())
	cancel()
	require.NoError(t, err)

	deleteRaw, err := message.Encode(&factory.DeleteAgent{SessionID: "session-a"})
	require.NoError(t, err)
	factoryAddr := address.New("echo", "")
	_, err = ch.Publish(ctx, factoryAddr, deleteRaw, channel.WithoutProbe())
	require.NoError(t, err)

	// give the delete handler a moment to run, then check the agent is
	// respawned (and counted again) on the next request.
	time.Sleep(50 * time.Millisecond)

	reqCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	_, err = ch.Publish(reqCtx2, addr, raw, channel.WithRequest())
	cancel2()
	require.NoError(t, err)

	assert.Equal(t, 2, spawned, "agent should be respawned after deletion")
}

func TestFactoryRecyclesIdleAgent(t *testing.T) {
	ctx := context.Background()
	ch := channel.New(inproc.New())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	spawned := 0
	f := factory.New("echo", ch, spawnEcho(ch, &spawned),
		factory.WithFactoryIdleTimeout(50*time.Millisecond),
		factory.WithRecycleInterval(100*time.Millisecond))
	require.NoError(t, f.Start(ctx))
	defer f.Stop(ctx)

	addr := address.New("echo", "session-a")
	raw, err := message.Encode(&pingMsg{})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	_, err = ch.Publish(reqCtx, addr, raw, channel.WithRequest())
	cancel()
	require.NoError(t, err)
	require.Equal(t, 1, spawned)

	// idle past the timeout and let the recycle tick sweep it.
	time.Sleep(300 * time.Millisecond)

	reqCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	_, err = ch.Publish(reqCtx2, addr, raw, channel.WithRequest())
	cancel2()
	require.NoError(t, err)

	assert.Equal(t, 2, spawned, "idle agent should have been recycled and respawned on next request")
}
