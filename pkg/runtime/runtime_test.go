package runtime_test

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
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"github.com/chris-alexander-pop/agentcore/pkg/runtime"
)

type greetRequest struct{ message.Envelope }

func (*greetRequest) Type() string { return "greetRequest" }

type greetReply struct{ message.Envelope }

func (*greetReply) Type() string { return "greetReply" }

func init() {
	message.Register[*greetRequest]()
	message.Register[*greetReply]()
}

func TestRuntimeRegisterAndPublish(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New(channel.New(inproc.New()))
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop(ctx)

	spawn := func(sessionID string) agent.Agent {
		base := agent.NewBaseAgent(address.New("greeter", sessionID), rt.Channel())
		agent.RegisterHandler(base, func(ctx context.Context, msg *greetRequest) (message.Message, error) {
			return &greetReply{}, nil
		})
		return base
	}
	require.NoError(t, rt.Register(ctx, "greeter", spawn))

	raw, err := message.Encode(&greetRequest{})
	require.NoError(t, err)

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	reply, err := rt.Channel().Publish(reqCtx, address.New("greeter", "s1"), raw, channel.WithRequest())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "greetReply", reply.Header.Type)
}

func TestRuntimeRegisterSpecDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New(channel.New(inproc.New()))
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop(ctx)

	spawn := func(sessionID string) agent.Agent {
		return agent.NewBaseAgent(address.New("dup", sessionID), rt.Channel())
	}
	require.NoError(t, rt.Register(ctx, "dup", spawn))
	assert.Error(t, rt.Register(ctx, "dup", spawn))
}

func TestRuntimeDeregisterStopsFactory(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New(channel.New(inproc.New()))
	require.NoError(t, rt.Start(ctx))
	defer rt.Stop(ctx)

	spawn := func(sessionID string) agent.Agent {
		return agent.NewBaseAgent(address.New("temp", sessionID), rt.Channel())
	}
	require.NoError(t, rt.Register(ctx, "temp", spawn))
	require.NoError(t, rt.Deregister(ctx, "temp"))
	// re-registering after deregister should succeed since the name is free again.
	require.NoError(t, rt.Register(ctx, "temp", spawn))
}
