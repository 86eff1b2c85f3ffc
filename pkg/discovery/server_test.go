package discovery

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

func namesOf(agents []Schema) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name
	}
	sort.Strings(out)
	return out
}

func search(t *testing.T, ch channel.Channel, addr address.Address, q DiscoveryQuery) []Schema {
	t.Helper()
	raw, err := message.Encode(&q)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := ch.Publish(ctx, addr, raw, channel.WithRequest())
	require.NoError(t, err)
	require.NotNil(t, reply)

	decoded, err := message.Decode[*DiscoveryReply](*reply)
	require.NoError(t, err)
	return decoded.Agents
}

// TestServerSearch reproduces the exact registry/expectations fixture from
// the original discovery search docstring.
func TestServerSearch(t *testing.T) {
	ch := channel.New(inproc.New())
	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	srv := NewServer(address.New("discovery.server", ""), ch)
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop(ctx)

	for _, name := range []string{"a", "a.x", "a.x.0", "a.y", "a.y.0", "b", "b.x", "b.y", "b.z.0"} {
		require.NoError(t, srv.Register(ctx, name, "", nil))
	}

	cases := []struct {
		namespace string
		recursive bool
		want      []string
	}{
		{"", false, []string{"a", "b"}},
		{"", true, []string{"a", "a.x", "a.x.0", "a.y", "a.y.0", "b", "b.x", "b.y", "b.z.0"}},
		{"a", false, []string{"a", "a.x", "a.y"}},
		{"a", true, []string{"a", "a.x", "a.x.0", "a.y", "a.y.0"}},
		{"b", false, []string{"b", "b.x", "b.y"}},
		{"b", true, []string{"b", "b.x", "b.y", "b.z.0"}},
	}

	for _, tc := range cases {
		agents := search(t, ch, srv.Address(), DiscoveryQuery{Namespace: tc.namespace, Recursive: tc.recursive, Inclusive: true})
		assert.Equal(t, tc.want, namesOf(agents), "namespace=%q recursive=%v", tc.namespace, tc.recursive)
	}
}

func TestServerSearchExclusive(t *testing.T) {
	ch := channel.New(inproc.New())
	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	srv := NewServer(address.New("discovery.server", ""), ch)
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop(ctx)

	require.NoError(t, srv.Register(ctx, "a", "root", nil))
	require.NoError(t, srv.Register(ctx, "a.x", "child", nil))

	agents := search(t, ch, srv.Address(), DiscoveryQuery{Namespace: "a", Recursive: false, Inclusive: false})
	assert.Equal(t, []string{"a.x"}, namesOf(agents))
}

func TestServerRegisterDuplicateAndReservedRejected(t *testing.T) {
	ch := channel.New(inproc.New())
	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))
	defer ch.Close(ctx)

	srv := NewServer(address.New("discovery.server", ""), ch)
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop(ctx)

	require.NoError(t, srv.Register(ctx, "a", "", nil))
	assert.Error(t, srv.Register(ctx, "a", "", nil))
	assert.Error(t, srv.Register(ctx, "discovery.server", "", nil))
}
