package bridge_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/address"
	"github.com/chris-alexander-pop/agentcore/pkg/agent"
	"github.com/chris-alexander-pop/agentcore/pkg/bridge"
	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	"github.com/chris-alexander-pop/agentcore/pkg/message"
	"github.com/chris-alexander-pop/agentcore/pkg/runtime"
)

type helloRequest struct{ message.Envelope }

func (*helloRequest) Type() string { return "helloRequest" }

type helloReply struct {
	message.Envelope
	Greeting string `json:"greeting"`
}

func (*helloReply) Type() string { return "helloReply" }

func init() {
	message.Register[*helloRequest]()
	message.Register[*helloReply]()
}

func startTestServer(t *testing.T) (*httptest.Server, *runtime.Runtime) {
	t.Helper()
	ctx := context.Background()
	rt := runtime.New(channel.New(inproc.New()))
	require.NoError(t, rt.Start(ctx))

	spawn := func(sessionID string) agent.Agent {
		base := agent.NewBaseAgent(address.New("hello", sessionID), rt.Channel())
		agent.RegisterHandler(base, func(ctx context.Context, msg *helloRequest) (message.Message, error) {
			return &helloReply{Greeting: "hi"}, nil
		})
		return base
	}
	require.NoError(t, rt.Register(ctx, "hello", spawn))

	srv := httptest.NewServer(bridge.NewServer(rt))
	t.Cleanup(func() {
		srv.Close()
		rt.Stop(context.Background())
	})
	return srv, rt
}

func TestBridgePublish(t *testing.T) {
	srv, _ := startTestServer(t)

	body := map[string]any{
		"addr": map[string]string{"name": "hello", "id": "s1"},
		"msg": map[string]any{
			"header": map[string]string{"type": "helloRequest"},
		},
		"request":    true,
		"timeout_ms": 2000,
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/publish", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Header struct {
			Type string `json:"type"`
		} `json:"header"`
		Content json.RawMessage `json:"content"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "helloReply", out.Header.Type)
	assert.JSONEq(t, `{"greeting":"hi"}`, string(out.Content))
}

func TestBridgeReplyTopics(t *testing.T) {
	srv, _ := startTestServer(t)

	resp, err := http.Post(srv.URL+"/reply-topics", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Topic string `json:"topic"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Topic)
}

func TestBridgePublishUnknownAgentTimesOut(t *testing.T) {
	srv, _ := startTestServer(t)

	body := map[string]any{
		"addr": map[string]string{"name": "nonexistent", "id": "s1"},
		"msg": map[string]any{
			"header": map[string]string{"type": "helloRequest"},
		},
		"request":    true,
		"timeout_ms": 100,
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	start := time.Now()
	resp, err := http.Post(srv.URL+"/publish", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, resp.StatusCode >= 400)
	assert.Less(t, time.Since(start), 5*time.Second)
}
