package main

import (
	"fmt"
	"strings"

	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/nats"
)

// dialChannel builds a channel.Channel for broker, picking the driver by
// URL scheme: nats://... talks to a real broker, inproc talks to a
// process-local one (for smoke testing without a broker running), and
// http(s)://... talks to a bridge.Server over HTTP/SSE.
func dialChannel(broker string) (channel.Channel, error) {
	switch {
	case strings.HasPrefix(broker, "nats://"), strings.HasPrefix(broker, "tls://"):
		return channel.New(nats.New(nats.Config{URL: broker})), nil
	case broker == "inproc", broker == "":
		return channel.New(inproc.New()), nil
	case strings.HasPrefix(broker, "http://"), strings.HasPrefix(broker, "https://"):
		return newBridgeChannel(broker), nil
	default:
		return nil, fmt.Errorf("unrecognized broker URL %q: expected nats://, tls://, http(s)://, or \"inproc\"", broker)
	}
}
