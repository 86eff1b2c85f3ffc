package inproc_test

import (
	"testing"

	"github.com/chris-alexander-pop/agentcore/pkg/channel"
	"github.com/chris-alexander-pop/agentcore/pkg/channel/adapters/inproc"
	channeltests "github.com/chris-alexander-pop/agentcore/pkg/channel/tests"
	"github.com/chris-alexander-pop/agentcore/pkg/test"
)

type InprocChannelTestSuite struct {
	channeltests.ChannelTestSuite
}

func (s *InprocChannelTestSuite) SetupTest() {
	s.ChannelTestSuite.SetupTest()
	s.Ch = channel.New(inproc.New())
	s.Require().NoError(s.Ch.Connect(s.Ctx))
}

func TestInprocChannelConformance(t *testing.T) {
	test.Run(t, new(InprocChannelTestSuite))
}
