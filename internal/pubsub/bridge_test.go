package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/underbots/ipcbus/internal/testutils"
)

// BridgeTestSuite runs two buses over unix sockets, standing in for the
// GUI and the AI process.
type BridgeTestSuite struct {
	suite.Suite
	gui *Bus
	ai  *Bus
}

func (suite *BridgeTestSuite) SetupTest() {
	if testing.Short() {
		suite.T().Skip("skipping ipc integration test in short mode")
	}

	prefix := testutils.IPCPrefix(suite.T())
	var err error
	suite.gui, err = New(WithAddressPrefix(prefix), WithPollInterval(20*time.Millisecond))
	suite.Require().NoError(err)
	suite.ai, err = New(WithAddressPrefix(prefix), WithPollInterval(20*time.Millisecond))
	suite.Require().NoError(err)
}

func (suite *BridgeTestSuite) TearDownTest() {
	if suite.gui != nil {
		suite.gui.Shutdown()
	}
	if suite.ai != nil {
		suite.ai.Shutdown()
	}
}

func TestBridge(t *testing.T) {
	suite.Run(t, new(BridgeTestSuite))
}

func (suite *BridgeTestSuite) TestCommandsArriveInOrder() {
	const topic = "bridge_commands"

	received := make(chan Status, 16)
	suite.Require().NoError(RegisterCallback(suite.ai, topic, func(s Status) {
		received <- s
	}, KeepOnlyLast(false)))
	suite.Require().NoError(suite.ai.Start())

	suite.Require().NoError(suite.gui.Advertise(topic, KeepOnlyLast(false)))
	suite.Require().Eventually(func() bool {
		return suite.gui.Peers(topic) == 1
	}, 5*time.Second, 10*time.Millisecond)

	states := []string{"pause", "place_ball", "resume"}
	for i, state := range states {
		suite.Require().NoError(suite.gui.Publish(topic, Status{Robot: i, State: state}, KeepOnlyLast(false)))
	}

	for i, state := range states {
		select {
		case s := <-received:
			suite.Equal(Status{Robot: i, State: state}, s)
		case <-time.After(2 * time.Second):
			suite.FailNow("command not delivered", "state %s", state)
		}
	}
}

func (suite *BridgeTestSuite) TestBothDirections() {
	worlds := make(chan Metrics, 16)
	suite.Require().NoError(RegisterCallback(suite.gui, "bridge_world", func(m Metrics) { worlds <- m }))
	suite.Require().NoError(suite.gui.Start())

	acks := make(chan Status, 16)
	suite.Require().NoError(RegisterCallback(suite.ai, "bridge_ack", func(s Status) { acks <- s }))
	suite.Require().NoError(suite.ai.Start())

	suite.Require().NoError(suite.ai.Advertise("bridge_world"))
	suite.Require().NoError(suite.gui.Advertise("bridge_ack"))
	suite.Require().Eventually(func() bool {
		return suite.ai.Peers("bridge_world") == 1 && suite.gui.Peers("bridge_ack") == 1
	}, 5*time.Second, 10*time.Millisecond)

	suite.Require().NoError(suite.ai.Publish("bridge_world", Metrics{Value: 2.5}))
	suite.Require().NoError(suite.gui.Publish("bridge_ack", Status{State: "ok"}))

	select {
	case m := <-worlds:
		suite.Equal(2.5, m.Value)
	case <-time.After(2 * time.Second):
		suite.FailNow("world not delivered")
	}
	select {
	case s := <-acks:
		suite.Equal("ok", s.State)
	case <-time.After(2 * time.Second):
		suite.FailNow("ack not delivered")
	}
}
