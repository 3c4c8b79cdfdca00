package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/openblinds/bluelink/internal/blue"
	"github.com/openblinds/bluelink/internal/device"
	"github.com/openblinds/bluelink/internal/session"
	"github.com/openblinds/bluelink/internal/testutils"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type SessionTestSuite struct {
	suite.Suite

	reach     *testutils.FakeReachability
	client    *testutils.FakeClient
	commander *session.Commander
	states    []session.State
	statesMu  sync.Mutex
}

func (s *SessionTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.reach = testutils.NewFakeReachability(testAddress)
	s.client = &testutils.FakeClient{}
	s.states = nil

	s.commander = session.NewCommander(s.reach,
		func() device.Client { return s.client },
		logger, 200*time.Millisecond)
	s.commander.SetStateObserver(func(_ string, state session.State) {
		s.statesMu.Lock()
		defer s.statesMu.Unlock()
		s.states = append(s.states, state)
	})
}

func (s *SessionTestSuite) observedStates() []session.State {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	return append([]session.State(nil), s.states...)
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) TestSuccessfulSend() {
	// GOAL: Verify the happy path walks the full state machine and tears down
	//
	// TEST SCENARIO: Reachable device -> connect, write encoded command, exactly one disconnect

	err := s.commander.Send(context.Background(), testAddress, blue.MoveToPosition{Percent: 25})

	s.Require().NoError(err)
	s.Assert().Equal(1, s.client.ConnectCalls, "MUST connect exactly once")
	s.Assert().Equal(1, s.client.WriteCalls, "MUST write exactly once")
	s.Assert().Equal(1, s.client.DisconnectCalls, "MUST disconnect exactly once")
	s.Assert().Equal([][]byte{{0x01, 25}}, s.client.Writes, "write payload MUST be the encoded command")

	s.Assert().Equal([]session.State{
		session.StateConnecting,
		session.StateConnected,
		session.StateWriting,
		session.StateDisconnecting,
		session.StateIdle,
	}, s.observedStates())
}

func (s *SessionTestSuite) TestUnreachableFailsFast() {
	// GOAL: Verify the reachability pre-check prevents any connection attempt
	//
	// TEST SCENARIO: Unreachable device -> ErrDeviceUnreachable, zero connect calls

	s.reach.Set(testAddress, false)

	err := s.commander.Send(context.Background(), testAddress, blue.Stop{})

	s.Assert().ErrorIs(err, device.ErrDeviceUnreachable)
	s.Assert().Zero(s.client.ConnectCalls, "MUST NOT attempt a connect")
	s.Assert().Zero(s.client.DisconnectCalls, "no connection attempted, nothing to disconnect")
	s.Assert().Empty(s.observedStates(), "no session started, no transitions observed")
}

func (s *SessionTestSuite) TestConnectFailureStillDisconnects() {
	// GOAL: Verify the disconnect step is unconditional after a connect attempt
	//
	// TEST SCENARIO: Connect error -> ConnectTimeout surfaced, exactly one disconnect

	s.client.ConnectErr = context.DeadlineExceeded

	err := s.commander.Send(context.Background(), testAddress, blue.Stop{})

	s.Assert().ErrorIs(err, device.ErrConnectTimeout)
	s.Assert().Equal(1, s.client.ConnectCalls)
	s.Assert().Zero(s.client.WriteCalls, "MUST NOT write after a failed connect")
	s.Assert().Equal(1, s.client.DisconnectCalls, "MUST disconnect exactly once")

	states := s.observedStates()
	s.Assert().Contains(states, session.StateFailed)
	s.Assert().Equal(session.StateIdle, states[len(states)-1], "session MUST terminate in Idle")
}

func (s *SessionTestSuite) TestWriteFailureStillDisconnects() {
	// GOAL: Verify write failures surface to the caller and still tear down
	//
	// TEST SCENARIO: Write error -> WriteFailed surfaced, exactly one disconnect

	s.client.WriteErr = device.ErrWriteFailed

	err := s.commander.Send(context.Background(), testAddress, blue.MoveToPosition{Percent: 50})

	s.Assert().ErrorIs(err, device.ErrWriteFailed)
	s.Assert().Equal(1, s.client.DisconnectCalls, "MUST disconnect exactly once")
	s.Assert().False(s.client.IsConnected())
}

func (s *SessionTestSuite) TestCancellationStillDisconnects() {
	// GOAL: Verify cancellation mid-connect still runs the disconnect step
	//
	// TEST SCENARIO: Context cancelled while connecting -> error surfaced, exactly one disconnect

	s.client.ConnectDelay = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := s.commander.Send(ctx, testAddress, blue.Stop{})

	s.Assert().Error(err)
	s.Assert().Equal(1, s.client.ConnectCalls)
	s.Assert().Equal(1, s.client.DisconnectCalls, "cancellation MUST still disconnect exactly once")
}

func (s *SessionTestSuite) TestInvalidCommandNeverTouchesTransport() {
	// GOAL: Verify command validation happens before any session work
	//
	// TEST SCENARIO: Out-of-range position -> marshal error, no pre-check, no connect, no disconnect

	err := s.commander.Send(context.Background(), testAddress, blue.MoveToPosition{Percent: 250})

	s.Assert().ErrorIs(err, blue.ErrInvalidFieldValue)
	s.Assert().Zero(s.client.ConnectCalls)
	s.Assert().Zero(s.client.DisconnectCalls)
	s.Assert().Empty(s.observedStates())
}

func (s *SessionTestSuite) TestConvenienceWrappers() {
	s.Require().NoError(s.commander.MoveToPosition(context.Background(), testAddress, 75))
	s.Require().NoError(s.commander.Stop(context.Background(), testAddress))
	s.Assert().Equal([][]byte{{0x01, 75}, {0x03}}, s.client.Writes)
	s.Assert().Equal(2, s.client.DisconnectCalls)
}

func TestSameAddressSerialized(t *testing.T) {
	// GOAL: Verify concurrent commands to one address never overlap connections
	//
	// TEST SCENARIO: Two slow sessions to the same address -> second observes the
	// first's terminal state; active session count never exceeds 1

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	reach := testutils.NewFakeReachability(testAddress)

	var active, maxActive, overlaps int32
	factory := func() device.Client {
		return &testutils.FakeClient{WriteDelay: 30 * time.Millisecond}
	}
	commander := session.NewCommander(reach, factory, logger, time.Second)
	commander.SetStateObserver(func(_ string, state session.State) {
		switch state {
		case session.StateConnecting:
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			if n > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
		case session.StateIdle:
			atomic.AddInt32(&active, -1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = commander.Send(context.Background(), testAddress, blue.Stop{})
		}()
	}
	wg.Wait()

	if overlaps != 0 {
		t.Fatalf("sessions to the same address overlapped %d time(s)", overlaps)
	}
	if maxActive != 1 {
		t.Fatalf("expected at most 1 active session, saw %d", maxActive)
	}
}

func TestDifferentAddressesIndependent(t *testing.T) {
	// GOAL: Verify serialization is per-address, not global
	//
	// TEST SCENARIO: Slow sessions to two addresses run concurrently -> total
	// time is well under the serialized sum

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	reach := testutils.NewFakeReachability("11:11:11:11:11:11", "22:22:22:22:22:22")

	factory := func() device.Client {
		return &testutils.FakeClient{WriteDelay: 100 * time.Millisecond}
	}
	commander := session.NewCommander(reach, factory, logger, time.Second)

	start := time.Now()
	var wg sync.WaitGroup
	for _, addr := range []string{"11:11:11:11:11:11", "22:22:22:22:22:22"} {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			_ = commander.Send(context.Background(), addr, blue.Stop{})
		}(addr)
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Fatalf("sessions to different addresses appear serialized: took %s", elapsed)
	}
}
