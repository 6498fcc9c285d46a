package testutils

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/peripheral"
	"github.com/stretchr/testify/suite"
)

// PeripheralSuite is a reusable testify suite that wires a Peripheral to a
// MockStack with a successful bring-up.
//
// Usage:
//
//	type WriteSuite struct {
//	    testutils.PeripheralSuite
//	}
//
//	func (s *WriteSuite) SetupTest() {
//	    s.Options = []peripheral.Option{peripheral.WithStrictOffset(true)}
//	    s.PeripheralSuite.SetupTest() // call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Helper     *TestHelper
	Logger     *logrus.Logger
	Stack      *MockStack
	Peripheral *peripheral.Peripheral

	// Options are applied to the Peripheral built by SetupTest.
	Options []peripheral.Option
	// NotifyErr is returned by every MockStack.Notify call.
	NotifyErr error

	ctx    context.Context
	cancel context.CancelFunc
}

// SetupTest builds and starts a fresh Peripheral before each test.
func (s *PeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	s.Stack = NewMockStack().ExpectBringup().ExpectNotify(s.NotifyErr)
	s.Peripheral = peripheral.New(s.Stack, s.Logger, s.Options...)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Require().NoError(s.Peripheral.Start(s.ctx), "bring-up MUST succeed on a healthy stack")
	s.Require().NotNil(s.Stack.Handler(), "Register MUST hand the event handler to the stack")
}

// TearDownTest cancels the peripheral context and resets per-test configuration.
func (s *PeripheralSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Options = nil
	s.NotifyErr = nil
}

// Ctx returns the context the peripheral was started with.
func (s *PeripheralSuite) Ctx() context.Context { return s.ctx }

// Connect delivers a connect event with the given status.
func (s *PeripheralSuite) Connect(conn peripheral.ConnID, status uint8) {
	s.Stack.Handler().Connected(conn, status)
}

// Disconnect delivers a disconnect event.
func (s *PeripheralSuite) Disconnect(conn peripheral.ConnID, reason uint8) {
	s.Stack.Handler().Disconnected(conn, reason)
}

// WriteCCC writes value to the output characteristic's CCC descriptor as a raw attribute write.
func (s *PeripheralSuite) WriteCCC(conn peripheral.ConnID, value uint16) (int, error) {
	attr, ok := s.Peripheral.Table().CCC(gatt.NotifyCharUUID)
	s.Require().True(ok, "output characteristic MUST have a CCC descriptor")

	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, value)
	return s.Stack.Handler().Write(conn, attr.Handle, raw, 0, 0)
}

// Subscribe connects conn and enables notifications for it.
func (s *PeripheralSuite) Subscribe(conn peripheral.ConnID) {
	s.Connect(conn, 0)
	_, err := s.WriteCCC(conn, peripheral.CCCNotify)
	s.Require().NoError(err)
}

// WriteInput writes payload to the input characteristic.
func (s *PeripheralSuite) WriteInput(conn peripheral.ConnID, payload []byte, offset uint16) (int, error) {
	attr, ok := s.Peripheral.Table().Value(gatt.WriteCharUUID)
	s.Require().True(ok, "input characteristic MUST be in the table")
	return s.Stack.Handler().Write(conn, attr.Handle, payload, offset, 0)
}

// DrainEvents returns every event currently queued on the feed.
func (s *PeripheralSuite) DrainEvents() []peripheral.Event {
	var out []peripheral.Event
	for {
		select {
		case e := <-s.Peripheral.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

// WaitEvent blocks until an event of the given kind arrives or timeout elapses.
func (s *PeripheralSuite) WaitEvent(kind peripheral.EventKind, timeout time.Duration) (peripheral.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case e := <-s.Peripheral.Events():
			if e.Kind == kind {
				return e, true
			}
		case <-deadline:
			return peripheral.Event{}, false
		}
	}
}

// EventKinds extracts the kinds of events, in order.
func EventKinds(events []peripheral.Event) []peripheral.EventKind {
	out := make([]peripheral.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
