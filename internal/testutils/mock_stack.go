package testutils

import (
	"context"
	"sync"

	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/peripheral"
	"github.com/stretchr/testify/mock"
)

// MockStack is a testify mock of peripheral.Stack. It keeps the table and
// event handler passed to Register so tests can drive stack callbacks.
type MockStack struct {
	mock.Mock

	mu      sync.Mutex
	table   *gatt.Table
	handler peripheral.EventHandler
}

// NewMockStack returns a mock with no expectations.
func NewMockStack() *MockStack {
	return &MockStack{}
}

// ExpectBringup registers successful Register, Enable, Advertise and Stop calls.
func (m *MockStack) ExpectBringup() *MockStack {
	m.On("Register", mock.Anything, mock.Anything).Return(nil)
	m.On("Enable", mock.Anything).Return(nil)
	m.On("Advertise", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("Stop").Return(nil).Maybe()
	return m
}

// ExpectNotify makes every Notify call return err.
func (m *MockStack) ExpectNotify(err error) *MockStack {
	m.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(err)
	return m
}

func (m *MockStack) Register(table *gatt.Table, h peripheral.EventHandler) error {
	m.mu.Lock()
	m.table = table
	m.handler = h
	m.mu.Unlock()
	return m.Called(table, h).Error(0)
}

func (m *MockStack) Enable(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStack) Advertise(ctx context.Context, params peripheral.AdvParams, payload advert.Payload) error {
	return m.Called(ctx, params, payload).Error(0)
}

func (m *MockStack) Notify(conn peripheral.ConnID, h gatt.Handle, data []byte) error {
	return m.Called(conn, h, append([]byte(nil), data...)).Error(0)
}

func (m *MockStack) Stop() error {
	return m.Called().Error(0)
}

// Handler returns the event handler captured by Register.
func (m *MockStack) Handler() peripheral.EventHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// Table returns the attribute table captured by Register.
func (m *MockStack) Table() *gatt.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table
}

// Notified returns the payloads passed to Notify for conn, in call order.
func (m *MockStack) Notified(conn peripheral.ConnID) [][]byte {
	var out [][]byte
	for _, c := range m.Calls {
		if c.Method == "Notify" && c.Arguments.Get(0) == conn {
			out = append(out, c.Arguments.Get(2).([]byte))
		}
	}
	return out
}
