package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

// TestHelper carries a debug-level logger whose entries are captured by Hook.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a test helper with a suppressed, capturing logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Messages returns the captured messages at the given level, in order.
func (h *TestHelper) Messages(level logrus.Level) []string {
	var out []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Entry returns the first captured entry with the given message.
func (h *TestHelper) Entry(msg string) (*logrus.Entry, bool) {
	for _, e := range h.Hook.AllEntries() {
		if e.Message == msg {
			return e, true
		}
	}
	return nil, false
}

// AssertLogged fails the test unless msg was logged at level.
func (h *TestHelper) AssertLogged(level logrus.Level, msg string) bool {
	h.T.Helper()
	return assert.Contains(h.T, h.Messages(level), msg, "log MUST contain %q at %s level", msg, level)
}

// AssertNotLogged fails the test if msg was logged at any level.
func (h *TestHelper) AssertNotLogged(msg string) bool {
	h.T.Helper()
	_, found := h.Entry(msg)
	return assert.False(h.T, found, "log MUST NOT contain %q", msg)
}
