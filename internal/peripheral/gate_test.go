package peripheral

import (
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestNotificationGate_LastWriteWins(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	var events []Event
	g := newNotificationGate(logger, func(e Event) { events = append(events, e) })

	assert.False(t, g.Enabled("c1"), "gate MUST start disabled")

	steps := []struct {
		value   uint16
		enabled bool
		msg     string
	}{
		{CCCNotify, true, "Notify enabled"},
		{CCCDisabled, false, "Notify disabled"},
		{CCCIndicate, false, "Notify disabled"},
		{0x0003, false, "Notify disabled"},
		{0xffff, false, "Notify disabled"},
		{CCCNotify, true, "Notify enabled"},
	}
	for _, s := range steps {
		g.OnCCCChanged("c1", s.value)
		assert.Equal(t, s.enabled, g.Enabled("c1"), "value 0x%04x", s.value)
		assert.Equal(t, s.msg, hook.LastEntry().Message)
	}

	assert.Len(t, events, len(steps))
	assert.Equal(t, EventCCCChanged, events[0].Kind)
	assert.Equal(t, uint16(0xffff), events[4].Value)
}

func TestNotificationGate_PerConnection(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	g := newNotificationGate(logger, func(Event) {})

	g.OnCCCChanged("c2", CCCNotify)
	g.OnCCCChanged("c1", CCCNotify)
	g.OnCCCChanged("c3", CCCDisabled)

	assert.True(t, g.Enabled("c1"))
	assert.False(t, g.Enabled("c3"))
	assert.Equal(t, []ConnID{"c1", "c2"}, g.Subscribers(), "Subscribers MUST list only enabled connections, sorted")

	g.Forget("c1")
	assert.False(t, g.Enabled("c1"))
	assert.Equal(t, []ConnID{"c2"}, g.Subscribers())
}
