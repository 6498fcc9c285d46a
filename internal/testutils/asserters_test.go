package testutils

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Defaults(t *testing.T) {
	opts := NewTextAsserter(t).Options()
	assert.True(t, opts.TrimSpace)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserter_Assert(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		pass     bool
	}{
		{"identical", nil, "a\nb", "a\nb", true},
		{"surrounding whitespace trimmed", nil, "\n a\nb  \n", " a\nb", true},
		{"trailing whitespace kept when disabled", []TextOption{WithIgnoreTrailingWhitespace(false)}, "a  \nb", "a\nb", false},
		{"empty lines ignored", []TextOption{WithIgnoreEmptyLines(true)}, "a\n\nb", "a\nb", true},
		{"different content", nil, "HELLO", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewTextAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.pass, ok)
			assert.Equal(t, tt.pass, len(rec.failures) == 0)
		})
	}
}

func TestTextAsserter_DiffShowsBothSides(t *testing.T) {
	d := NewTextAsserter(t).Diff("0x0003 value\n", "0x0003 service\n")
	assert.Contains(t, d, "-0x0003 service")
	assert.Contains(t, d, "+0x0003 value")
}

func TestTextAsserter_ColoredDiffMarksWhitespace(t *testing.T) {
	d := NewTextAsserter(t, WithEnableColors(true), WithTrimSpace(false), WithIgnoreTrailingWhitespace(false)).
		Diff("a b", "a\tb")
	assert.Contains(t, d, "a·b")
	assert.Contains(t, d, "a→b")
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		pass     bool
	}{
		{"equal", nil, `{"a":1}`, `{"a":1}`, true},
		{"extra keys ignored", nil, `{"a":1,"b":2}`, `{"a":1}`, true},
		{"extra keys reported", []JSONOption{WithIgnoreExtraKeys(false)}, `{"a":1,"b":2}`, `{"a":1}`, false},
		{"presence placeholder", nil, `{"a":"anything"}`, `{"a":"<<PRESENCE>>"}`, true},
		{"presence requires key", nil, `{}`, `{"a":"<<PRESENCE>>"}`, false},
		{"ignored fields", []JSONOption{WithIgnoredFields("time")}, `[{"k":"write","time":1}]`, `[{"k":"write","time":2}]`, true},
		{"root arrays", nil, `[1,2]`, `[2,1]`, false},
		{"invalid actual", nil, `{`, `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.pass, ok, "failures: %v", rec.failures)
		})
	}
}

func TestTestHelper_CapturesLogs(t *testing.T) {
	h := NewTestHelper(t)
	h.Logger.WithField("conn", "c1").Info("Connected")
	h.Logger.Debug("noise")

	h.AssertLogged(logrus.InfoLevel, "Connected")
	h.AssertNotLogged("Disconnected")
	assert.Equal(t, []string{"noise"}, h.Messages(logrus.DebugLevel))

	e, ok := h.Entry("Connected")
	assert.True(t, ok)
	assert.Equal(t, "c1", e.Data["conn"])
}
