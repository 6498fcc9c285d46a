package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartRate_CyclesBetween90And159(t *testing.T) {
	h := NewHeartRate()

	assert.Equal(t, []byte{0x00, 91}, h.Next())

	var last byte
	for i := 0; i < 68; i++ {
		last = h.Next()[1]
	}
	assert.Equal(t, byte(159), last, "MUST reach 159 before wrapping")
	assert.Equal(t, []byte{0x00, 90}, h.Next(), "MUST wrap to 90")
	assert.Equal(t, "heart-rate", h.Name())
}

func TestBattery_DrainsAndWraps(t *testing.T) {
	b := NewBattery()

	assert.Equal(t, []byte{99}, b.Next())

	var last byte
	for i := 0; i < 98; i++ {
		last = b.Next()[0]
	}
	assert.Equal(t, byte(1), last)
	assert.Equal(t, []byte{100}, b.Next(), "MUST wrap to 100 instead of reporting 0")
	assert.Equal(t, "battery", b.Name())
}
