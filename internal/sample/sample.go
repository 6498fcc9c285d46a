// Package sample provides simulated sensor readings for the optional periodic
// sample loop: a heart-rate measurement and a battery level.
package sample

import "sync"

const (
	heartRateMin = 90
	heartRateMax = 160 // exclusive; the reading wraps back to heartRateMin
	batteryFull  = 100
)

// HeartRate simulates a Heart Rate Measurement (flags byte + uint8 bpm).
// Each call to Next increments the rate, wrapping from 159 back to 90.
type HeartRate struct {
	mu  sync.Mutex
	bpm uint8
}

// NewHeartRate starts the simulation at 90 bpm.
func NewHeartRate() *HeartRate {
	return &HeartRate{bpm: heartRateMin}
}

func (h *HeartRate) Name() string { return "heart-rate" }

// Next advances the simulation and returns the encoded measurement.
func (h *HeartRate) Next() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bpm++
	if h.bpm == heartRateMax {
		h.bpm = heartRateMin
	}
	return []byte{0x00, h.bpm}
}

// Battery simulates a draining Battery Level (uint8 percent).
// Each call to Next decrements the level, wrapping from 1 back to 100.
type Battery struct {
	mu    sync.Mutex
	level uint8
}

// NewBattery starts the simulation at 100 %.
func NewBattery() *Battery {
	return &Battery{level: batteryFull}
}

func (b *Battery) Name() string { return "battery" }

// Next advances the simulation and returns the encoded level.
func (b *Battery) Next() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level--
	if b.level == 0 {
		b.level = batteryFull
	}
	return []byte{b.level}
}
