package peripheral

import (
	"errors"
	"fmt"
)

// Bring-up, connection and delivery errors
var (
	ErrStackInit        = errors.New("bluetooth init failed")
	ErrAdvertisingStart = errors.New("advertising failed to start")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotifyDelivery   = errors.New("notify delivery failed")
	ErrNoSubscribers    = errors.New("no subscribed connections")
	ErrInvalidOffset    = errors.New("invalid offset")
	ErrInvalidLength    = errors.New("invalid attribute value length")
	ErrAlreadyStarted   = errors.New("peripheral already started")
)

// Stage names the bring-up step that failed.
type Stage string

const (
	StageRegister  Stage = "register"
	StageEnable    Stage = "enable"
	StageAdvertise Stage = "advertise"
)

// BringupError reports which bring-up step failed.
type BringupError struct {
	Stage Stage
	Err   error
}

func (e *BringupError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("bring-up %s: %v", e.Stage, e.Err)
}

func (e *BringupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fatal reports whether the failure left the peripheral without a usable radio.
// An advertising failure is not fatal: the stack stays enabled but undiscoverable.
func (e *BringupError) Fatal() bool {
	if e == nil {
		return false
	}
	return e.Stage != StageAdvertise
}

// ConnectionError is a connect event carrying a non-zero HCI status.
type ConnectionError struct {
	Conn   ConnID
	Status uint8
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed (err 0x%02x)", e.Status)
}

// Is makes errors.Is(err, ErrConnectionFailed) match.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}
