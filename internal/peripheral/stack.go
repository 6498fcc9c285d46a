package peripheral

import (
	"context"

	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
)

// ConnID identifies a connection owned by the BLE stack.
type ConnID = gatt.ConnID

// AdvParams is the advertising parameter set.
type AdvParams struct {
	Connectable bool
	Name        string // carried in the scan response, never in the advertising data
}

// Stack is the external BLE stack the peripheral drives. The stack owns
// connections and delivers their events to the registered EventHandler.
type Stack interface {
	// Register installs the attribute table and the callbacks. It is called
	// before Enable.
	Register(table *gatt.Table, h EventHandler) error
	// Enable brings the radio up.
	Enable(ctx context.Context) error
	// Advertise starts advertising payload with params.
	Advertise(ctx context.Context, params AdvParams, payload advert.Payload) error
	// Notify pushes data on the value attribute h to one connection.
	Notify(conn ConnID, h gatt.Handle, data []byte) error
	// Stop tears the stack down.
	Stop() error
}

// EventHandler receives connection and GATT events from the stack.
type EventHandler interface {
	Connected(conn ConnID, status uint8)
	Disconnected(conn ConnID, reason uint8)
	Write(conn ConnID, h gatt.Handle, payload []byte, offset uint16, flags gatt.WriteFlags) (int, error)
	CCCChanged(conn ConnID, h gatt.Handle, value uint16) error
	PairingCancelled(conn ConnID)
}
