package gatt

import (
	"encoding/binary"
	"fmt"
)

// UUID16 is a Bluetooth SIG 16-bit UUID.
type UUID16 uint16

// Attribute types defined by the GATT profile
const (
	PrimaryServiceUUID UUID16 = 0x2800
	CharacteristicUUID UUID16 = 0x2803
	CCCUUID            UUID16 = 0x2902
)

// Custom uppercase service layout
const (
	ServiceUUID    UUID16 = 0x00e1
	WriteCharUUID  UUID16 = 0x00e2
	NotifyCharUUID UUID16 = 0x00e3
)

var knownNames = map[UUID16]string{
	PrimaryServiceUUID: "Primary Service",
	CharacteristicUUID: "Characteristic",
	CCCUUID:            "Client Characteristic Configuration",
	ServiceUUID:        "Uppercase Service",
	WriteCharUUID:      "Uppercase Input",
	NotifyCharUUID:     "Uppercase Output",
}

// String returns the lowercase 4-digit hex form, e.g. "2902".
func (u UUID16) String() string {
	return fmt.Sprintf("%04x", uint16(u))
}

// Bytes returns the little-endian wire encoding.
func (u UUID16) Bytes() []byte {
	return binary.LittleEndian.AppendUint16(nil, uint16(u))
}

// KnownName returns a human-readable name for well-known UUIDs, or "" if unknown.
func (u UUID16) KnownName() string {
	return knownNames[u]
}
