// Package advert builds and inspects legacy advertising payloads on top of
// go-ble's adv.Packet.
package advert

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/srg/blup/internal/gatt"
)

// MaxLen is the legacy advertising and scan response data limit.
const MaxLen = adv.MaxEIRPacketLength

// AD types
const (
	TypeFlags          byte = 0x01
	TypeUUID16Complete byte = 0x03
	TypeNameShort      byte = 0x08
	TypeNameComplete   byte = 0x09
)

var (
	ErrTooLong   = errors.New("advertising payload exceeds 31 bytes")
	ErrMalformed = errors.New("malformed advertising payload")
)

// Payload is an advertising or scan response payload. The zero value is empty.
type Payload struct {
	pkt *adv.Packet
}

// New builds a payload from go-ble advertising fields.
func New(fields ...adv.Field) (Payload, error) {
	pkt, err := adv.NewPacket(fields...)
	if err != nil {
		if errors.Is(err, adv.ErrNotFit) {
			return Payload{}, fmt.Errorf("%w: %w", ErrTooLong, err)
		}
		return Payload{}, err
	}
	return Payload{pkt: pkt}, nil
}

// Default returns the advertising payload: general discoverable, BR/EDR not
// supported, and a complete 16-bit UUID list per service. The device name is
// not part of it; it goes into the scan response.
func Default(services ...gatt.UUID16) (Payload, error) {
	fields := []adv.Field{adv.Flags(adv.FlagGeneralDiscoverable | adv.FlagLEOnly)}
	for _, u := range services {
		fields = append(fields, adv.AllUUID(ble.UUID16(uint16(u))))
	}
	return New(fields...)
}

// MustDefault is like Default but panics if the services do not fit.
func MustDefault(services ...gatt.UUID16) Payload {
	p, err := Default(services...)
	if err != nil {
		panic(err)
	}
	return p
}

// ScanResponse carries the device name: complete when it fits, shortened
// otherwise. An empty name gives an empty scan response.
func ScanResponse(name string) (Payload, error) {
	switch {
	case name == "":
		return New()
	case len(name) > MaxLen-2:
		return New(adv.ShortName(name[:MaxLen-2]))
	default:
		return New(adv.CompleteName(name))
	}
}

// Parse wraps raw advertising data. Zero-length padding ends the payload.
func Parse(b []byte) (Payload, error) {
	if len(b) > MaxLen {
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrTooLong, len(b))
	}
	for i := 0; i < len(b); {
		l := int(b[i])
		if l == 0 {
			b = b[:i]
			break
		}
		if i+1+l > len(b) {
			return Payload{}, fmt.Errorf("%w: field at offset %d overruns buffer", ErrMalformed, i)
		}
		i += 1 + l
	}
	return Payload{pkt: adv.NewRawPacket(b)}, nil
}

// Bytes returns the encoded payload.
func (p Payload) Bytes() []byte {
	if p.pkt == nil {
		return nil
	}
	return p.pkt.Bytes()
}

// Len returns the encoded length.
func (p Payload) Len() int {
	if p.pkt == nil {
		return 0
	}
	return p.pkt.Len()
}

// Field returns the data of the first field of the given type.
func (p Payload) Field(typ byte) ([]byte, bool) {
	if p.pkt == nil {
		return nil, false
	}
	b := p.pkt.Field(typ)
	return b, b != nil
}

// Flags returns the flags byte, if present.
// adv.Packet.Flags expects the length and type bytes in the field data, so
// the field is read directly.
func (p Payload) Flags() (byte, bool) {
	b, ok := p.Field(TypeFlags)
	if !ok || len(b) != 1 {
		return 0, false
	}
	return b[0], true
}

// UUID16s returns the advertised 16-bit service UUIDs.
func (p Payload) UUID16s() []gatt.UUID16 {
	if p.pkt == nil {
		return nil
	}
	var uuids []gatt.UUID16
	for _, u := range p.pkt.UUIDs() {
		if u.Len() == 2 {
			uuids = append(uuids, gatt.UUID16(binary.LittleEndian.Uint16(u)))
		}
	}
	return uuids
}

// LocalName returns the shortened or complete local name, if present.
func (p Payload) LocalName() string {
	if p.pkt == nil {
		return ""
	}
	return p.pkt.LocalName()
}
