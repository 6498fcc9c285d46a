package gatt

import (
	"strings"
)

// Handle is an attribute handle inside the attribute table.
type Handle uint16

// ConnID identifies a connection owned by the external BLE stack.
type ConnID string

// Perm is the attribute permission set.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite

	PermNone Perm = 0
)

func (p Perm) String() string {
	if p == PermNone {
		return "none"
	}
	var parts []string
	if p&PermRead != 0 {
		parts = append(parts, "read")
	}
	if p&PermWrite != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, ",")
}

// Do not re-order the bit flags below;
// they are organized to match the characteristic properties byte.

// Prop is the characteristic properties bitset.
type Prop uint8

const (
	PropBroadcast   Prop = 0x01
	PropRead        Prop = 0x02
	PropWriteNoResp Prop = 0x04
	PropWrite       Prop = 0x08
	PropNotify      Prop = 0x10
	PropIndicate    Prop = 0x20
)

func (p Prop) String() string {
	names := []struct {
		bit  Prop
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteNoResp, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Op is the operation a client performs on an attribute.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "write"
	}
	return "read"
}

// Kind tells which role an attribute plays in the table.
type Kind int

const (
	KindService Kind = iota
	KindCharacteristicDecl
	KindCharacteristicValue
	KindDescriptor
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindCharacteristicDecl:
		return "characteristic"
	case KindCharacteristicValue:
		return "value"
	case KindDescriptor:
		return "descriptor"
	default:
		return "unknown"
	}
}

// Attribute is one addressable row of the attribute table.
type Attribute struct {
	Handle Handle
	Type   UUID16
	Kind   Kind
	Perm   Perm
	Value  []byte // static value; declarations only

	// Char is the owning characteristic for declaration, value and descriptor rows.
	Char *Characteristic
	// Desc is set for descriptor rows.
	Desc *Descriptor
}

// Readable reports whether clients may read the attribute.
func (a *Attribute) Readable() bool { return a.Perm&PermRead != 0 }

// Writable reports whether clients may write the attribute.
func (a *Attribute) Writable() bool { return a.Perm&PermWrite != 0 }
