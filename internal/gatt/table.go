package gatt

import (
	"encoding/binary"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Table errors
var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrReadNotPermitted  = errors.New("read not permitted")
	ErrWriteNotPermitted = errors.New("write not permitted")
	ErrInvalidDefinition = errors.New("invalid attribute definition")
)

// Table is the immutable attribute table generated from one service.
// Handles start at 1 and follow declaration order.
type Table struct {
	service *Service
	attrs   *orderedmap.OrderedMap[Handle, *Attribute]
	values  map[UUID16]*Attribute
}

// NewTable validates the service definition and lays out its attributes.
func NewTable(s *Service) (*Table, error) {
	if err := validate(s); err != nil {
		return nil, err
	}

	t := &Table{
		service: s,
		attrs:   orderedmap.New[Handle, *Attribute](),
		values:  make(map[UUID16]*Attribute),
	}

	n := Handle(1)
	t.attrs.Set(n, &Attribute{
		Handle: n,
		Type:   PrimaryServiceUUID,
		Kind:   KindService,
		Perm:   PermRead,
		Value:  s.UUID.Bytes(),
	})

	for _, c := range s.Characteristics {
		declHandle, valueHandle := n+1, n+2
		decl := []byte{byte(c.Props)}
		decl = binary.LittleEndian.AppendUint16(decl, uint16(valueHandle))
		decl = append(decl, c.UUID.Bytes()...)

		t.attrs.Set(declHandle, &Attribute{
			Handle: declHandle,
			Type:   CharacteristicUUID,
			Kind:   KindCharacteristicDecl,
			Perm:   PermRead,
			Value:  decl,
			Char:   c,
		})
		value := &Attribute{
			Handle: valueHandle,
			Type:   c.UUID,
			Kind:   KindCharacteristicValue,
			Perm:   c.Perm,
			Char:   c,
		}
		t.attrs.Set(valueHandle, value)
		t.values[c.UUID] = value

		n = valueHandle
		for _, d := range c.Descriptors {
			n++
			t.attrs.Set(n, &Attribute{
				Handle: n,
				Type:   d.UUID,
				Kind:   KindDescriptor,
				Perm:   d.Perm,
				Value:  d.Value,
				Char:   c,
				Desc:   d,
			})
		}
	}

	return t, nil
}

// MustTable is like NewTable but panics on a malformed definition.
func MustTable(s *Service) *Table {
	t, err := NewTable(s)
	if err != nil {
		panic(err)
	}
	return t
}

func validate(s *Service) error {
	if s == nil {
		return fmt.Errorf("%w: nil service", ErrInvalidDefinition)
	}
	if s.UUID == 0 {
		return fmt.Errorf("%w: service UUID must not be zero", ErrInvalidDefinition)
	}

	seen := make(map[UUID16]bool, len(s.Characteristics))
	for _, c := range s.Characteristics {
		if c.UUID == 0 {
			return fmt.Errorf("%w: characteristic UUID must not be zero", ErrInvalidDefinition)
		}
		if seen[c.UUID] {
			return fmt.Errorf("%w: service %s already contains characteristic %s", ErrInvalidDefinition, s.UUID, c.UUID)
		}
		seen[c.UUID] = true

		if c.Write != nil && c.Perm&PermWrite == 0 {
			return fmt.Errorf("%w: characteristic %s has a write handler without write permission", ErrInvalidDefinition, c.UUID)
		}
		if c.CCC() != nil && c.Props&(PropNotify|PropIndicate) == 0 {
			return fmt.Errorf("%w: characteristic %s has a CCC descriptor but neither notify nor indicate", ErrInvalidDefinition, c.UUID)
		}
	}
	return nil
}

// Service returns the service definition the table was built from.
func (t *Table) Service() *Service {
	return t.service
}

// Len returns the number of attributes.
func (t *Table) Len() int {
	return t.attrs.Len()
}

// Attributes returns the attributes in handle order.
func (t *Table) Attributes() []*Attribute {
	result := make([]*Attribute, 0, t.attrs.Len())
	for pair := t.attrs.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Attribute returns the attribute at handle h.
func (t *Table) Attribute(h Handle) (*Attribute, bool) {
	return t.attrs.Get(h)
}

// Value returns the value attribute of the characteristic with the given UUID.
func (t *Table) Value(u UUID16) (*Attribute, bool) {
	a, ok := t.values[u]
	return a, ok
}

// CCC returns the CCC descriptor attribute of the characteristic with the given UUID.
func (t *Table) CCC(u UUID16) (*Attribute, bool) {
	for pair := t.attrs.Oldest(); pair != nil; pair = pair.Next() {
		a := pair.Value
		if a.Kind == KindDescriptor && a.Type == CCCUUID && a.Char != nil && a.Char.UUID == u {
			return a, true
		}
	}
	return nil, false
}

// Lookup resolves an operation on handle h to the attribute that serves it.
func (t *Table) Lookup(h Handle, op Op) (*Attribute, error) {
	a, ok := t.attrs.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: handle 0x%04x", ErrAttributeNotFound, uint16(h))
	}
	switch op {
	case OpWrite:
		if !a.Writable() {
			return nil, fmt.Errorf("%w: handle 0x%04x (%s)", ErrWriteNotPermitted, uint16(h), a.Type)
		}
	default:
		if !a.Readable() {
			return nil, fmt.Errorf("%w: handle 0x%04x (%s)", ErrReadNotPermitted, uint16(h), a.Type)
		}
	}
	return a, nil
}
