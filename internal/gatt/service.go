package gatt

// WriteFlags carries stack-specific write modifiers (e.g. write command vs request).
type WriteFlags uint8

const (
	// WriteFlagCommand marks a write without response.
	WriteFlagCommand WriteFlags = 1 << iota
	// WriteFlagPrepare marks a queued (long) write fragment.
	WriteFlagPrepare
)

// A WriteRequest is a client write addressed to an attribute value.
type WriteRequest struct {
	Conn    ConnID
	Attr    *Attribute
	Payload []byte
	Offset  uint16
	Flags   WriteFlags
}

// A WriteHandler handles client writes to a characteristic value.
// It returns the number of bytes accepted.
type WriteHandler interface {
	ServeWrite(req *WriteRequest) (int, error)
}

// WriteHandlerFunc is an adapter to allow the use of
// ordinary functions as WriteHandlers.
type WriteHandlerFunc func(req *WriteRequest) (int, error)

// ServeWrite calls f(req).
func (f WriteHandlerFunc) ServeWrite(req *WriteRequest) (int, error) {
	return f(req)
}

// A CCCHandler observes writes to a Client Characteristic Configuration descriptor.
type CCCHandler interface {
	ServeCCC(conn ConnID, attr *Attribute, value uint16)
}

// CCCHandlerFunc is an adapter to allow the use of
// ordinary functions as CCCHandlers.
type CCCHandlerFunc func(conn ConnID, attr *Attribute, value uint16)

// ServeCCC calls f(conn, attr, value).
func (f CCCHandlerFunc) ServeCCC(conn ConnID, attr *Attribute, value uint16) {
	f(conn, attr, value)
}

// A Service is a primary GATT service definition.
// Characteristics must be added before the service is turned into a Table.
type Service struct {
	UUID            UUID16
	Characteristics []*Characteristic
}

// NewService creates an empty primary service.
func NewService(u UUID16) *Service {
	return &Service{UUID: u}
}

// NewCharacteristic appends a characteristic with no properties to the service.
func (s *Service) NewCharacteristic(u UUID16) *Characteristic {
	c := &Characteristic{UUID: u}
	s.Characteristics = append(s.Characteristics, c)
	return c
}

// A Characteristic is a GATT characteristic definition.
type Characteristic struct {
	UUID        UUID16
	Props       Prop
	Perm        Perm
	Write       WriteHandler
	Descriptors []*Descriptor
}

// HandleWrite makes the characteristic writable and routes writes to h.
func (c *Characteristic) HandleWrite(h WriteHandler) *Characteristic {
	c.Props |= PropWrite
	c.Perm |= PermWrite
	c.Write = h
	return c
}

// HandleNotify makes the characteristic notify-capable and attaches a CCC
// descriptor (read|write) whose writes are routed to h.
// The characteristic value itself gets no permissions.
func (c *Characteristic) HandleNotify(h CCCHandler) *Characteristic {
	c.Props |= PropNotify
	c.Descriptors = append(c.Descriptors, &Descriptor{
		UUID: CCCUUID,
		Perm: PermRead | PermWrite,
		CCC:  h,
	})
	return c
}

// CCC returns the characteristic's Client Characteristic Configuration descriptor, if any.
func (c *Characteristic) CCC() *Descriptor {
	for _, d := range c.Descriptors {
		if d.UUID == CCCUUID {
			return d
		}
	}
	return nil
}

// A Descriptor is a characteristic descriptor definition.
type Descriptor struct {
	UUID  UUID16
	Perm  Perm
	Value []byte
	CCC   CCCHandler
}
