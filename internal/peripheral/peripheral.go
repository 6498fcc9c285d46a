package peripheral

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/ringchan"
)

const (
	// DefaultName is the advertised device name.
	DefaultName = "periferico"

	// DefaultEventBuffer is the event feed capacity.
	DefaultEventBuffer = 64

	// DefaultSampleInterval is the sample loop period.
	DefaultSampleInterval = time.Second
)

type options struct {
	name           string
	strictOffset   bool
	eventBuffer    int
	auth           AuthDelegate
	sampleInterval time.Duration
	sources        []SampleSource
}

// Option configures a Peripheral.
type Option func(*options)

// WithName sets the advertised device name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStrictOffset makes writes with a nonzero offset fail with ErrInvalidOffset.
func WithStrictOffset(strict bool) Option {
	return func(o *options) { o.strictOffset = strict }
}

// WithEventBuffer sets the event feed capacity.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

// WithAuthDelegate installs a delegate for pairing events.
func WithAuthDelegate(d AuthDelegate) Option {
	return func(o *options) { o.auth = d }
}

// WithSampleSources enables the periodic sample loop.
func WithSampleSources(interval time.Duration, sources ...SampleSource) Option {
	return func(o *options) {
		o.sampleInterval = interval
		o.sources = append(o.sources, sources...)
	}
}

// Peripheral is the uppercase GATT peripheral: one attribute table, the
// notification gate, the connection controller and the write handler,
// bound to a single Stack.
type Peripheral struct {
	stack  Stack
	logger *logrus.Logger
	opts   options

	table      *gatt.Table
	notifyAttr *gatt.Attribute
	payload    advert.Payload

	writer *WriteHandler
	gate   *NotificationGate
	conns  *ConnectionController
	events *ringchan.RingChannel[Event]

	started  atomic.Bool
	sampling <-chan struct{}
	mu       sync.Mutex
}

// New builds the peripheral and its attribute table. Nothing touches the
// stack until Start.
func New(stack Stack, logger *logrus.Logger, opts ...Option) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	o := options{
		name:           DefaultName,
		eventBuffer:    DefaultEventBuffer,
		sampleInterval: DefaultSampleInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = DefaultEventBuffer
	}
	if o.sampleInterval <= 0 {
		o.sampleInterval = DefaultSampleInterval
	}

	p := &Peripheral{
		stack:   stack,
		logger:  logger,
		opts:    o,
		payload: advert.MustDefault(gatt.ServiceUUID),
		events:  ringchan.New[Event](o.eventBuffer),
	}
	p.gate = newNotificationGate(logger, p.emit)
	p.conns = newConnectionController(p.gate, logger, p.emit)
	p.writer = &WriteHandler{
		logger:       logger,
		notify:       p.Notify,
		emit:         p.emit,
		strictOffset: o.strictOffset,
	}

	p.table = NewTable(p.writer, p.gate)
	p.notifyAttr, _ = p.table.Value(gatt.NotifyCharUUID)
	return p
}

// NewTable declares the uppercase service: a write-only input
// characteristic served by w and a notify-only output characteristic whose
// CCC descriptor is served by g.
func NewTable(w gatt.WriteHandler, g gatt.CCCHandler) *gatt.Table {
	s := gatt.NewService(gatt.ServiceUUID)
	s.NewCharacteristic(gatt.WriteCharUUID).HandleWrite(w)
	s.NewCharacteristic(gatt.NotifyCharUUID).HandleNotify(g)
	return gatt.MustTable(s)
}

// Table returns the attribute table.
func (p *Peripheral) Table() *gatt.Table { return p.table }

// Advertisement returns the advertising payload.
func (p *Peripheral) Advertisement() advert.Payload { return p.payload }

// Gate returns the notification gate.
func (p *Peripheral) Gate() *NotificationGate { return p.gate }

// Connections returns the connection lifecycle controller.
func (p *Peripheral) Connections() *ConnectionController { return p.conns }

// Events returns the event feed. The oldest events are dropped when the
// consumer falls behind.
func (p *Peripheral) Events() <-chan Event { return p.events.C() }

// DroppedEvents returns how many events were discarded from the feed.
func (p *Peripheral) DroppedEvents() int64 { return p.events.Dropped() }

func (p *Peripheral) emit(e Event) {
	p.events.Send(e)
}

// Run blocks until ctx is done, then waits for background work and stops the stack.
func (p *Peripheral) Run(ctx context.Context) error {
	<-ctx.Done()

	p.mu.Lock()
	sampling := p.sampling
	p.mu.Unlock()
	if sampling != nil {
		<-sampling
	}

	if err := p.stack.Stop(); err != nil {
		return fmt.Errorf("failed to stop stack: %w", err)
	}
	return nil
}

// Notify broadcasts data on the output characteristic to every connection
// with notifications enabled.
func (p *Peripheral) Notify(data []byte) error {
	subs := p.gate.Subscribers()
	if len(subs) == 0 {
		err := fmt.Errorf("%w: %w", ErrNotifyDelivery, ErrNoSubscribers)
		p.emit(Event{Kind: EventNotifyFailed, Time: time.Now(), Data: append([]byte(nil), data...), Err: err})
		return err
	}

	var errs []error
	for _, conn := range subs {
		if err := p.stack.Notify(conn, p.notifyAttr.Handle, data); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", conn, err))
			p.emit(Event{Kind: EventNotifyFailed, Time: time.Now(), Conn: conn, Data: append([]byte(nil), data...), Err: err})
			continue
		}
		p.emit(Event{Kind: EventNotifySent, Time: time.Now(), Conn: conn, Data: append([]byte(nil), data...)})
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotifyDelivery, errors.Join(errs...))
	}
	return nil
}

// Connected implements EventHandler.
func (p *Peripheral) Connected(conn ConnID, status uint8) {
	p.conns.OnConnected(conn, status)
}

// Disconnected implements EventHandler.
func (p *Peripheral) Disconnected(conn ConnID, reason uint8) {
	p.conns.OnDisconnected(conn, reason)
}

// Write implements EventHandler. It resolves h in the attribute table and
// dispatches to the characteristic's write handler, or decodes a raw
// 2-byte CCC descriptor write.
func (p *Peripheral) Write(conn ConnID, h gatt.Handle, payload []byte, offset uint16, flags gatt.WriteFlags) (int, error) {
	attr, err := p.table.Lookup(h, gatt.OpWrite)
	if err != nil {
		p.logger.WithFields(logrus.Fields{"conn": conn, "handle": fmt.Sprintf("0x%04x", uint16(h))}).WithError(err).Debug("Write rejected")
		return 0, err
	}

	switch {
	case attr.Desc != nil && attr.Desc.CCC != nil:
		if len(payload) != 2 {
			return 0, fmt.Errorf("%w: CCC takes 2 bytes, got %d", ErrInvalidLength, len(payload))
		}
		attr.Desc.CCC.ServeCCC(conn, attr, binary.LittleEndian.Uint16(payload))
		return len(payload), nil
	case attr.Kind == gatt.KindCharacteristicValue && attr.Char.Write != nil:
		return attr.Char.Write.ServeWrite(&gatt.WriteRequest{
			Conn:    conn,
			Attr:    attr,
			Payload: payload,
			Offset:  offset,
			Flags:   flags,
		})
	default:
		return 0, fmt.Errorf("%w: handle 0x%04x has no handler", gatt.ErrWriteNotPermitted, uint16(h))
	}
}

// CCCChanged implements EventHandler for stacks that decode CCC writes themselves.
func (p *Peripheral) CCCChanged(conn ConnID, h gatt.Handle, value uint16) error {
	attr, err := p.table.Lookup(h, gatt.OpWrite)
	if err != nil {
		return err
	}
	if attr.Desc == nil || attr.Desc.CCC == nil {
		return fmt.Errorf("%w: handle 0x%04x is not a CCC descriptor", gatt.ErrAttributeNotFound, uint16(h))
	}
	attr.Desc.CCC.ServeCCC(conn, attr, value)
	return nil
}

// PairingCancelled implements EventHandler.
func (p *Peripheral) PairingCancelled(conn ConnID) {
	p.logger.WithField("conn", conn).Infof("Pairing cancelled: %s", conn)
	p.emit(Event{Kind: EventPairingCancelled, Time: time.Now(), Conn: conn})
	if p.opts.auth != nil {
		p.opts.auth.PairingCancelled(conn)
	}
}
