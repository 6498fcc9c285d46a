// Package goble implements peripheral.Stack on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/groutine"
	"github.com/srg/blup/internal/peripheral"
)

// DefaultStartGrace is how long Advertise waits for the stack to reject advertising.
const DefaultStartGrace = 250 * time.Millisecond

var (
	ErrNotRegistered     = errors.New("attribute table not registered")
	ErrNotEnabled        = errors.New("stack not enabled")
	ErrNotSubscribed     = errors.New("connection not subscribed")
	ErrUnsupportedTable  = errors.New("attribute table not supported by go-ble")
	ErrUnsupportedDevice = errors.New("no BLE device support on this platform")
)

// Device is the part of a go-ble device the adapter drives.
type Device interface {
	AddService(svc *ble.Service) error
	// AdvertiseRaw advertises ad, answering scans with sr, until ctx is done.
	AdvertiseRaw(ctx context.Context, ad, sr []byte) error
	Stop() error
}

// DeviceConfig carries what the platform device needs from the adapter.
type DeviceConfig struct {
	HCI          int
	OnConnect    func(handle uint16, peer string, status uint8)
	OnDisconnect func(handle uint16, reason uint8)
}

// DeviceFactory creates the platform device (can be overridden in tests)
//
//nolint:revive // exported var is the test seam
var DeviceFactory = func(cfg DeviceConfig) (Device, error) {
	return newPlatformDevice(cfg)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHCI selects the HCI device index (linux only).
func WithHCI(id int) Option {
	return func(a *Adapter) { a.hci = id }
}

// WithStartGrace sets how long Advertise waits for an early advertising failure.
func WithStartGrace(d time.Duration) Option {
	return func(a *Adapter) { a.grace = d }
}

// Adapter is a peripheral.Stack backed by a go-ble device.
type Adapter struct {
	logger *logrus.Logger
	hci    int
	grace  time.Duration

	mu      sync.Mutex
	dev     Device
	handler peripheral.EventHandler
	svc     *ble.Service
	advDone <-chan struct{}

	// connection handle -> connection id, filled by HCI connect events
	handles *hashmap.Map[uint16, peripheral.ConnID]
	// connections already reported to the handler
	known *hashmap.Map[peripheral.ConnID, struct{}]
	// conn/value-handle -> live notifier
	notifiers *hashmap.Map[string, ble.Notifier]
}

// New creates an adapter. The device is created by Enable.
func New(logger *logrus.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	a := &Adapter{
		logger:    logger,
		grace:     DefaultStartGrace,
		handles:   hashmap.New[uint16, peripheral.ConnID](),
		known:     hashmap.New[peripheral.ConnID, struct{}](),
		notifiers: hashmap.New[string, ble.Notifier](),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register translates the table into a ble.Service and keeps h for callbacks.
func (a *Adapter) Register(table *gatt.Table, h peripheral.EventHandler) error {
	if table == nil || h == nil {
		return fmt.Errorf("%w: nil table or handler", ErrUnsupportedTable)
	}

	a.mu.Lock()
	a.handler = h
	a.mu.Unlock()

	svc, err := a.buildService(table)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.svc = svc
	a.mu.Unlock()
	return nil
}

func (a *Adapter) buildService(table *gatt.Table) (*ble.Service, error) {
	def := table.Service()
	svc := ble.NewService(ble.UUID16(uint16(def.UUID)))

	for _, c := range def.Characteristics {
		value, ok := table.Value(c.UUID)
		if !ok {
			return nil, fmt.Errorf("%w: characteristic %s has no value attribute", ErrUnsupportedTable, c.UUID)
		}
		bc := svc.NewCharacteristic(ble.UUID16(uint16(c.UUID)))

		if c.Write != nil {
			bc.HandleWrite(a.writeHandler(value.Handle))
		}
		if c.Props&gatt.PropNotify != 0 {
			ccc, ok := table.CCC(c.UUID)
			if !ok {
				return nil, fmt.Errorf("%w: notify characteristic %s has no CCC", ErrUnsupportedTable, c.UUID)
			}
			bc.HandleNotify(a.notifyHandler(value.Handle, ccc.Handle))
		}
		if c.Props&gatt.PropIndicate != 0 {
			return nil, fmt.Errorf("%w: indications", ErrUnsupportedTable)
		}
	}
	return svc, nil
}

func (a *Adapter) writeHandler(h gatt.Handle) ble.WriteHandler {
	return ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		conn := a.connOf(req.Conn())
		n, err := a.handler.Write(conn, h, req.Data(), uint16(req.Offset()), 0)
		if err != nil {
			status := attStatus(err)
			a.logger.WithFields(logrus.Fields{
				"conn":   conn,
				"status": fmt.Sprintf("0x%02x", uint8(status)),
			}).WithError(err).Debug("Write failed")
			rsp.SetStatus(status)
			return
		}
		if n != len(req.Data()) {
			a.logger.WithFields(logrus.Fields{"conn": conn, "accepted": n, "len": len(req.Data())}).Debug("Short write")
		}
	})
}

func (a *Adapter) notifyHandler(value, ccc gatt.Handle) ble.NotifyHandler {
	return ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		conn := a.connOf(req.Conn())
		key := notifierKey(conn, value)

		a.notifiers.Set(key, n)
		defer a.notifiers.Del(key)

		if err := a.handler.CCCChanged(conn, ccc, peripheral.CCCNotify); err != nil {
			a.logger.WithField("conn", conn).WithError(err).Warn("CCC update rejected")
		}

		<-n.Context().Done()

		if err := a.handler.CCCChanged(conn, ccc, peripheral.CCCDisabled); err != nil {
			a.logger.WithField("conn", conn).WithError(err).Warn("CCC update rejected")
		}
	})
}

// attStatus maps a peripheral write error to an ATT error code.
func attStatus(err error) ble.ATTError {
	switch {
	case errors.Is(err, peripheral.ErrInvalidOffset):
		return ble.ErrInvalidOffset
	case errors.Is(err, gatt.ErrWriteNotPermitted):
		return ble.ErrWriteNotPerm
	case errors.Is(err, gatt.ErrAttributeNotFound):
		return ble.ErrInvalidHandle
	default:
		return ble.ErrUnlikely
	}
}

// Enable creates the device and publishes the service.
func (a *Adapter) Enable(ctx context.Context) error {
	a.mu.Lock()
	svc := a.svc
	a.mu.Unlock()
	if svc == nil {
		return ErrNotRegistered
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := DeviceFactory(DeviceConfig{
		HCI:          a.hci,
		OnConnect:    a.onConnect,
		OnDisconnect: a.onDisconnect,
	})
	if err != nil {
		return fmt.Errorf("failed to open BLE device: %w", err)
	}

	if err := dev.AddService(svc); err != nil {
		_ = dev.Stop()
		return fmt.Errorf("failed to add service: %w", err)
	}

	a.mu.Lock()
	a.dev = dev
	a.mu.Unlock()
	return nil
}

// Advertise starts advertising payload on a background goroutine bound to ctx,
// with params.Name in the scan response. An error reported by the device
// within the start grace period is returned; later errors are only logged.
func (a *Adapter) Advertise(ctx context.Context, params peripheral.AdvParams, payload advert.Payload) error {
	a.mu.Lock()
	dev := a.dev
	a.mu.Unlock()
	if dev == nil {
		return ErrNotEnabled
	}
	if !params.Connectable {
		return errors.New("non-connectable advertising is not supported by go-ble")
	}
	if payload.Len() == 0 {
		return errors.New("empty advertising payload")
	}

	sr, err := advert.ScanResponse(params.Name)
	if err != nil {
		return fmt.Errorf("failed to build scan response: %w", err)
	}
	ad := payload.Bytes()
	a.logger.WithFields(logrus.Fields{
		"adv":  fmt.Sprintf("% x", ad),
		"scan": fmt.Sprintf("% x", sr.Bytes()),
	}).Debug("Advertising data")

	errc := make(chan error, 1)
	done := groutine.Go(ctx, "advertise", func(ctx context.Context) {
		err := dev.AdvertiseRaw(ctx, ad, sr.Bytes())
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case errc <- err:
		default:
		}
		a.logger.WithError(err).Warn("Advertising stopped")
	})

	a.mu.Lock()
	a.advDone = done
	a.mu.Unlock()

	timer := time.NewTimer(a.grace)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Notify pushes data to conn through the notifier registered for value handle h.
func (a *Adapter) Notify(conn peripheral.ConnID, h gatt.Handle, data []byte) error {
	n, ok := a.notifiers.Get(notifierKey(conn, h))
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, conn)
	}
	if _, err := n.Write(data); err != nil {
		return fmt.Errorf("notify %s: %w", conn, err)
	}
	return nil
}

// Stop stops the device and waits briefly for advertising to wind down.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	dev, done := a.dev, a.advDone
	a.dev = nil
	a.mu.Unlock()

	if dev == nil {
		return nil
	}
	err := dev.Stop()
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
			a.logger.Debug("Advertising goroutine still running after stop")
		}
	}
	return err
}

// Subscribed returns how many notifiers are live.
func (a *Adapter) Subscribed() int {
	return a.notifiers.Len()
}

func (a *Adapter) onConnect(handle uint16, peer string, status uint8) {
	conn := peripheral.ConnID(strings.ToLower(peer))
	if status == 0 {
		a.handles.Set(handle, conn)
		a.known.Set(conn, struct{}{})
	}
	a.dispatchConnected(conn, status)
}

func (a *Adapter) onDisconnect(handle uint16, reason uint8) {
	conn, ok := a.handles.Get(handle)
	if !ok {
		a.logger.WithField("handle", handle).Debug("Disconnect for unknown connection handle")
		return
	}
	a.handles.Del(handle)
	a.known.Del(conn)

	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h.Disconnected(conn, reason)
	}
}

func (a *Adapter) dispatchConnected(conn peripheral.ConnID, status uint8) {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h.Connected(conn, status)
	}
}

// connOf maps a go-ble connection to its id. Platforms without HCI connect
// events report the connection on its first request.
func (a *Adapter) connOf(c ble.Conn) peripheral.ConnID {
	conn := peripheral.ConnID(strings.ToLower(c.RemoteAddr().String()))
	if _, loaded := a.known.GetOrInsert(conn, struct{}{}); !loaded {
		a.dispatchConnected(conn, 0)
	}
	return conn
}

func notifierKey(conn peripheral.ConnID, h gatt.Handle) string {
	return fmt.Sprintf("%s/%04x", conn, uint16(h))
}

// formatPeer renders an HCI peer address, which is little-endian on the wire.
func formatPeer(b [6]byte) string {
	rev := make(net.HardwareAddr, len(b))
	for i := range b {
		rev[i] = b[len(b)-1-i]
	}
	return rev.String()
}
