package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/peripheral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------
// go-ble fakes
// ----------------------------

type fakeDevice struct {
	mu       sync.Mutex
	services []*ble.Service
	advData  []byte
	scanResp []byte
	advErr   error
	addErr   error
	stopped  bool
}

func (d *fakeDevice) AddService(s *ble.Service) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addErr != nil {
		return d.addErr
	}
	d.services = append(d.services, s)
	return nil
}

func (d *fakeDevice) AdvertiseRaw(ctx context.Context, ad, sr []byte) error {
	d.mu.Lock()
	d.advData = append([]byte(nil), ad...)
	d.scanResp = append([]byte(nil), sr...)
	err := d.advErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) characteristic(t *testing.T, u gatt.UUID16) *ble.Characteristic {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.services, 1, "adapter MUST publish exactly one service")
	for _, c := range d.services[0].Characteristics {
		if c.UUID.Equal(ble.UUID16(uint16(u))) {
			return c
		}
	}
	t.Fatalf("characteristic %s not published", u)
	return nil
}

type fakeConn struct {
	ble.Conn
	addr ble.Addr
}

func (c fakeConn) RemoteAddr() ble.Addr { return c.addr }

type fakeRequest struct {
	ble.Request
	conn   ble.Conn
	data   []byte
	offset int
}

func (r fakeRequest) Conn() ble.Conn { return r.conn }
func (r fakeRequest) Data() []byte   { return r.data }
func (r fakeRequest) Offset() int    { return r.offset }

type fakeResponse struct {
	ble.ResponseWriter
	status ble.ATTError
}

func (r *fakeResponse) SetStatus(s ble.ATTError) { r.status = s }
func (r *fakeResponse) Status() ble.ATTError     { return r.status }

type fakeNotifier struct {
	ble.Notifier
	ctx     context.Context
	mu      sync.Mutex
	written [][]byte
	err     error
}

func (n *fakeNotifier) Context() context.Context { return n.ctx }

func (n *fakeNotifier) Write(b []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.written = append(n.written, append([]byte(nil), b...))
	return len(b), nil
}

func (n *fakeNotifier) Written() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.written
}

// ----------------------------
// Recording event handler
// ----------------------------

type call struct {
	method string
	conn   peripheral.ConnID
	handle gatt.Handle
	value  uint16
	status uint8
	data   []byte
	offset uint16
}

type recordingHandler struct {
	mu       sync.Mutex
	calls    []call
	writeErr error
}

func (r *recordingHandler) record(c call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *recordingHandler) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recordingHandler) Connected(conn peripheral.ConnID, status uint8) {
	r.record(call{method: "Connected", conn: conn, status: status})
}

func (r *recordingHandler) Disconnected(conn peripheral.ConnID, reason uint8) {
	r.record(call{method: "Disconnected", conn: conn, status: reason})
}

func (r *recordingHandler) Write(conn peripheral.ConnID, h gatt.Handle, payload []byte, offset uint16, _ gatt.WriteFlags) (int, error) {
	r.record(call{method: "Write", conn: conn, handle: h, data: payload, offset: offset})
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	return len(payload), nil
}

func (r *recordingHandler) CCCChanged(conn peripheral.ConnID, h gatt.Handle, value uint16) error {
	r.record(call{method: "CCCChanged", conn: conn, handle: h, value: value})
	return nil
}

func (r *recordingHandler) PairingCancelled(conn peripheral.ConnID) {
	r.record(call{method: "PairingCancelled", conn: conn})
}

// ----------------------------
// Helpers
// ----------------------------

func uppercaseTable() *gatt.Table {
	return peripheral.NewTable(
		gatt.WriteHandlerFunc(func(req *gatt.WriteRequest) (int, error) { return len(req.Payload), nil }),
		gatt.CCCHandlerFunc(func(gatt.ConnID, *gatt.Attribute, uint16) {}),
	)
}

func useFakeDevice(t *testing.T, dev *fakeDevice) *DeviceConfig {
	t.Helper()
	orig := DeviceFactory
	t.Cleanup(func() { DeviceFactory = orig })

	captured := &DeviceConfig{}
	DeviceFactory = func(cfg DeviceConfig) (Device, error) {
		*captured = cfg
		return dev, nil
	}
	return captured
}

func newEnabledAdapter(t *testing.T, dev *fakeDevice, h peripheral.EventHandler) (*Adapter, *gatt.Table, *DeviceConfig) {
	t.Helper()
	cfg := useFakeDevice(t, dev)
	logger, _ := logtest.NewNullLogger()
	a := New(logger, WithHCI(1), WithStartGrace(20*time.Millisecond))
	table := uppercaseTable()

	require.NoError(t, a.Register(table, h))
	require.NoError(t, a.Enable(context.Background()))
	return a, table, cfg
}

var peer = fakeConn{addr: ble.NewAddr("AA:BB:CC:DD:EE:FF")}

// ----------------------------
// Tests
// ----------------------------

func TestAdapter_EnableRequiresRegister(t *testing.T) {
	a := New(nil)
	assert.ErrorIs(t, a.Enable(context.Background()), ErrNotRegistered)
	assert.ErrorIs(t, a.Advertise(context.Background(), peripheral.AdvParams{Connectable: true}, advert.Payload{}), ErrNotEnabled)
}

func TestAdapter_EnablePublishesService(t *testing.T) {
	dev := &fakeDevice{}
	_, _, cfg := newEnabledAdapter(t, dev, &recordingHandler{})

	assert.Equal(t, 1, cfg.HCI)
	assert.NotNil(t, cfg.OnConnect)
	assert.NotNil(t, cfg.OnDisconnect)

	require.Len(t, dev.services, 1)
	assert.True(t, dev.services[0].UUID.Equal(ble.UUID16(0x00e1)))

	in := dev.characteristic(t, gatt.WriteCharUUID)
	assert.NotNil(t, in.WriteHandler)
	assert.Nil(t, in.NotifyHandler)

	out := dev.characteristic(t, gatt.NotifyCharUUID)
	assert.Nil(t, out.WriteHandler)
	assert.NotNil(t, out.NotifyHandler)
}

func TestAdapter_EnableFailures(t *testing.T) {
	t.Run("factory", func(t *testing.T) {
		orig := DeviceFactory
		t.Cleanup(func() { DeviceFactory = orig })
		DeviceFactory = func(DeviceConfig) (Device, error) { return nil, errors.New("hci0: permission denied") }

		a := New(nil)
		require.NoError(t, a.Register(uppercaseTable(), &recordingHandler{}))
		err := a.Enable(context.Background())
		assert.ErrorContains(t, err, "permission denied")
	})

	t.Run("add service", func(t *testing.T) {
		dev := &fakeDevice{addErr: errors.New("table full")}
		useFakeDevice(t, dev)

		a := New(nil)
		require.NoError(t, a.Register(uppercaseTable(), &recordingHandler{}))
		assert.ErrorContains(t, a.Enable(context.Background()), "table full")
		assert.True(t, dev.stopped, "device MUST be stopped when publishing fails")
	})
}

func TestAdapter_WriteForwardsToHandler(t *testing.T) {
	dev := &fakeDevice{}
	h := &recordingHandler{}
	_, table, _ := newEnabledAdapter(t, dev, h)

	rsp := &fakeResponse{}
	dev.characteristic(t, gatt.WriteCharUUID).WriteHandler.ServeWrite(
		fakeRequest{conn: peer, data: []byte("hello"), offset: 0}, rsp)

	assert.Equal(t, ble.ErrSuccess, rsp.status)

	in, _ := table.Value(gatt.WriteCharUUID)
	calls := h.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, call{method: "Connected", conn: "aa:bb:cc:dd:ee:ff"}, calls[0],
		"first request from an unseen connection MUST report it as connected")
	assert.Equal(t, "Write", calls[1].method)
	assert.Equal(t, in.Handle, calls[1].handle)
	assert.Equal(t, []byte("hello"), calls[1].data)
}

func TestAdapter_WriteErrorsMapToATT(t *testing.T) {
	tests := []struct {
		err  error
		want ble.ATTError
	}{
		{peripheral.ErrInvalidOffset, ble.ErrInvalidOffset},
		{gatt.ErrWriteNotPermitted, ble.ErrWriteNotPerm},
		{gatt.ErrAttributeNotFound, ble.ErrInvalidHandle},
		{errors.New("anything else"), ble.ErrUnlikely},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			dev := &fakeDevice{}
			h := &recordingHandler{writeErr: tt.err}
			newEnabledAdapter(t, dev, h)

			rsp := &fakeResponse{}
			dev.characteristic(t, gatt.WriteCharUUID).WriteHandler.ServeWrite(
				fakeRequest{conn: peer, data: []byte("x"), offset: 3}, rsp)

			assert.Equal(t, tt.want, rsp.status)
		})
	}
}

func TestAdapter_NotifySubscriptionLifecycle(t *testing.T) {
	// GOAL: A go-ble notifier maps to CCC enable/disable and carries notifications
	//
	// TEST SCENARIO: start notifier -> CCCChanged(0x0001), Notify writes through it;
	// cancel notifier context -> CCCChanged(0x0000), Notify fails with ErrNotSubscribed

	dev := &fakeDevice{}
	h := &recordingHandler{}
	a, table, _ := newEnabledAdapter(t, dev, h)

	out, _ := table.Value(gatt.NotifyCharUUID)
	ccc, _ := table.CCC(gatt.NotifyCharUUID)
	conn := peripheral.ConnID("aa:bb:cc:dd:ee:ff")

	ctx, cancel := context.WithCancel(context.Background())
	n := &fakeNotifier{ctx: ctx}
	served := make(chan struct{})
	go func() {
		defer close(served)
		dev.characteristic(t, gatt.NotifyCharUUID).NotifyHandler.ServeNotify(fakeRequest{conn: peer}, n)
	}()

	require.Eventually(t, func() bool { return a.Subscribed() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Notify(conn, out.Handle, []byte("HELLO")))
	assert.Equal(t, [][]byte{[]byte("HELLO")}, n.Written())

	cancel()
	<-served

	assert.Equal(t, 0, a.Subscribed())
	assert.ErrorIs(t, a.Notify(conn, out.Handle, []byte("X")), ErrNotSubscribed)

	var ccValues []uint16
	for _, c := range h.Calls() {
		if c.method == "CCCChanged" {
			assert.Equal(t, ccc.Handle, c.handle)
			ccValues = append(ccValues, c.value)
		}
	}
	assert.Equal(t, []uint16{peripheral.CCCNotify, peripheral.CCCDisabled}, ccValues)
}

func TestAdapter_NotifyWriteError(t *testing.T) {
	dev := &fakeDevice{}
	a, table, _ := newEnabledAdapter(t, dev, &recordingHandler{})
	out, _ := table.Value(gatt.NotifyCharUUID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := &fakeNotifier{ctx: ctx, err: errors.New("buffer full")}
	go dev.characteristic(t, gatt.NotifyCharUUID).NotifyHandler.ServeNotify(fakeRequest{conn: peer}, n)
	require.Eventually(t, func() bool { return a.Subscribed() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorContains(t, a.Notify("aa:bb:cc:dd:ee:ff", out.Handle, []byte("X")), "buffer full")
}

func TestAdapter_ConnectionEvents(t *testing.T) {
	dev := &fakeDevice{}
	h := &recordingHandler{}
	_, _, cfg := newEnabledAdapter(t, dev, h)

	cfg.OnConnect(0x0040, "AA:BB:CC:DD:EE:FF", 0x3e)
	cfg.OnConnect(0x0041, "AA:BB:CC:DD:EE:FF", 0)
	cfg.OnDisconnect(0x0041, 0x13)
	cfg.OnDisconnect(0x0099, 0x13) // unknown handle

	assert.Equal(t, []call{
		{method: "Connected", conn: "aa:bb:cc:dd:ee:ff", status: 0x3e},
		{method: "Connected", conn: "aa:bb:cc:dd:ee:ff"},
		{method: "Disconnected", conn: "aa:bb:cc:dd:ee:ff", status: 0x13},
	}, h.Calls())
}

func TestAdapter_ConnectEventPreventsDuplicateReport(t *testing.T) {
	dev := &fakeDevice{}
	h := &recordingHandler{}
	_, _, cfg := newEnabledAdapter(t, dev, h)

	cfg.OnConnect(0x0041, "aa:bb:cc:dd:ee:ff", 0)
	dev.characteristic(t, gatt.WriteCharUUID).WriteHandler.ServeWrite(
		fakeRequest{conn: peer, data: []byte("x")}, &fakeResponse{})

	methods := []string{}
	for _, c := range h.Calls() {
		methods = append(methods, c.method)
	}
	assert.Equal(t, []string{"Connected", "Write"}, methods)
}

func TestAdapter_Advertise(t *testing.T) {
	// GOAL: The advertising data goes on air exactly as built; the name only in the scan response
	//
	// TEST SCENARIO: advertise default payload as "periferico" -> ad = 02 01 06 03 03 e1 00,
	// scan response = complete local name

	dev := &fakeDevice{}
	a, _, _ := newEnabledAdapter(t, dev, &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	err := a.Advertise(ctx, peripheral.AdvParams{Connectable: true, Name: "periferico"}, advert.MustDefault(gatt.ServiceUUID))
	require.NoError(t, err)

	dev.mu.Lock()
	assert.Equal(t, []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0xe1, 0x00}, dev.advData)
	assert.Equal(t, append([]byte{0x0b, 0x09}, "periferico"...), dev.scanResp)
	assert.NotContains(t, string(dev.advData), "periferico", "the name MUST NOT be in the advertising data")
	dev.mu.Unlock()

	cancel()
	require.NoError(t, a.Stop())
	assert.True(t, dev.stopped)
	require.NoError(t, a.Stop(), "second Stop MUST be a no-op")
}

func TestAdapter_AdvertiseKeepsPayloadFlags(t *testing.T) {
	dev := &fakeDevice{}
	a, _, _ := newEnabledAdapter(t, dev, &recordingHandler{})

	payload, err := advert.New(adv.Flags(adv.FlagLimitedDiscoverable), adv.AllUUID(ble.UUID16(0x00e1)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Advertise(ctx, peripheral.AdvParams{Connectable: true, Name: "x"}, payload))

	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, []byte{0x02, 0x01, 0x01, 0x03, 0x03, 0xe1, 0x00}, dev.advData)
	assert.Equal(t, []byte{0x02, 0x09, 'x'}, dev.scanResp)
}

func TestAdapter_AdvertiseEarlyFailure(t *testing.T) {
	dev := &fakeDevice{advErr: errors.New("command disallowed")}
	a, _, _ := newEnabledAdapter(t, dev, &recordingHandler{})

	err := a.Advertise(context.Background(), peripheral.AdvParams{Connectable: true, Name: "x"}, advert.MustDefault(gatt.ServiceUUID))
	assert.ErrorContains(t, err, "command disallowed")

	err = a.Advertise(context.Background(), peripheral.AdvParams{Connectable: false}, advert.MustDefault(gatt.ServiceUUID))
	assert.Error(t, err, "non-connectable advertising MUST be rejected")

	err = a.Advertise(context.Background(), peripheral.AdvParams{Connectable: true, Name: "x"}, advert.Payload{})
	assert.ErrorContains(t, err, "empty advertising payload")
}

func TestAdapter_WithPeripheral(t *testing.T) {
	// GOAL: The adapter satisfies the peripheral's stack contract end to end
	//
	// TEST SCENARIO: bring-up over a fake device, subscribe, write "hello" -> "HELLO" notified

	dev := &fakeDevice{}
	useFakeDevice(t, dev)
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	a := New(logger, WithStartGrace(10*time.Millisecond))
	p := peripheral.New(a, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))

	nctx, ncancel := context.WithCancel(context.Background())
	defer ncancel()
	n := &fakeNotifier{ctx: nctx}
	go dev.characteristic(t, gatt.NotifyCharUUID).NotifyHandler.ServeNotify(fakeRequest{conn: peer}, n)
	require.Eventually(t, func() bool { return p.Gate().Enabled("aa:bb:cc:dd:ee:ff") }, time.Second, 5*time.Millisecond)

	rsp := &fakeResponse{}
	dev.characteristic(t, gatt.WriteCharUUID).WriteHandler.ServeWrite(fakeRequest{conn: peer, data: []byte("hello")}, rsp)

	assert.Equal(t, ble.ErrSuccess, rsp.status)
	assert.Equal(t, [][]byte{[]byte("HELLO")}, n.Written())
}

func TestFormatPeer(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", formatPeer([6]byte{0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa}))
}
