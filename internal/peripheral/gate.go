package peripheral

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/gatt"
)

// CCC descriptor values
const (
	CCCDisabled uint16 = 0x0000
	CCCNotify   uint16 = 0x0001
	CCCIndicate uint16 = 0x0002
)

// NotificationGate tracks, per connection, whether the client enabled
// notifications through the CCC descriptor.
type NotificationGate struct {
	mu      sync.RWMutex
	enabled map[ConnID]bool
	logger  *logrus.Logger
	emit    func(Event)

	// live reports whether conn is connected; nil admits every connection.
	// It is called with mu held and must not call back into the gate.
	live func(ConnID) bool
}

func newNotificationGate(logger *logrus.Logger, emit func(Event)) *NotificationGate {
	return &NotificationGate{
		enabled: make(map[ConnID]bool),
		logger:  logger,
		emit:    emit,
	}
}

// OnCCCChanged records a descriptor write. Only CCCNotify enables
// notifications; every other value disables them. The last write wins.
// Writes for connections that are no longer live are dropped, so a
// subscription torn down after its disconnect leaves no state behind.
func (g *NotificationGate) OnCCCChanged(conn ConnID, value uint16) {
	enabled := value == CCCNotify

	g.mu.Lock()
	if g.live != nil && !g.live(conn) {
		g.mu.Unlock()
		g.logger.WithFields(logrus.Fields{
			"conn":  conn,
			"value": fmt.Sprintf("0x%04x", value),
		}).Debug("CCC update for closed connection ignored")
		return
	}
	g.enabled[conn] = enabled
	g.mu.Unlock()

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	g.logger.WithFields(logrus.Fields{
		"conn":  conn,
		"value": fmt.Sprintf("0x%04x", value),
	}).Infof("Notify %s", state)
	g.emit(Event{Kind: EventCCCChanged, Time: time.Now(), Conn: conn, Value: value})
}

// ServeCCC implements gatt.CCCHandler.
func (g *NotificationGate) ServeCCC(conn ConnID, _ *gatt.Attribute, value uint16) {
	g.OnCCCChanged(conn, value)
}

// Len returns how many connections have CCC state recorded.
func (g *NotificationGate) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.enabled)
}

// Enabled reports whether conn currently has notifications enabled.
func (g *NotificationGate) Enabled(conn ConnID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled[conn]
}

// Subscribers returns the connections with notifications enabled, sorted.
func (g *NotificationGate) Subscribers() []ConnID {
	g.mu.RLock()
	result := make([]ConnID, 0, len(g.enabled))
	for conn, on := range g.enabled {
		if on {
			result = append(result, conn)
		}
	}
	g.mu.RUnlock()

	slices.Sort(result)
	return result
}

// Forget drops the state kept for conn. Callers mark conn closed before
// calling it.
func (g *NotificationGate) Forget(conn ConnID) {
	g.mu.Lock()
	delete(g.enabled, conn)
	g.mu.Unlock()
}
