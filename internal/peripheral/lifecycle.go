package peripheral

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is a connection's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionController follows connect/disconnect events. It never retries
// failed connections and never restarts advertising; both are up to the
// stack and the central.
type ConnectionController struct {
	mu        sync.RWMutex
	connected map[ConnID]struct{}
	gate      *NotificationGate
	logger    *logrus.Logger
	emit      func(Event)
}

func newConnectionController(gate *NotificationGate, logger *logrus.Logger, emit func(Event)) *ConnectionController {
	c := &ConnectionController{
		connected: make(map[ConnID]struct{}),
		gate:      gate,
		logger:    logger,
		emit:      emit,
	}
	gate.live = func(conn ConnID) bool { return c.State(conn) == StateConnected }
	return c
}

// OnConnected handles a connect event. Status 0 moves conn to Connected;
// any other status is a failed attempt and conn stays Disconnected.
func (c *ConnectionController) OnConnected(conn ConnID, status uint8) {
	log := c.logger.WithFields(logrus.Fields{"conn": conn, "status": fmt.Sprintf("0x%02x", status)})

	if status != 0 {
		err := &ConnectionError{Conn: conn, Status: status}
		log.Warnf("Connection failed (err 0x%02x)", status)
		c.emit(Event{Kind: EventConnectionFailed, Time: time.Now(), Conn: conn, Status: status, Err: err})
		return
	}

	c.mu.Lock()
	c.connected[conn] = struct{}{}
	c.mu.Unlock()

	log.Info("Connected")
	c.emit(Event{Kind: EventConnected, Time: time.Now(), Conn: conn})
}

// OnDisconnected handles a disconnect event and returns conn to Disconnected.
// Notification state is per connection and does not survive the link; CCC
// updates that arrive after this are dropped by the gate.
func (c *ConnectionController) OnDisconnected(conn ConnID, reason uint8) {
	c.mu.Lock()
	delete(c.connected, conn)
	c.mu.Unlock()

	c.gate.Forget(conn)

	c.logger.WithFields(logrus.Fields{
		"conn":   conn,
		"reason": fmt.Sprintf("0x%02x", reason),
	}).Infof("Disconnected (reason 0x%02x)", reason)
	c.emit(Event{Kind: EventDisconnected, Time: time.Now(), Conn: conn, Status: reason})
}

// State returns conn's lifecycle state.
func (c *ConnectionController) State(conn ConnID) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.connected[conn]; ok {
		return StateConnected
	}
	return StateDisconnected
}

// Connected returns the connected connections, sorted.
func (c *ConnectionController) Connected() []ConnID {
	c.mu.RLock()
	result := make([]ConnID, 0, len(c.connected))
	for conn := range c.connected {
		result = append(result, conn)
	}
	c.mu.RUnlock()

	slices.Sort(result)
	return result
}
