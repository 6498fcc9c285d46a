package peripheral

import "time"

// EventKind classifies peripheral events.
type EventKind int

const (
	EventConnected EventKind = iota
	EventConnectionFailed
	EventDisconnected
	EventWrite
	EventNotifySent
	EventNotifyFailed
	EventCCCChanged
	EventPairingCancelled
	EventSample
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectionFailed:
		return "connection-failed"
	case EventDisconnected:
		return "disconnected"
	case EventWrite:
		return "write"
	case EventNotifySent:
		return "notify-sent"
	case EventNotifyFailed:
		return "notify-failed"
	case EventCCCChanged:
		return "ccc-changed"
	case EventPairingCancelled:
		return "pairing-cancelled"
	case EventSample:
		return "sample"
	default:
		return "unknown"
	}
}

// Event is one observable peripheral occurrence, published on the event feed.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Conn   ConnID
	Status uint8  // connect status or disconnect reason
	Value  uint16 // CCC value
	Data   []byte // written, notified or sampled bytes
	Source string // sample source name
	Err    error
}
