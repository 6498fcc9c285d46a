package peripheral

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blup/internal/gatt"
)

// WriteHandler serves writes to the uppercase input characteristic:
// it uppercases the payload and broadcasts it to subscribed connections.
type WriteHandler struct {
	logger       *logrus.Logger
	notify       func(data []byte) error
	emit         func(Event)
	strictOffset bool
}

// HandleWrite accepts a payload at offset 0 and returns len(payload).
//
// Nonzero offsets are ignored unless strict offset checking is enabled, in
// which case the write fails with ErrInvalidOffset. A failed notify is
// logged and never fails the write.
func (w *WriteHandler) HandleWrite(conn ConnID, attr *gatt.Attribute, payload []byte, offset uint16, flags gatt.WriteFlags) (int, error) {
	fields := logrus.Fields{"conn": conn, "len": len(payload)}
	if attr != nil {
		fields["handle"] = fmt.Sprintf("0x%04x", uint16(attr.Handle))
	}
	log := w.logger.WithFields(fields)

	if offset != 0 {
		if w.strictOffset {
			log.WithField("offset", offset).Warn("Rejecting write with nonzero offset")
			return 0, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
		}
		log.WithField("offset", offset).Debug("Ignoring nonzero write offset")
	}

	n := len(payload)
	buf := make([]byte, n+1)
	copy(buf, payload)
	buf[n] = 0 // terminator, never transmitted

	log.WithField("data", cString(buf)).Info("Received data")
	w.emit(Event{Kind: EventWrite, Time: time.Now(), Conn: conn, Data: append([]byte(nil), buf[:n]...)})

	upper(buf[:n])

	log.WithField("data", cString(buf)).Info("Sending data back")
	if err := w.notify(buf[:n]); err != nil {
		log.WithError(err).Warn("Notify failed")
	}

	return n, nil
}

// ServeWrite implements gatt.WriteHandler.
func (w *WriteHandler) ServeWrite(req *gatt.WriteRequest) (int, error) {
	return w.HandleWrite(req.Conn, req.Attr, req.Payload, req.Offset, req.Flags)
}

// cString renders b up to its first NUL byte.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
