package scope

import (
	"fmt"
	"time"

	"github.com/karalabe/hid"
)

// hidTransport is the v1 (legacy) transport: a single HID feature/output
// report is written, and a single input report is awaited (spec §4.5).
// Mirrors a claim/release transport shape (endpoint acquisition paired with
// guaranteed release) and the report-oriented Conn abstraction used by
// other HID-based device libraries.
type hidTransport struct {
	dev *hid.Device
}

// openHIDTransport opens the given HID device path for v1 communication.
func openHIDTransport(info hid.DeviceInfo) (*hidTransport, error) {
	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open hid device: %v", ErrNotAvailable, err)
	}
	return &hidTransport{dev: dev}, nil
}

func (t *hidTransport) WritePacket(packet [outboundSize]byte) error {
	if _, err := t.dev.Write(packet[:]); err != nil {
		return fmt.Errorf("%w: hid write: %v", ErrTransport, err)
	}
	return nil
}

func (t *hidTransport) ReadPacket(deadline time.Duration) ([inboundSize]byte, error) {
	var out [inboundSize]byte

	type result struct {
		n   int
		buf [inboundSize]byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		var buf [inboundSize]byte
		n, err := t.dev.Read(buf[:])
		done <- result{n: n, buf: buf, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return out, fmt.Errorf("%w: hid read: %v", ErrTransport, r.err)
		}
		return r.buf, nil
	case <-time.After(deadline):
		return out, ErrTimeout
	}
}

func (t *hidTransport) Close() error {
	return t.dev.Close()
}
