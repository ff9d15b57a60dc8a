package scope

import (
	"sync"
	"time"
)

// fakeTransport is an in-memory Transport double used by worker and device
// tests: it never touches real hardware, but exercises the same interface
// the HID and bulk transports implement. onWrite, if set, synthesizes the
// device's reply to each outbound packet; otherwise every ReadPacket call
// times out, simulating a silent or absent device.
type fakeTransport struct {
	mu      sync.Mutex
	writes  [][outboundSize]byte
	replies chan [inboundSize]byte
	onWrite func(buf [outboundSize]byte) [inboundSize]byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(chan [inboundSize]byte, 16)}
}

func (f *fakeTransport) WritePacket(buf [outboundSize]byte) error {
	f.mu.Lock()
	f.writes = append(f.writes, buf)
	onWrite := f.onWrite
	f.mu.Unlock()

	if onWrite != nil {
		f.replies <- onWrite(buf)
	}
	return nil
}

func (f *fakeTransport) ReadPacket(deadline time.Duration) ([inboundSize]byte, error) {
	select {
	case p := <-f.replies:
		return p, nil
	case <-time.After(deadline):
		return [inboundSize]byte{}, ErrTimeout
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) lastWrite() ([outboundSize]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return [outboundSize]byte{}, false
	}
	return f.writes[len(f.writes)-1], true
}
