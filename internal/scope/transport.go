package scope

import "time"

// Transport is the capability set the worker needs from whichever physical
// interface is underneath it (spec §4.5, §9 "express the transport behind a
// capability set"). HID and bulk-USB each provide one implementation; a new
// transport (e.g. a simulated one for tests) requires no worker changes.
type Transport interface {
	// WritePacket sends one 65-byte outbound packet.
	WritePacket(packet [outboundSize]byte) error

	// ReadPacket reads one 64-byte inbound packet, blocking up to deadline.
	ReadPacket(deadline time.Duration) ([inboundSize]byte, error)

	// Close releases the transport's claimed resources.
	Close() error
}

// ErrTimeout is returned by ReadPacket when no packet arrives before the
// deadline (spec §4.4 step 5).
var ErrTimeout = errTimeout{}

type errTimeout struct{}

func (errTimeout) Error() string { return "nscope: transport read timeout" }
func (errTimeout) Timeout() bool { return true }
