package scope

import "errors"

// Error kinds surfaced to callers (spec §7). Wrap with fmt.Errorf("...: %w", ErrX)
// and unwrap with errors.Is.
var (
	// ErrNotAvailable means no matching device is present or openable.
	ErrNotAvailable = errors.New("nscope: device not available")

	// ErrAlreadyOpen means an attempt was made to reopen a live handle.
	ErrAlreadyOpen = errors.New("nscope: device already open")

	// ErrBadConfig means a request carried an invalid configuration
	// (pulse too short/long, bad duty, bad channel index).
	ErrBadConfig = errors.New("nscope: bad configuration")

	// ErrTransport means a read or write failed. A read that times out
	// returns ErrTimeout instead, and the worker ends with ErrDisconnected
	// once too many consecutive reads time out.
	ErrTransport = errors.New("nscope: transport error")

	// ErrDisconnected means the worker has terminated; further commands fail.
	ErrDisconnected = errors.New("nscope: device disconnected")

	// ErrCancelled means a request was retired due to shutdown or a stop.
	ErrCancelled = errors.New("nscope: request cancelled")
)
