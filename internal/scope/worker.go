package scope

import (
	"log"
	"time"
)

const (
	defaultReadTimeout            = 500 * time.Millisecond
	defaultMaxConsecutiveTimeouts = 10
)

// Worker owns the exclusive transport handle and is the sole goroutine that
// touches it (spec §4.4, §5: "one worker per device, single-threaded I/O").
// Callers submit Commands through Submit; the worker fills, transmits,
// awaits and routes replies, and retires each Command once it reports
// itself done.
type Worker struct {
	transport Transport
	state     *State
	variant   wireVariant
	tracer    *tracer

	readTimeout            time.Duration
	maxConsecutiveTimeouts int

	inbox chan Command
	done  chan struct{}
}

// NewWorker constructs a worker around an already-open transport. Run must
// be started (typically in its own goroutine) before Submit does anything
// useful. tr may be nil; every tracer method tolerates a nil receiver.
func NewWorker(transport Transport, state *State, variant wireVariant, tr *tracer) *Worker {
	return &Worker{
		transport:              transport,
		state:                  state,
		variant:                variant,
		tracer:                 tr,
		readTimeout:            defaultReadTimeout,
		maxConsecutiveTimeouts: defaultMaxConsecutiveTimeouts,
		inbox:                  make(chan Command, 16),
		done:                   make(chan struct{}),
	}
}

// Submit enqueues a command for the worker to process. It reports
// ErrDisconnected if the worker has already terminated.
func (w *Worker) Submit(cmd Command) error {
	select {
	case w.inbox <- cmd:
		return nil
	case <-w.done:
		return ErrDisconnected
	}
}

// Done returns a channel closed once the run loop has exited, whether by
// Quit or by disconnection.
func (w *Worker) Done() <-chan struct{} { return w.done }

// cancelCommand retires a command without a successful reply: it records
// why (in errOut, when the command has one) and closes whatever reply
// channel the caller is waiting on — an end-of-stream close on RequestData's
// Out, and an errOut-then-close on the setters, so the caller's next read
// observes the actual cause instead of a bare closed channel (spec §7:
// "serialization errors are returned via the request's own reply sink";
// spec §9: channel closure is the Go stand-in for "the reply sink was
// dropped").
func cancelCommand(cmd Command, err error) {
	switch c := cmd.(type) {
	case SetPulseOutputCommand:
		if c.errOut != nil {
			*c.errOut = err
		}
		if c.Reply != nil {
			close(c.Reply)
		}
	case SetAnalogOutputCommand:
		if c.errOut != nil {
			*c.errOut = err
		}
		if c.Reply != nil {
			close(c.Reply)
		}
	case SetAnalogInputRangeCommand:
		if c.errOut != nil {
			*c.errOut = err
		}
		if c.Reply != nil {
			close(c.Reply)
		}
	case *RequestDataCommand:
		if c.Out != nil {
			close(c.Out)
		}
	}
	if err != nil {
		log.Printf("nscope: worker: retiring %T: %v", cmd, err)
	}
}

// Run is the I/O run loop (C4). It owns the transport exclusively until a
// QuitCommand is processed or consecutive read timeouts exceed the
// configured threshold, at which point it drains any in-flight and queued
// commands and closes Done.
//
// At most one streaming RequestData is active at a time; it is re-issued
// every cycle until it reports itself finished, is superseded by a new
// RequestData, or is cancelled by a matching StopRequest or its own
// context. Quit, StopRequest and SetAnalogInputRange are handled locally;
// a command that IsFinished is written once with request id 0 and no
// reply is awaited. Every other command gets a single fill/transmit/read
// round trip, matched back to it by the monotonic request id stamped in
// buf[2] (spec §4.4, §9).
func (w *Worker) Run() {
	defer close(w.done)
	defer w.transport.Close()
	defer w.tracer.Close()

	inFlight := make(map[uint8]Command)
	var active Command
	var activeID uint8
	var nextID uint8 = 1
	consecutiveTimeouts := 0

	nextRequestID := func() uint8 {
		id := nextID
		nextID++
		if nextID == 0 { // 0 is reserved for "no request" (spec §4.4)
			nextID = 1
		}
		return id
	}

	transmit := func(cmd Command) (id uint8, err error) {
		var buf [outboundSize]byte
		id = nextRequestID()
		if err := cmd.FillTx(&buf); err != nil {
			return 0, err
		}
		buf[2] = id
		if err := w.transport.WritePacket(buf); err != nil {
			return 0, err
		}
		return id, nil
	}

	clearActive := func(err error) {
		if active == nil {
			return
		}
		cancelCommand(active, err)
		active = nil
		activeID = 0
	}

	retireAll := func(err error) {
		for id, cmd := range inFlight {
			cancelCommand(cmd, err)
			delete(inFlight, id)
		}
		clearActive(err)
		for {
			select {
			case cmd := <-w.inbox:
				cancelCommand(cmd, err)
			default:
				return
			}
		}
	}

	// handle applies one freshly-dequeued command: it transmits one-shot
	// commands immediately, installs (or supersedes) the active stream,
	// or performs the local bookkeeping for Stop/Quit. It reports true
	// only for Quit.
	handle := func(cmd Command) (quit bool) {
		switch c := cmd.(type) {
		case QuitCommand:
			return true

		case StopRequestCommand:
			if target, ok := inFlight[c.TargetID]; ok {
				cancelCommand(target, ErrCancelled)
				delete(inFlight, c.TargetID)
			}
			if c.TargetID == activeID {
				clearActive(ErrCancelled)
			}
			return false

		case SetAnalogInputRangeCommand:
			c.HandleRx([inboundSize]byte{}, w.state)
			return false

		case *RequestDataCommand:
			clearActive(ErrCancelled)
			active = c
			return false

		default:
			if cmd.IsFinished() {
				var buf [outboundSize]byte
				if err := cmd.FillTx(&buf); err != nil {
					cancelCommand(cmd, err)
					return false
				}
				buf[2] = 0
				if err := w.transport.WritePacket(buf); err != nil {
					cancelCommand(cmd, err)
					return false
				}
				cmd.HandleRx([inboundSize]byte{}, w.state)
				return false
			}
			if id, err := transmit(cmd); err != nil {
				cancelCommand(cmd, err)
			} else {
				inFlight[id] = cmd
			}
			return false
		}
	}

	for {
		if len(inFlight) == 0 && active == nil {
			// Nothing outstanding: block until a command arrives.
			cmd := <-w.inbox
			if handle(cmd) {
				retireAll(ErrCancelled)
				return
			}
			continue
		}

		select {
		case cmd := <-w.inbox:
			if handle(cmd) {
				retireAll(ErrCancelled)
				return
			}
		default:
		}

		if active != nil && activeID == 0 {
			if id, err := transmit(active); err != nil {
				clearActive(err)
			} else {
				activeID = id
			}
		}

		if len(inFlight) == 0 && activeID == 0 {
			continue
		}

		cycleStart := w.tracer.cycleStart()
		resp, err := w.transport.ReadPacket(w.readTimeout)
		w.tracer.cycleEnd(cycleStart)

		if err != nil {
			if err == ErrTimeout {
				consecutiveTimeouts++
				if consecutiveTimeouts > w.maxConsecutiveTimeouts {
					log.Printf("nscope: worker: %d consecutive read timeouts, disconnecting", consecutiveTimeouts)
					retireAll(ErrDisconnected)
					return
				}
				continue
			}
			log.Printf("nscope: worker: read: %v", err)
			retireAll(ErrDisconnected)
			return
		}
		consecutiveTimeouts = 0

		prefix := decodeStatusPrefix(w.variant, resp)
		w.state.setFWVersionOnce(prefix.FWVersion)
		w.state.setPowerStatus(prefix.PowerBits, prefix.PowerUsage)

		switch {
		case prefix.RequestID == 0:
			// Unsolicited status-only frame; nothing to route.

		case prefix.RequestID == activeID:
			if active.HandleRx(resp, w.state) {
				clearActive(nil)
			} else {
				activeID = 0 // re-issue next cycle
			}

		default:
			if cmd, ok := inFlight[prefix.RequestID]; ok {
				if cmd.HandleRx(resp, w.state) {
					delete(inFlight, prefix.RequestID)
				}
			} else {
				w.state.recordUnknownReply()
			}
		}
	}
}
