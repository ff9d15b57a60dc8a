package scope

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// tracer is an optional, best-effort instrumentation hook around each
// worker dispatch cycle (spec §9: diagnostic only, never required for
// correctness). cycleStart, cycleEnd and Close are safe to call on a nil
// *tracer, so the worker never needs to branch on whether one was
// successfully created.
type tracer struct {
	events *ebpf.Map
	reader *ringbuf.Reader
	slow   time.Duration
}

// newTracer attempts to stand up a ring buffer and a reader that drains it,
// returning nil (not an error) if the host can't support it: RemoveMemlock
// before any map operation, and a best-effort load that degrades to
// "tracing disabled" rather than failing the caller. Nothing in this
// package writes to the ring buffer; slow cycles are logged by cycleEnd
// from wall-clock timing.
func newTracer(slowCycle time.Duration) *tracer {
	if err := rlimit.RemoveMemlock(); err != nil {
		log.Printf("nscope: tracer: remove memlock rlimit: %v (tracing disabled)", err)
		return nil
	}

	events, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "nscope_cycle_events",
		Type:       ebpf.RingBuf,
		MaxEntries: 1 << 16,
	})
	if err != nil {
		log.Printf("nscope: tracer: create ring buffer: %v (tracing disabled)", err)
		return nil
	}

	reader, err := ringbuf.NewReader(events)
	if err != nil {
		log.Printf("nscope: tracer: open ring buffer reader: %v (tracing disabled)", err)
		events.Close()
		return nil
	}

	t := &tracer{events: events, reader: reader, slow: slowCycle}
	go t.drain()
	return t
}

// drain logs cycle records as a future cycle-accounting program would push
// them into the ring buffer. No program is attached by this driver today;
// the reader exists so one can be dropped in later without a worker change.
func (t *tracer) drain() {
	for {
		record, err := t.reader.Read()
		if err != nil {
			return
		}
		if len(record.RawSample) >= 8 {
			ticks := binary.LittleEndian.Uint64(record.RawSample[:8])
			log.Printf("nscope: tracer: cycle event (%d raw ticks)", ticks)
		}
	}
}

// cycleStart marks the beginning of one read/write dispatch cycle.
func (t *tracer) cycleStart() time.Time {
	if t == nil {
		return time.Time{}
	}
	return time.Now()
}

// cycleEnd logs a notice if the cycle exceeded the slow threshold.
func (t *tracer) cycleEnd(start time.Time) {
	if t == nil || start.IsZero() {
		return
	}
	if d := time.Since(start); d > t.slow {
		log.Printf("nscope: tracer: slow dispatch cycle: %s", d)
	}
}

// Close releases the tracer's kernel resources, if any were acquired.
func (t *tracer) Close() {
	if t == nil {
		return
	}
	t.reader.Close()
	t.events.Close()
}
