package scope

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/gousb"
	"github.com/karalabe/hid"
)

// Device is the caller-visible handle to an open nScope (C6). Open spawns
// the worker and sends Initialize before returning; Close sends Quit and
// waits for the worker to exit.
type Device struct {
	VID, PID uint16
	Variant  wireVariant

	worker *Worker
	state  *State
	closed int32
}

// Open brings up a device around an already-open transport (spec §4.6):
// it spawns the worker, sends Initialize(powerOn), and returns once that
// command has been accepted onto the worker's queue — not once the device
// has acknowledged it, matching Initialize's one-shot, reply-less nature
// (spec §4.4 step 7, §3).
//
// tracing enables the optional eBPF cycle tracer; its absence or failure to
// initialize never affects Open's success.
func Open(transport Transport, variant wireVariant, vid, pid uint16, powerOn, tracing bool) (*Device, error) {
	state := NewState()

	var tr *tracer
	if tracing {
		tr = newTracer(50 * time.Millisecond)
	}

	w := NewWorker(transport, state, variant, tr)
	go w.Run()

	d := &Device{VID: vid, PID: pid, Variant: variant, worker: w, state: state}
	if err := w.Submit(InitializeCommand{PowerOn: powerOn}); err != nil {
		return nil, fmt.Errorf("%w: initialize", err)
	}
	return d, nil
}

// OpenHID opens a v1 nScope found via a prior hid.Enumerate call and brings
// it up (external-collaborator contract, spec §1: "the bench" supplies the
// descriptor; the core only opens it).
func OpenHID(info hid.DeviceInfo, vid, pid uint16, powerOn, tracing bool) (*Device, error) {
	t, err := openHIDTransport(info)
	if err != nil {
		return nil, err
	}
	return Open(t, variantV1, vid, pid, powerOn, tracing)
}

// OpenBulk opens a v2 nScope already selected from a gousb device scan and
// brings it up. ctx must stay open for the life of the returned Device;
// openBulkTransport takes ownership of dev.
func OpenBulk(ctx *gousb.Context, dev *gousb.Device, vid, pid uint16, powerOn, tracing bool) (*Device, error) {
	t, err := openBulkTransport(ctx, dev)
	if err != nil {
		return nil, err
	}
	return Open(t, variantV2, vid, pid, powerOn, tracing)
}

// IsConnected reports whether the worker is still running (spec §4.6).
func (d *Device) IsConnected() bool {
	select {
	case <-d.worker.Done():
		return false
	default:
		return true
	}
}

// Close sends Quit and waits for the worker to exit. Idempotent, and safe
// to call even if the worker has already terminated on its own (spec §4.6,
// §7: "Drop must never panic; it joins the worker silently").
func (d *Device) Close() error {
	if !atomic.CompareAndSwapInt32(&d.closed, 0, 1) {
		return nil
	}
	_ = d.worker.Submit(QuitCommand{})
	<-d.worker.Done()
	return nil
}

// FWVersion returns the firmware version once a status frame has reported
// it (spec §4.6: "fails if no status has been seen").
func (d *Device) FWVersion() (uint8, error) {
	snap := d.state.Snapshot()
	if !snap.FWKnown {
		return 0, fmt.Errorf("%w: firmware version not yet known", ErrNotAvailable)
	}
	return snap.FWVersion, nil
}

// PowerStatus returns the most recently reported power status.
func (d *Device) PowerStatus() PowerStatus {
	return d.state.Snapshot().PowerStatus
}

// UnknownReplies returns the number of inbound replies seen so far whose
// request id matched nothing outstanding (spec §8 property 4).
func (d *Device) UnknownReplies() uint64 {
	return d.state.Snapshot().UnknownReplies
}

// Channel returns analog-input channel ch's current configuration
// (spec §4.6 "channel(ch) -> handle | none"; four channels, 0-3).
func (d *Device) Channel(ch int) (AnalogInput, error) {
	if ch < 0 || ch > 3 {
		return AnalogInput{}, fmt.Errorf("%w: analog input channel %d", ErrBadConfig, ch)
	}
	return d.state.analogInputAt(ch), nil
}

// SetAnalogInputRange blocks until the range change has been applied and
// returns the resulting configuration (spec §3 set_range invariant).
func (d *Device) SetAnalogInputRange(ch int, lo, hi float64) (AnalogInput, error) {
	if ch < 0 || ch > 3 {
		return AnalogInput{}, fmt.Errorf("%w: analog input channel %d", ErrBadConfig, ch)
	}
	reply := make(chan AnalogInput, 1)
	var ferr error
	cmd := SetAnalogInputRangeCommand{Channel: ch, Lo: lo, Hi: hi, Reply: reply, errOut: &ferr}
	if err := d.worker.Submit(cmd); err != nil {
		return AnalogInput{}, err
	}
	confirmed, ok := <-reply
	if !ok {
		if ferr != nil {
			return AnalogInput{}, ferr
		}
		return AnalogInput{}, ErrCancelled
	}
	return confirmed, nil
}

// AnalogOutput returns output channel ch's current configuration
// (spec §4.6 "analog_output(ch)"; two channels, 0-1).
func (d *Device) AnalogOutput(ch int) (AnalogOutput, error) {
	if ch < 0 || ch > 1 {
		return AnalogOutput{}, fmt.Errorf("%w: analog output channel %d", ErrBadConfig, ch)
	}
	return d.state.analogOutputAt(ch), nil
}

// SetAnalogOutput blocks until the device confirms the new configuration.
func (d *Device) SetAnalogOutput(ch int, cfg AnalogOutput) (AnalogOutput, error) {
	if ch < 0 || ch > 1 {
		return AnalogOutput{}, fmt.Errorf("%w: analog output channel %d", ErrBadConfig, ch)
	}
	reply := make(chan AnalogOutput, 1)
	var ferr error
	cmd := SetAnalogOutputCommand{Channel: ch, Config: cfg, Reply: reply, errOut: &ferr}
	if err := d.worker.Submit(cmd); err != nil {
		return AnalogOutput{}, err
	}
	confirmed, ok := <-reply
	if !ok {
		if ferr != nil {
			return AnalogOutput{}, ferr
		}
		return AnalogOutput{}, ErrCancelled
	}
	return confirmed, nil
}

// PulseOutput returns pulse channel ch's current configuration
// (spec §4.6 "pulse_output(ch)"; two channels, 0-1).
func (d *Device) PulseOutput(ch int) (PulseOutput, error) {
	if ch < 0 || ch > 1 {
		return PulseOutput{}, fmt.Errorf("%w: pulse output channel %d", ErrBadConfig, ch)
	}
	return d.state.pulseOutputAt(ch), nil
}

// SetPulseOutput blocks until the device confirms the new configuration
// and returns it (spec §4.6's set_px_* family, generalized to one setter
// taking the whole configuration; SetPxOn/Frequency/Duty below build on
// it to match the original per-field call shape).
func (d *Device) SetPulseOutput(ch int, cfg PulseOutput) (PulseOutput, error) {
	if ch < 0 || ch > 1 {
		return PulseOutput{}, fmt.Errorf("%w: pulse output channel %d", ErrBadConfig, ch)
	}
	reply := make(chan PulseOutput, 1)
	var ferr error
	cmd := SetPulseOutputCommand{Channel: ch, Config: cfg, Reply: reply, errOut: &ferr}
	if err := d.worker.Submit(cmd); err != nil {
		return PulseOutput{}, err
	}
	confirmed, ok := <-reply
	if !ok {
		if ferr != nil {
			return PulseOutput{}, ferr
		}
		return PulseOutput{}, ErrCancelled
	}
	return confirmed, nil
}

// SetPxOn toggles a pulse channel on or off, preserving frequency and duty
// (spec §4.6 set_px_on).
func (d *Device) SetPxOn(ch int, on bool) (PulseOutput, error) {
	cur, err := d.PulseOutput(ch)
	if err != nil {
		return PulseOutput{}, err
	}
	cur.IsOn = on
	return d.SetPulseOutput(ch, cur)
}

// SetPxFrequency changes a pulse channel's frequency, preserving on/off and
// duty (spec §4.6 set_px_frequency).
func (d *Device) SetPxFrequency(ch int, hz float64) (PulseOutput, error) {
	cur, err := d.PulseOutput(ch)
	if err != nil {
		return PulseOutput{}, err
	}
	cur.Frequency = hz
	return d.SetPulseOutput(ch, cur)
}

// SetPxDuty changes a pulse channel's duty cycle, preserving on/off and
// frequency (spec §4.6 set_px_duty).
func (d *Device) SetPxDuty(ch int, duty float64) (PulseOutput, error) {
	cur, err := d.PulseOutput(ch)
	if err != nil {
		return PulseOutput{}, err
	}
	cur.Duty = duty
	return d.SetPulseOutput(ch, cur)
}

// RequestData starts a streaming acquisition at rateHz across the given
// channels, delivering count samples total; count == 0 means continuous
// (spec §9's resolution of the request-API open question). Cancelling ctx
// stops the stream at its next attempted delivery; the returned channel is
// always closed when the stream ends, for any reason.
func (d *Device) RequestData(ctx context.Context, rateHz float64, count int, channelOn [4]bool) (<-chan SampleBatch, error) {
	out := make(chan SampleBatch, 4)
	cmd := &RequestDataCommand{
		Ctx:       ctx,
		RateHz:    rateHz,
		Count:     count,
		ChannelOn: channelOn,
		Out:       out,
	}
	if err := d.worker.Submit(cmd); err != nil {
		close(out)
		return nil, err
	}
	return out, nil
}

// RequestContinuous is RequestData with no sample limit (spec §9: the bare
// `request()` form is shorthand for continuous acquisition).
func (d *Device) RequestContinuous(ctx context.Context, rateHz float64, channelOn [4]bool) (<-chan SampleBatch, error) {
	return d.RequestData(ctx, rateHz, 0, channelOn)
}

// String renders a short human-readable summary, mirroring the original
// source's Debug output for Nscope/NscopeLink.
func (d *Device) String() string {
	variant := "v1(HID)"
	if d.Variant == variantV2 {
		variant = "v2(bulk)"
	}
	return fmt.Sprintf("nScope{VID: 0x%04X, PID: 0x%04X, Variant: %s, Connected: %v}",
		d.VID, d.PID, variant, d.IsConnected())
}
