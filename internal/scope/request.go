package scope

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Command is the per-operation value object the worker dispatches: it fills
// its own outbound packet, interprets its own inbound reply against shared
// state, and reports whether it can be retired (spec §3 "Request", §4.2).
type Command interface {
	// FillTx serializes this command's opcode and payload into buf. The
	// worker stamps buf[2] (the request id) separately after this call.
	FillTx(buf *[outboundSize]byte) error

	// HandleRx applies an inbound reply already matched to this command by
	// request id. It returns true when the command is complete and may be
	// retired.
	HandleRx(buf [inboundSize]byte, st *State) bool

	// IsFinished reports whether the command can be retired without
	// waiting for a reply at all (control commands, and one-shots that
	// only need the next status frame).
	IsFinished() bool
}

// ---- Quit ----

// QuitCommand terminates the worker (spec §3).
type QuitCommand struct{}

func (QuitCommand) FillTx(*[outboundSize]byte) error        { return nil }
func (QuitCommand) HandleRx([inboundSize]byte, *State) bool { return true }
func (QuitCommand) IsFinished() bool                        { return true }

// ---- Initialize ----

// InitializeCommand powers the device on or off (spec §3, §4.1 S5). It is
// one-shot: no reply is awaited beyond the device's next status frame.
type InitializeCommand struct {
	PowerOn bool
}

func (c InitializeCommand) FillTx(buf *[outboundSize]byte) error {
	fillInitialize(buf, c.PowerOn)
	return nil
}
func (InitializeCommand) HandleRx([inboundSize]byte, *State) bool { return true }
func (InitializeCommand) IsFinished() bool                        { return true }

// ---- SetPulseOutput ----

// SetPulseOutputCommand reconfigures one pulse-output channel and reports
// the device-confirmed configuration back on Reply (spec §3, §4.1). If the
// request is retired without ever reaching the wire (bad config, transport
// failure, shutdown), errOut — when set — receives the cause before Reply
// is closed (spec §7: "serialization errors are returned via the request's
// own reply sink").
type SetPulseOutputCommand struct {
	Channel int
	Config  PulseOutput
	Reply   chan<- PulseOutput
	errOut  *error
}

func (c SetPulseOutputCommand) FillTx(buf *[outboundSize]byte) error {
	return fillPulseOutput(buf, c.Channel, c.Config)
}

func (c SetPulseOutputCommand) HandleRx(_ [inboundSize]byte, st *State) bool {
	st.setPulseOutput(c.Channel, c.Config)
	if c.Reply != nil {
		c.Reply <- c.Config
		close(c.Reply)
	}
	return true
}

func (SetPulseOutputCommand) IsFinished() bool { return false }

// ---- SetAnalogOutput ----

// analog output payload layout (engine-internal assignment; spec §4.1 leaves
// these byte positions to the implementation):
//
//	buf[3]    = flags: bit0 on/off, bits1-2 waveform shape
//	buf[4:12] = frequency, float64 LE bits
//	buf[12:20] = amplitude, float64 LE bits
//	buf[20:28] = DC offset, float64 LE bits
const opSetAnalogOutput = 0x02

// SetAnalogOutputCommand reconfigures one analog-output channel and reports
// the device-confirmed configuration back on Reply (spec §3, §4.1). errOut
// carries the retirement cause when no confirmation ever arrives, matching
// SetPulseOutputCommand.
type SetAnalogOutputCommand struct {
	Channel int
	Config  AnalogOutput
	Reply   chan<- AnalogOutput
	errOut  *error
}

func (c SetAnalogOutputCommand) FillTx(buf *[outboundSize]byte) error {
	buf[1] = opSetAnalogOutput
	var flags byte
	if c.Config.IsOn {
		flags |= 0x01
	}
	flags |= byte(c.Config.Shape&0x03) << 1
	buf[3] = flags
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(c.Config.Frequency))
	binary.LittleEndian.PutUint64(buf[12:20], math.Float64bits(c.Config.Amplitude))
	binary.LittleEndian.PutUint64(buf[20:28], math.Float64bits(c.Config.Offset))
	return nil
}

func (c SetAnalogOutputCommand) HandleRx(_ [inboundSize]byte, st *State) bool {
	st.setAnalogOutput(c.Channel, c.Config)
	if c.Reply != nil {
		c.Reply <- c.Config
		close(c.Reply)
	}
	return true
}

func (SetAnalogOutputCommand) IsFinished() bool { return false }

// ---- RequestData ----

// data-request payload layout (engine-internal assignment):
//
//	buf[3] = channel on-mask, bits 0-3
//	buf[4:8]  = sample interval, microseconds, uint32 LE (derived from rate)
//	buf[8:12] = sample count, uint32 LE (0 == continuous)
const (
	opRequestDataFinite     = 0x03
	opRequestDataContinuous = 0x04
)

// Sample is one acquired reading on one channel.
type Sample struct {
	Channel int
	Value   int16 // raw ADC code
}

// SampleBatch is one delivery of acquired samples, in acquisition order
// (spec §3, §5).
type SampleBatch struct {
	Samples []Sample
}

// RequestDataCommand is the streaming acquisition request (spec §3). It may
// produce many replies; it completes when Count samples have been
// delivered (Count == 0 means continuous, spec §9) or its context is
// cancelled — the idiomatic Go stand-in for "the reply sink was dropped"
// (spec §4.6, §9): cancelling Ctx is how a caller expresses "stop
// streaming to me".
type RequestDataCommand struct {
	Ctx       context.Context
	RateHz    float64
	Count     int // 0 == continuous
	ChannelOn [4]bool

	Out       chan<- SampleBatch
	remaining int
	started   bool
}

func (c *RequestDataCommand) FillTx(buf *[outboundSize]byte) error {
	if c.RateHz <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrBadConfig)
	}
	if !c.started {
		c.remaining = c.Count
		c.started = true
	}

	if c.Count == 0 {
		buf[1] = opRequestDataContinuous
	} else {
		buf[1] = opRequestDataFinite
	}

	var mask byte
	for i, on := range c.ChannelOn {
		if on {
			mask |= 1 << uint(i)
		}
	}
	buf[3] = mask

	intervalUs := uint32(1_000_000.0 / c.RateHz)
	binary.LittleEndian.PutUint32(buf[4:8], intervalUs)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(c.Count))
	return nil
}

// HandleRx decodes a sample-block reply and forwards it to Out, honoring Ctx
// cancellation as the stop signal (spec §4.2, §5).
func (c *RequestDataCommand) HandleRx(buf [inboundSize]byte, _ *State) bool {
	batch := decodeSampleBlock(buf, c.ChannelOn)
	if len(batch.Samples) == 0 {
		return c.isDone()
	}

	select {
	case c.Out <- batch:
	case <-c.Ctx.Done():
		return true
	}

	if c.Count > 0 {
		c.remaining -= len(batch.Samples)
		if c.remaining <= 0 {
			return true
		}
	}
	return c.isDone()
}

func (c *RequestDataCommand) isDone() bool {
	select {
	case <-c.Ctx.Done():
		return true
	default:
		return false
	}
}

func (c *RequestDataCommand) IsFinished() bool { return false }

// decodeSampleBlock reads interleaved little-endian int16 samples from the
// opcode-dependent payload region of a v2 status frame (spec §4.1: "Remaining
// bytes are opcode-dependent payload (e.g. sample block)"). The payload is
// read from byte 4 whatever the wire variant; a v1 frame is decoded the
// same way.
func decodeSampleBlock(buf [inboundSize]byte, channelOn [4]bool) SampleBatch {
	const payloadStart = 4
	var channels []int
	for i, on := range channelOn {
		if on {
			channels = append(channels, i)
		}
	}
	if len(channels) == 0 {
		return SampleBatch{}
	}

	var samples []Sample
	offset := payloadStart
	ch := 0
	for offset+2 <= inboundSize {
		raw := int16(binary.LittleEndian.Uint16(buf[offset : offset+2]))
		samples = append(samples, Sample{Channel: channels[ch%len(channels)], Value: raw})
		ch++
		offset += 2
	}
	return SampleBatch{Samples: samples}
}

// ---- SetAnalogInputRange ----

// SetAnalogInputRangeCommand reconfigures one analog-input channel's gain
// and offset (spec §3 "set_range(lo,hi)"). Unlike the output setters this
// never reaches the wire: the source names no opcode for analog-input
// ranging (spec §4.1's opcode table is silent on it), so, like
// StopRequest, it is handled entirely locally by the worker — the only
// thing that changes is the shared table entry the device's own gain/offset
// hardware is assumed to already reflect.
type SetAnalogInputRangeCommand struct {
	Channel int
	Lo, Hi  float64
	Reply   chan<- AnalogInput
	errOut  *error
}

func (SetAnalogInputRangeCommand) FillTx(*[outboundSize]byte) error { return nil }
func (SetAnalogInputRangeCommand) IsFinished() bool                 { return true }

func (c SetAnalogInputRangeCommand) HandleRx(_ [inboundSize]byte, st *State) bool {
	cfg := st.analogInputAt(c.Channel)
	cfg.SetRange(c.Lo, c.Hi)
	st.setAnalogInput(c.Channel, cfg)
	if c.Reply != nil {
		c.Reply <- cfg
		close(c.Reply)
	}
	return true
}

// ---- StopRequest ----

// StopRequestCommand cancels an in-flight request by id (spec §3). It is
// handled entirely locally by the worker (see worker.go) and never reaches
// the wire: "completes immediately" (spec §3) means no round trip is
// required.
type StopRequestCommand struct {
	TargetID uint8
}

func (StopRequestCommand) FillTx(*[outboundSize]byte) error        { return nil }
func (StopRequestCommand) HandleRx([inboundSize]byte, *State) bool { return true }
func (StopRequestCommand) IsFinished() bool                        { return true }
