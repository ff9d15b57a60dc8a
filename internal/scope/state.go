package scope

import "sync"

// PowerState is the small enumeration decoded from the status byte (spec §3).
type PowerState uint8

const (
	PoweredOff PowerState = iota
	PoweredOn
	PowerStateFault
	PowerStateUnknown
)

// powerStateFromBits decodes the 2-bit field carried in every status frame.
func powerStateFromBits(bits uint8) PowerState {
	switch bits & 0x03 {
	case 0:
		return PoweredOff
	case 1:
		return PoweredOn
	case 2:
		return PowerStateFault
	default:
		return PowerStateUnknown
	}
}

// PowerStatus is the device's power state plus a relative usage indicator
// (spec §3).
type PowerStatus struct {
	State PowerState
	Usage uint8
}

// gainOffsetEntry is one row of the analog-input gain/offset table: Span is
// the largest peak-to-peak voltage the gain setting can represent, and
// Offsets lists the center voltages the offset settings select.
type gainOffsetEntry struct {
	Gain    uint8
	Span    float64
	Offsets []float64 // offsets available at this gain, ascending
}

// gainTable models the nScope's analog front-end: each gain step halves the
// representable span, each offset step shifts the center in 16 equal steps
// across [-span/2, span/2].
var gainTable = buildGainTable()

func buildGainTable() []gainOffsetEntry {
	const gains = 8
	const offsetSteps = 16
	table := make([]gainOffsetEntry, gains)
	span := 20.0 // gain 0 covers a +-10V range
	for g := 0; g < gains; g++ {
		offsets := make([]float64, offsetSteps)
		for o := 0; o < offsetSteps; o++ {
			frac := float64(o)/float64(offsetSteps-1)*2 - 1 // -1..1
			offsets[o] = frac * span / 2
		}
		table[g] = gainOffsetEntry{Gain: uint8(g), Span: span, Offsets: offsets}
		span /= 2
	}
	return table
}

// AnalogInput is the per-channel configuration of an analog input (spec §3).
// The invariant (gain, offset) is always a valid table entry is maintained by
// SetRange, the only mutator exposed to callers.
type AnalogInput struct {
	IsOn          bool
	GainSetting   uint8
	OffsetSetting uint8
}

// DefaultAnalogInput matches the original firmware's power-on default: on,
// ranged to +-5V.
func DefaultAnalogInput() AnalogInput {
	ai := AnalogInput{IsOn: true}
	ai.SetRange(-5.0, 5.0)
	return ai
}

// SetRange chooses the smallest gain whose span covers hi-lo, and the offset
// nearest (lo+hi)/2, maintaining the gain/offset table invariant (spec §3).
func (a *AnalogInput) SetRange(lo, hi float64) {
	want := hi - lo
	center := (lo + hi) / 2

	best := 0 // largest span as fallback, if nothing covers want
	for i, entry := range gainTable {
		if entry.Span < want {
			break
		}
		best = i
	}

	entry := gainTable[best]
	bestOffsetIdx := 0
	bestDist := -1.0
	for i, v := range entry.Offsets {
		d := v - center
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			bestDist = d
			bestOffsetIdx = i
		}
	}

	a.GainSetting = entry.Gain
	a.OffsetSetting = uint8(bestOffsetIdx)
}

// AnalogOutput is the per-channel configuration of an analog (waveform)
// output (spec §3).
type AnalogOutput struct {
	IsOn      bool
	Frequency float64
	Amplitude float64
	Offset    float64
	Shape     WaveShape
}

// WaveShape enumerates the waveform generator's output shapes.
type WaveShape uint8

const (
	WaveSine WaveShape = iota
	WaveSquare
	WaveTriangle
	WaveSawtooth
)

// DefaultAnalogOutput matches the original firmware's power-on default.
func DefaultAnalogOutput() AnalogOutput {
	return AnalogOutput{IsOn: false, Frequency: 1000, Amplitude: 1.0, Shape: WaveSine}
}

// State is the device's shared, concurrently readable configuration and
// status (C3). The worker is the sole writer; readers take a snapshot under
// RLock so callers never hold a mutex-bearing struct.
type State struct {
	mu sync.RWMutex

	fwVersion      *uint8
	powerStatus    PowerStatus
	analogInput    [4]AnalogInput
	analogOutput   [2]AnalogOutput
	pulseOutput    [2]PulseOutput
	unknownReplies uint64
}

// NewState returns a State initialized to the device's power-on defaults.
func NewState() *State {
	s := &State{powerStatus: PowerStatus{State: PowerStateUnknown}}
	for i := range s.analogInput {
		s.analogInput[i] = DefaultAnalogInput()
	}
	for i := range s.analogOutput {
		s.analogOutput[i] = DefaultAnalogOutput()
	}
	for i := range s.pulseOutput {
		s.pulseOutput[i] = DefaultPulseOutput()
	}
	return s
}

// Snapshot is an immutable copy of device state, safe to read without
// further synchronization.
type Snapshot struct {
	FWVersion      uint8
	FWKnown        bool
	PowerStatus    PowerStatus
	AnalogInput    [4]AnalogInput
	AnalogOutput   [2]AnalogOutput
	PulseOutput    [2]PulseOutput
	UnknownReplies uint64
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		PowerStatus:    s.powerStatus,
		AnalogInput:    s.analogInput,
		AnalogOutput:   s.analogOutput,
		PulseOutput:    s.pulseOutput,
		UnknownReplies: s.unknownReplies,
	}
	if s.fwVersion != nil {
		snap.FWVersion = *s.fwVersion
		snap.FWKnown = true
	}
	return snap
}

// setFWVersionOnce sets the firmware version the first time it's observed
// (spec §4.4 step 7: "first-write wins if unset").
func (s *State) setFWVersionOnce(v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fwVersion == nil {
		vv := v
		s.fwVersion = &vv
	}
}

func (s *State) setPowerStatus(bits, usage uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerStatus = PowerStatus{State: powerStateFromBits(bits), Usage: usage}
}

func (s *State) setPulseOutput(channel int, p PulseOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulseOutput[channel] = p
}

func (s *State) setAnalogOutput(channel int, a AnalogOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analogOutput[channel] = a
}

func (s *State) setAnalogInput(channel int, a AnalogInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analogInput[channel] = a
}

func (s *State) pulseOutputAt(channel int) PulseOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pulseOutput[channel]
}

func (s *State) analogOutputAt(channel int) AnalogOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analogOutput[channel]
}

func (s *State) analogInputAt(channel int) AnalogInput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analogInput[channel]
}

// recordUnknownReply counts a reply whose request id matched nothing the
// worker had outstanding (spec §8 property 4: "replies with unknown ids are
// discarded (and counted)").
func (s *State) recordUnknownReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknownReplies++
}
