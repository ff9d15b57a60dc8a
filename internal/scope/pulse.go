package scope

import (
	"fmt"
	"math"
)

// timebaseHz is the pulse generator's reference clock (spec §3, §6).
const timebaseHz = 16_000_000

// prescale register values, in increasing order. The wire value for index i
// is i itself (0,1,2,3); the divider is prescaleDividers[i].
var prescaleDividers = [4]uint64{1, 8, 64, 256}

const (
	minPeriodTicks = 4
	maxPeriodTicks = uint64(65535) * 256
)

// PulseOutput is the per-channel pulse generator configuration (spec §3).
type PulseOutput struct {
	IsOn      bool
	Frequency float64 // Hz, > 0
	Duty      float64 // (0, 1)
}

// DefaultPulseOutput matches the original firmware's power-on default.
func DefaultPulseOutput() PulseOutput {
	return PulseOutput{IsOn: false, Frequency: 1.0, Duty: 0.5}
}

// Period returns the pulse period.
func (p PulseOutput) Period() float64 {
	return 1.0 / p.Frequency
}

// PulseWidth returns the high-time of the pulse.
func (p PulseOutput) PulseWidth() float64 {
	return p.Period() * p.Duty
}

// pulseRegisters is (prescale register value, period ticks, duty ticks).
type pulseRegisters struct {
	Prescale uint8
	Period   uint32
	Duty     uint32
}

// registers computes the wire registers for a pulse configuration, following
// the nScope firmware's 16 MHz timebase (spec §3):
//
//	period_ticks = period_ns * 16 / 1000 / prescale
//
// prescale is the smallest of {1,8,64,256} such that period_ticks <= 65535.
// Periods under 4 ticks or over 65535*256 ticks are rejected.
func registers(p PulseOutput) (pulseRegisters, error) {
	periodNanos := uint64(math.Round(p.Period() * 1e9))
	dutyNanos := uint64(math.Round(float64(periodNanos) * p.Duty))

	// timebaseHz/1_000_000 == 16 MHz/MHz == ticks per microsecond's worth of
	// nanosecond precision; dividing by 1000 converts nanoseconds to ticks.
	periodTicksRaw := periodNanos * (timebaseHz / 1_000_000) / 1000
	dutyTicksRaw := dutyNanos * (timebaseHz / 1_000_000) / 1000

	if periodTicksRaw < minPeriodTicks {
		return pulseRegisters{}, fmt.Errorf("%w: pulse period too short", ErrBadConfig)
	}

	var prescaleIdx = -1
	for i, div := range prescaleDividers {
		if periodTicksRaw <= uint64(65535)*div {
			prescaleIdx = i
			break
		}
	}
	if prescaleIdx == -1 {
		return pulseRegisters{}, fmt.Errorf("%w: pulse period too long", ErrBadConfig)
	}

	div := prescaleDividers[prescaleIdx]
	return pulseRegisters{
		Prescale: uint8(prescaleIdx),
		Period:   uint32(periodTicksRaw / div),
		Duty:     uint32(dutyTicksRaw / div),
	}, nil
}
