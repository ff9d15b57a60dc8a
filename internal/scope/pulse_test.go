package scope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegistersS1 checks the 1 kHz @ 50% scenario.
func TestRegistersS1(t *testing.T) {
	regs, err := registers(PulseOutput{IsOn: true, Frequency: 1000.0, Duty: 0.5})
	assert.NoError(t, err)
	assert.EqualValues(t, 0, regs.Prescale, "prescale should be divider 1")
	assert.EqualValues(t, 16000, regs.Period)
	assert.EqualValues(t, 8000, regs.Duty)
}

// TestRegistersS2 checks the 1 Hz @ 10% scenario, which needs prescale 256.
func TestRegistersS2(t *testing.T) {
	regs, err := registers(PulseOutput{IsOn: true, Frequency: 1.0, Duty: 0.1})
	assert.NoError(t, err)
	assert.EqualValues(t, 3, regs.Prescale, "prescale index 3 selects divider 256")
	assert.EqualValues(t, 62500, regs.Period)
	assert.EqualValues(t, 6250, regs.Duty)
}

// TestRegistersS3Rejected checks that an absurdly high frequency is
// rejected as "too short".
func TestRegistersS3Rejected(t *testing.T) {
	_, err := registers(PulseOutput{IsOn: true, Frequency: 10_000_000.0, Duty: 0.5})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadConfig))
}

// TestRegistersTooLong checks that a period past 65535*256 ticks is
// rejected as "too long".
func TestRegistersTooLong(t *testing.T) {
	_, err := registers(PulseOutput{IsOn: true, Frequency: 0.001, Duty: 0.5})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadConfig))
}

// TestRegistersBounds checks property 2 from the testable-properties list:
// for valid periods, period_ticks*prescale reproduces period_ns*16/1000
// within rounding, and duty_ticks is within (0, period_ticks].
func TestRegistersBounds(t *testing.T) {
	dividers := map[uint8]uint64{0: 1, 1: 8, 2: 64, 3: 256}

	cases := []PulseOutput{
		{IsOn: true, Frequency: 1000, Duty: 0.5},
		{IsOn: true, Frequency: 1, Duty: 0.1},
		{IsOn: true, Frequency: 50, Duty: 0.9},
		{IsOn: true, Frequency: 10, Duty: 0.01},
	}
	for _, p := range cases {
		regs, err := registers(p)
		assert.NoError(t, err)
		div := dividers[regs.Prescale]
		expectedTicks := uint64(p.Period()*1e9) * 16 / 1000 / div
		assert.InDelta(t, float64(expectedTicks), float64(regs.Period), 1, "period ticks for %+v", p)
		assert.Greater(t, regs.Duty, uint32(0))
		assert.LessOrEqual(t, regs.Duty, regs.Period)
	}
}
