package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetRangeChoosesSmallestCoveringGain checks the SetRange invariant
// (spec §3): smallest gain whose span covers hi-lo, offset nearest the
// center.
func TestSetRangeChoosesSmallestCoveringGain(t *testing.T) {
	var a AnalogInput
	a.SetRange(-5.0, 5.0)

	entry := gainTable[a.GainSetting]
	assert.GreaterOrEqual(t, entry.Span, 10.0, "span must cover the requested 10V range")
	if int(a.GainSetting) < len(gainTable)-1 {
		assert.Less(t, gainTable[a.GainSetting+1].Span, 10.0, "should be the smallest covering gain")
	}

	center := entry.Offsets[a.OffsetSetting]
	assert.InDelta(t, 0.0, center, entry.Span/15, "offset should land near the requested center")
}

// TestSetRangeNarrowWindow checks a tight, off-center range still resolves
// to a valid table entry.
func TestSetRangeNarrowWindow(t *testing.T) {
	var a AnalogInput
	a.SetRange(1.0, 1.2)

	assert.Less(t, int(a.GainSetting), len(gainTable))
	entry := gainTable[a.GainSetting]
	assert.GreaterOrEqual(t, entry.Span, 0.2)
	assert.Less(t, int(a.OffsetSetting), len(entry.Offsets))
}

// TestStateSnapshotIsolated checks that mutating shared State doesn't
// retroactively change a Snapshot already taken (spec §4.3, invariant 2).
func TestStateSnapshotIsolated(t *testing.T) {
	st := NewState()
	before := st.Snapshot()
	assert.False(t, before.FWKnown)

	st.setFWVersionOnce(7)
	st.setPowerStatus(1, 42)

	after := st.Snapshot()
	assert.False(t, before.FWKnown, "earlier snapshot must remain unaffected")
	assert.True(t, after.FWKnown)
	assert.EqualValues(t, 7, after.FWVersion)
	assert.Equal(t, PoweredOn, after.PowerStatus.State)
	assert.EqualValues(t, 42, after.PowerStatus.Usage)
}

// TestSetFWVersionOnceFirstWriteWins checks spec §4.4 step 7.
func TestSetFWVersionOnceFirstWriteWins(t *testing.T) {
	st := NewState()
	st.setFWVersionOnce(3)
	st.setFWVersionOnce(9)

	snap := st.Snapshot()
	assert.EqualValues(t, 3, snap.FWVersion)
}
