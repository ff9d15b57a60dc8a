package scope

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetAnalogOutputCommandFillTx checks the engine-internal analog
// output payload layout documented in request.go.
func TestSetAnalogOutputCommandFillTx(t *testing.T) {
	cmd := SetAnalogOutputCommand{
		Channel: 1,
		Config: AnalogOutput{
			IsOn: true, Shape: WaveSquare,
			Frequency: 2500.0, Amplitude: 3.3, Offset: -0.5,
		},
	}

	var buf [outboundSize]byte
	assert.NoError(t, cmd.FillTx(&buf))

	assert.EqualValues(t, opSetAnalogOutput, buf[1])
	assert.EqualValues(t, 0x01|(byte(WaveSquare)<<1), buf[3])
	assert.Equal(t, 2500.0, math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12])))
	assert.Equal(t, 3.3, math.Float64frombits(binary.LittleEndian.Uint64(buf[12:20])))
	assert.Equal(t, -0.5, math.Float64frombits(binary.LittleEndian.Uint64(buf[20:28])))
}

// TestDecodeSampleBlockRoundRobinsChannels checks that enabled channels
// are assigned samples round-robin, and disabled channels never appear.
func TestDecodeSampleBlockRoundRobinsChannels(t *testing.T) {
	var buf [inboundSize]byte
	for i := 4; i+1 < inboundSize; i += 2 {
		binary.LittleEndian.PutUint16(buf[i:i+2], uint16(i))
	}

	batch := decodeSampleBlock(buf, [4]bool{true, false, true, false})
	assert.NotEmpty(t, batch.Samples)
	for i, s := range batch.Samples {
		if i%2 == 0 {
			assert.Equal(t, 0, s.Channel)
		} else {
			assert.Equal(t, 2, s.Channel)
		}
	}
}

// TestDecodeSampleBlockNoChannelsOn checks the degenerate case produces no
// samples rather than panicking on a modulo-by-zero.
func TestDecodeSampleBlockNoChannelsOn(t *testing.T) {
	var buf [inboundSize]byte
	batch := decodeSampleBlock(buf, [4]bool{})
	assert.Empty(t, batch.Samples)
}

// TestRequestDataCommandRejectsNonPositiveRate checks FillTx's validation
// (spec §4.2 fill_tx returning invalid-config).
func TestRequestDataCommandRejectsNonPositiveRate(t *testing.T) {
	cmd := &RequestDataCommand{RateHz: 0, ChannelOn: [4]bool{true}}
	var buf [outboundSize]byte
	err := cmd.FillTx(&buf)
	assert.ErrorIs(t, err, ErrBadConfig)
}
