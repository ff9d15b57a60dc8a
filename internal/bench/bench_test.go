package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "v1(HID)", KindHID.String())
	assert.Equal(t, "v2(bulk)", KindBulk.String())
	assert.Equal(t, "DFU", KindDFU.String())
}

func TestLinkString(t *testing.T) {
	l := Link{VID: nscopeVID, PID: nscopePID, Kind: KindBulk}
	assert.Contains(t, l.String(), "0x04D8")
	assert.Contains(t, l.String(), "0xF3F6")
	assert.Contains(t, l.String(), "v2(bulk)")
}

func TestOpenRejectsDFULink(t *testing.T) {
	_, err := Open(Link{VID: dfuVID, PID: dfuPID, Kind: KindDFU}, true)
	assert.Error(t, err)
}
