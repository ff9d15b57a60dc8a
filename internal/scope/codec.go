package scope

import "encoding/binary"

// Packet sizes (spec §4.1, §6): outbound carries a leading report/pad byte,
// inbound does not.
const (
	outboundSize = 65
	inboundSize  = 64
)

// Opcodes (spec §4.1, §6). The analog-output (0x02) and data-request
// (0x03 finite, 0x04 continuous) opcodes are defined beside their commands
// in request.go.
const (
	opInitializeOff = 0x06
	opInitializeOn  = 0x07
	opSetPulse      = 0x01

	// Reserved, not emitted by this engine (spec §6):
	//   0x00 PWM duty, 0x09 scope roll, 0x10 reset-to-bootloader.
)

// wireVariant distinguishes the legacy HID status-frame layout from the
// newer bulk-USB layout (spec §4.1).
type wireVariant int

const (
	variantV1 wireVariant = iota
	variantV2
)

// statusPrefix is the status information every inbound packet carries,
// regardless of variant (spec §4.1, §9 "status frame piggybacking").
type statusPrefix struct {
	RequestID  uint8
	FWVersion  uint8
	PowerBits  uint8
	PowerUsage uint8
}

// decodeStatusPrefix parses the always-present status prefix from an inbound
// packet, branching on wire variant.
//
// v1 (legacy, 3 informative bytes):
//
//	buf[0] & 0x3F  = firmware version
//	(buf[0]&0xC0)>>6 = power state
//	buf[1]         = power usage
//	buf[2]         = request id
//
// v2:
//
//	buf[0] = request id, buf[1] = fw version, buf[2] = power state, buf[3] = power usage
func decodeStatusPrefix(variant wireVariant, buf [inboundSize]byte) statusPrefix {
	if variant == variantV1 {
		return statusPrefix{
			FWVersion:  buf[0] & 0x3F,
			PowerBits:  (buf[0] & 0xC0) >> 6,
			PowerUsage: buf[1],
			RequestID:  buf[2],
		}
	}
	return statusPrefix{
		RequestID:  buf[0],
		FWVersion:  buf[1],
		PowerBits:  buf[2],
		PowerUsage: buf[3],
	}
}

// fillInitialize writes the Initialize command (spec §4.1 S5).
func fillInitialize(buf *[outboundSize]byte, powerOn bool) {
	if powerOn {
		buf[1] = opInitializeOn
	} else {
		buf[1] = opInitializeOff
	}
}

// fillPulseOutput writes one pulse-output channel's bytes into the shared
// pulse-frame layout (spec §4.1); the other channel's bytes are left zero,
// which the firmware treats as "no change" for that channel.
func fillPulseOutput(buf *[outboundSize]byte, channel int, p PulseOutput) error {
	buf[1] = opSetPulse
	i := 3 + 10*channel

	if !p.IsOn {
		buf[i] = 0xFF
		return nil
	}

	regs, err := registers(p)
	if err != nil {
		return err
	}
	buf[i] = 0x80 | regs.Prescale
	binary.LittleEndian.PutUint32(buf[i+1:i+5], regs.Period)
	binary.LittleEndian.PutUint32(buf[i+5:i+9], regs.Duty)
	return nil
}
