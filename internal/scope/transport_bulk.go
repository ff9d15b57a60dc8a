package scope

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Bulk-USB endpoint addresses and interface count (spec §4.4: "five
// interfaces are claimed at startup", §6).
const (
	bulkEndpointOut    = 0x01
	bulkEndpointIn     = 0x81
	bulkInterfaceCount = 5
)

// bulkTransport is the v2 transport: writes go to a known OUT endpoint,
// reads come from a known IN endpoint (spec §4.5). Grounded directly on the
// teacher's usb_device.go (OpenUSBDevice/SendPacket/ReadPacket).
type bulkTransport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intfs  []*gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// openBulkTransport opens a v2 nScope over bulk USB, claiming the interfaces
// the firmware expects (spec §4.4: construction error if any claim fails,
// and the worker never starts). ctx must outlive the returned transport;
// Close releases dev and its interfaces but leaves ctx for the caller to
// close once it is done opening devices.
func openBulkTransport(ctx *gousb.Context, dev *gousb.Device) (*bulkTransport, error) {
	config, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: set usb config: %v", ErrTransport, err)
	}

	intfs := make([]*gousb.Interface, 0, bulkInterfaceCount)
	for i := 0; i < bulkInterfaceCount; i++ {
		intf, err := config.Interface(i, 0)
		if err != nil {
			for _, claimed := range intfs {
				claimed.Close()
			}
			config.Close()
			dev.Close()
			return nil, fmt.Errorf("%w: claim usb interface %d: %v", ErrTransport, i, err)
		}
		intfs = append(intfs, intf)
	}

	primary := intfs[0]
	epOut, err := primary.OutEndpoint(bulkEndpointOut)
	if err != nil {
		closeAll(intfs, config, dev)
		return nil, fmt.Errorf("%w: open out endpoint: %v", ErrTransport, err)
	}
	epIn, err := primary.InEndpoint(bulkEndpointIn)
	if err != nil {
		closeAll(intfs, config, dev)
		return nil, fmt.Errorf("%w: open in endpoint: %v", ErrTransport, err)
	}

	return &bulkTransport{
		ctx:    ctx,
		dev:    dev,
		config: config,
		intfs:  intfs,
		epOut:  epOut,
		epIn:   epIn,
	}, nil
}

func closeAll(intfs []*gousb.Interface, config *gousb.Config, dev *gousb.Device) {
	for _, intf := range intfs {
		intf.Close()
	}
	if config != nil {
		config.Close()
	}
	if dev != nil {
		dev.Close()
	}
}

func (t *bulkTransport) WritePacket(packet [outboundSize]byte) error {
	if _, err := t.epOut.Write(packet[:]); err != nil {
		return fmt.Errorf("%w: bulk write: %v", ErrTransport, err)
	}
	return nil
}

func (t *bulkTransport) ReadPacket(deadline time.Duration) ([inboundSize]byte, error) {
	var out [inboundSize]byte
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	n, err := t.epIn.ReadContext(ctx, out[:])
	if err != nil {
		if ctx.Err() != nil {
			return out, ErrTimeout
		}
		return out, fmt.Errorf("%w: bulk read: %v", ErrTransport, err)
	}
	if n < inboundSize {
		return out, fmt.Errorf("%w: short bulk read: got %d bytes", ErrTransport, n)
	}
	return out, nil
}

func (t *bulkTransport) Close() error {
	closeAll(t.intfs, t.config, t.dev)
	return nil
}
