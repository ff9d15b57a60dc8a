// Package bench enumerates attached nScopes without opening them, and
// opens the one a caller selects. This is the "bench" external
// collaborator spec.md names but does not define internally: a descriptor
// source the core device package opens.
package bench

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/karalabe/hid"

	"github.com/nlabs-nscope/nscope-go/internal/scope"
)

// nScope device identification (spec §6).
const (
	nscopeVID = 0x04D8
	nscopePID = 0xF3F6

	// DFU-mode identification, classification only (spec §6, §1: DFU is a
	// separate transport/subsystem, not multiplexed by the core).
	dfuVID = 0x0483
	dfuPID = 0xA4AB
)

// Kind classifies what a Link actually refers to.
type Kind int

const (
	KindHID Kind = iota
	KindBulk
	KindDFU
)

func (k Kind) String() string {
	switch k {
	case KindHID:
		return "v1(HID)"
	case KindBulk:
		return "v2(bulk)"
	case KindDFU:
		return "DFU"
	default:
		return "unknown"
	}
}

// Link is an unopened descriptor for one attached device (spec.md §1 "the
// bench"; grounded on lab_bench.rs's NscopeLink: list cheaply, open on
// demand).
type Link struct {
	VID, PID uint16
	Kind     Kind

	hidInfo hid.DeviceInfo
	usbBus  int
	usbAddr int
}

func (l Link) String() string {
	return fmt.Sprintf("NscopeLink{VID: 0x%04X, PID: 0x%04X, Kind: %s}", l.VID, l.PID, l.Kind)
}

// List enumerates every nScope-shaped device currently attached across
// both transports, plus DFU-mode devices for classification only
// (grounded on lab_bench.rs's LabBench::new scanning both transports, and
// scope_dfu.rs's DFU identification).
func List() ([]Link, error) {
	var links []Link

	hidInfos, err := hid.Enumerate(nscopeVID, nscopePID)
	if err != nil {
		return nil, fmt.Errorf("bench: enumerate hid devices: %w", err)
	}
	for _, info := range hidInfos {
		links = append(links, Link{VID: nscopeVID, PID: nscopePID, Kind: KindHID, hidInfo: info})
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	// The predicate runs against already-read descriptors; returning false
	// for every candidate means OpenDevices never actually opens anything
	// here, matching the "list without opening" contract.
	_, err = ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		switch {
		case uint16(desc.Vendor) == nscopeVID && uint16(desc.Product) == nscopePID:
			links = append(links, Link{
				VID: nscopeVID, PID: nscopePID, Kind: KindBulk,
				usbBus: desc.Bus, usbAddr: desc.Address,
			})
		case uint16(desc.Vendor) == dfuVID && uint16(desc.Product) == dfuPID:
			links = append(links, Link{VID: dfuVID, PID: dfuPID, Kind: KindDFU})
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("bench: enumerate usb devices: %w", err)
	}

	return links, nil
}

// Open brings the selected link up as a live nScope device (spec.md §4.6
// Open, sourced from the bench's descriptor). DFU-mode links cannot be
// opened as a scope; firmware download is a separate, unimplemented
// subsystem (spec §1).
func Open(link Link, powerOn bool) (*scope.Device, error) {
	switch link.Kind {
	case KindHID:
		return scope.OpenHID(link.hidInfo, link.VID, link.PID, powerOn, false)

	case KindBulk:
		ctx := gousb.NewContext()
		devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			return desc.Bus == link.usbBus && desc.Address == link.usbAddr
		})
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("bench: open usb device: %w", err)
		}
		if len(devs) == 0 {
			ctx.Close()
			return nil, fmt.Errorf("%w: usb device no longer present", scope.ErrNotAvailable)
		}
		for _, extra := range devs[1:] {
			extra.Close()
		}
		// ctx must outlive the device; scope.OpenBulk's transport closes
		// dev but not ctx, so it is leaked intentionally across process
		// lifetime once a scope is open, keeping the libusb context alive
		// for as long as any device opened through it is in use.
		return scope.OpenBulk(ctx, devs[0], link.VID, link.PID, powerOn, false)

	default:
		return nil, fmt.Errorf("%w: device is in DFU mode, not an nScope", scope.ErrNotAvailable)
	}
}
