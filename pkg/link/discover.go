package link

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// InterfaceKind categorizes the places a programmer can be reached.
type InterfaceKind string

const (
	InterfaceKindSerial    InterfaceKind = "serial"
	InterfaceKindUSBSerial InterfaceKind = "usb-serial"
	InterfaceKindStdio     InterfaceKind = "stdio"
)

// InterfaceInfo describes one detected interface.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	// Path is the device to pass to Open. It is empty for a USB bridge that
	// has no serial driver bound.
	Path string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.VendorID != 0 || i.ProductID != 0 {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return string(i.Kind)
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

// knownBridges are USB-serial converters and boards commonly used to carry
// the programmer's serial line.
var knownBridges = []knownUSBDevice{
	{VendorID: 0x0403, ProductID: 0x6001, Description: "FTDI FT232R"},
	{VendorID: 0x0403, ProductID: 0x6015, Description: "FTDI FT231X"},
	{VendorID: 0x1a86, ProductID: 0x7523, Description: "WCH CH340"},
	{VendorID: 0x10c4, ProductID: 0xea60, Description: "Silicon Labs CP210x"},
	{VendorID: 0x2341, ProductID: 0x0043, Description: "Arduino Uno"},
	{VendorID: 0x2341, ProductID: 0x0042, Description: "Arduino Mega 2560"},
	{VendorID: 0x2e8a, ProductID: 0x000a, Description: "Raspberry Pi Pico (CDC)"},
}

func lookupBridge(vid, pid uint16) (knownUSBDevice, bool) {
	for _, known := range knownBridges {
		if known.VendorID == vid && known.ProductID == pid {
			return known, true
		}
	}
	return knownUSBDevice{}, false
}

// discoverer holds the enumeration back ends so tests can replace them.
type discoverer struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	scanUSB   func(ctx context.Context, visit func(*gousb.DeviceDesc)) error
}

var system = discoverer{
	listPorts: enumerator.GetDetailedPortsList,
	scanUSB:   scanLibUSB,
}

// Discover lists serial ports, known USB-serial bridges that have no port
// yet, and the stdio pseudo-interface, which is always last.
func Discover(ctx context.Context) ([]InterfaceInfo, error) {
	return system.discover(ctx)
}

func (d discoverer) discover(ctx context.Context) ([]InterfaceInfo, error) {
	var (
		results []InterfaceInfo
		errs    []error
	)

	ports, err := d.listPorts()
	if err != nil {
		errs = append(errs, fmt.Errorf("link: list serial ports: %w", err))
	}
	withPort := make(map[[2]uint16]bool)
	for _, p := range ports {
		info := classifyPort(p)
		if info.Kind == InterfaceKindUSBSerial {
			withPort[[2]uint16{info.VendorID, info.ProductID}] = true
		}
		results = append(results, info)
	}

	err = d.scanUSB(ctx, func(desc *gousb.DeviceDesc) {
		vid, pid := uint16(desc.Vendor), uint16(desc.Product)
		known, ok := lookupBridge(vid, pid)
		if !ok || withPort[[2]uint16{vid, pid}] {
			return
		}
		results = append(results, InterfaceInfo{
			Kind:        InterfaceKindUSBSerial,
			Description: fmt.Sprintf("%s (usb %d:%d, no serial port)", known.Description, desc.Bus, desc.Address),
			VendorID:    vid,
			ProductID:   pid,
		})
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("link: scan usb: %w", err))
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindStdio,
		Description: "Standard input/output",
		Path:        StdioPath,
	})
	return results, errors.Join(errs...)
}

func classifyPort(p *enumerator.PortDetails) InterfaceInfo {
	info := InterfaceInfo{Kind: InterfaceKindSerial, Path: p.Name}
	if !p.IsUSB {
		return info
	}

	info.Kind = InterfaceKindUSBSerial
	info.Serial = p.SerialNumber
	vid, verr := strconv.ParseUint(p.VID, 16, 16)
	pid, perr := strconv.ParseUint(p.PID, 16, 16)
	if verr != nil || perr != nil {
		return info
	}
	info.VendorID, info.ProductID = uint16(vid), uint16(pid)
	if known, ok := lookupBridge(info.VendorID, info.ProductID); ok {
		info.Description = fmt.Sprintf("%s on %s", known.Description, p.Name)
	}
	return info
}

func scanLibUSB(ctx context.Context, visit func(*gousb.DeviceDesc)) error {
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		visit(desc)
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return err
	}
	return ctx.Err()
}
