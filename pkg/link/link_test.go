package link

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/gousb"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

func TestOpenStdio(t *testing.T) {
	rw, err := Open(StdioPath, 0)
	if err != nil {
		t.Fatalf("Open(stdio) returned error: %v", err)
	}
	if _, ok := rw.(stdio); !ok {
		t.Fatalf("Open(stdio) = %T, want stdio", rw)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyNONE")
	if _, err := Open(path, DefaultBaud); err == nil {
		t.Fatalf("expected error opening %s", path)
	}
}

// silentPort is a serial.Port whose reads always time out.
type silentPort struct {
	serial.Port
}

func (silentPort) Read([]byte) (int, error) {
	return 0, nil
}

func TestPortReadTimeout(t *testing.T) {
	p := &Port{port: silentPort{}, path: "/dev/ttyTEST", timed: true}
	buf := make([]byte, 4)
	if _, err := p.Read(buf); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}

	p.timed = false
	if n, err := p.Read(buf); n != 0 || err != nil {
		t.Fatalf("untimed Read() = %d, %v", n, err)
	}
}

func TestClassifyPort(t *testing.T) {
	tests := []struct {
		name string
		port enumerator.PortDetails
		want InterfaceInfo
	}{
		{
			name: "native uart",
			port: enumerator.PortDetails{Name: "/dev/ttyS0"},
			want: InterfaceInfo{Kind: InterfaceKindSerial, Path: "/dev/ttyS0"},
		},
		{
			name: "known bridge",
			port: enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", SerialNumber: "X1"},
			want: InterfaceInfo{
				Kind:        InterfaceKindUSBSerial,
				Description: "WCH CH340 on /dev/ttyUSB0",
				VendorID:    0x1a86,
				ProductID:   0x7523,
				Serial:      "X1",
				Path:        "/dev/ttyUSB0",
			},
		},
		{
			name: "unknown usb device",
			port: enumerator.PortDetails{Name: "/dev/ttyACM3", IsUSB: true, VID: "CAFE", PID: "0001"},
			want: InterfaceInfo{Kind: InterfaceKindUSBSerial, VendorID: 0xcafe, ProductID: 0x0001, Path: "/dev/ttyACM3"},
		},
		{
			name: "unparsable ids",
			port: enumerator.PortDetails{Name: "COM4", IsUSB: true, VID: "zz"},
			want: InterfaceInfo{Kind: InterfaceKindUSBSerial, Path: "COM4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := tt.port
			if got := classifyPort(&port); got != tt.want {
				t.Fatalf("classifyPort() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	d := discoverer{
		listPorts: func() ([]*enumerator.PortDetails, error) {
			return []*enumerator.PortDetails{
				{Name: "/dev/ttyS0"},
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
			}, nil
		},
		scanUSB: func(_ context.Context, visit func(*gousb.DeviceDesc)) error {
			visit(&gousb.DeviceDesc{Bus: 1, Address: 4, Vendor: 0x0403, Product: 0x6001})
			visit(&gousb.DeviceDesc{Bus: 1, Address: 7, Vendor: 0x10c4, Product: 0xea60})
			visit(&gousb.DeviceDesc{Bus: 2, Address: 1, Vendor: 0x1d6b, Product: 0x0002})
			return nil
		},
	}

	got, err := d.discover(context.Background())
	if err != nil {
		t.Fatalf("discover returned error: %v", err)
	}
	labels := make([]string, len(got))
	for i, info := range got {
		labels[i] = info.Label()
	}
	want := []string{
		"serial",
		"FTDI FT232R on /dev/ttyUSB0",
		"Silicon Labs CP210x (usb 1:7, no serial port)",
		"Standard input/output",
	}
	if len(labels) != len(want) {
		t.Fatalf("labels = %q, want %q", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %q, want %q", labels, want)
		}
	}
	if got[len(got)-1].Path != StdioPath {
		t.Fatalf("stdio entry has path %q", got[len(got)-1].Path)
	}
}

func TestDiscoverKeepsPartialResults(t *testing.T) {
	d := discoverer{
		listPorts: func() ([]*enumerator.PortDetails, error) {
			return nil, errors.New("no sysfs")
		},
		scanUSB: func(context.Context, func(*gousb.DeviceDesc)) error {
			return gousb.ErrorNotSupported
		},
	}

	got, err := d.discover(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, gousb.ErrorNotSupported) {
		t.Fatalf("error %v does not wrap the usb failure", err)
	}
	if len(got) != 1 || got[0].Kind != InterfaceKindStdio {
		t.Fatalf("results = %+v, want only stdio", got)
	}
}
