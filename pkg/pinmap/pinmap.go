// Package pinmap describes how a parallel EEPROM is wired to host GPIO lines.
//
// A wiring file lists the address, data and control lines by the names the
// GPIO registry knows them by:
//
//	# Raspberry Pi header to AT28C256
//	chip "AT28C256"
//	address A0..A14 = GPIO2, GPIO3, GPIO4, ...
//	data    D0..D7  = GPIO17, GPIO27, ...
//	ce = GPIO22
//	oe = GPIO23
//	we = GPIO24
//
// Parse builds a Map from such a file and Resolve turns it into bus.Pins.
package pinmap

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/OpenTraceLab/eeprog/pkg/bus"
)

// ErrIncomplete is returned when a wiring file leaves a signal unassigned.
var ErrIncomplete = errors.New("pinmap: incomplete wiring")

// Map is the wiring of one chip: line names per signal, lowest bit first.
type Map struct {
	Chip         string
	Address      []string
	Data         []string
	ChipEnable   string
	OutputEnable string
	WriteEnable  string
}

// Line is one row of a wiring table.
type Line struct {
	Signal string
	Name   string
}

// Lookup finds a host line by name; it returns nil for unknown names.
type Lookup func(name string) gpio.PinIO

// HostLookup resolves names through the periph GPIO registry. InitHost must
// have been called first.
func HostLookup(name string) gpio.PinIO {
	return gpioreg.ByName(name)
}

// InitHost loads the periph host drivers so HostLookup can see the board's
// GPIO lines.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("pinmap: init host: %w", err)
	}
	return nil
}

// Validate checks line counts, missing control lines and lines wired to
// more than one signal.
func (m *Map) Validate() error {
	switch {
	case len(m.Address) == 0:
		return fmt.Errorf("%w: no address lines", ErrIncomplete)
	case len(m.Address) > bus.MaxAddressLines:
		return fmt.Errorf("pinmap: %d address lines, at most %d supported", len(m.Address), bus.MaxAddressLines)
	case len(m.Data) == 0:
		return fmt.Errorf("%w: no data lines", ErrIncomplete)
	case len(m.Data) != bus.DataWidth:
		return fmt.Errorf("pinmap: %d data lines, want %d", len(m.Data), bus.DataWidth)
	case m.ChipEnable == "":
		return fmt.Errorf("%w: ce not assigned", ErrIncomplete)
	case m.OutputEnable == "":
		return fmt.Errorf("%w: oe not assigned", ErrIncomplete)
	case m.WriteEnable == "":
		return fmt.Errorf("%w: we not assigned", ErrIncomplete)
	}

	owner := make(map[string]string)
	for _, l := range m.Lines() {
		key := strings.ToUpper(l.Name)
		if prev, ok := owner[key]; ok {
			return fmt.Errorf("pinmap: line %s wired to both %s and %s", l.Name, prev, l.Signal)
		}
		owner[key] = l.Signal
	}
	return nil
}

// Lines returns the wiring as a table in bus order: address, data, then the
// control lines.
func (m *Map) Lines() []Line {
	lines := make([]Line, 0, len(m.Address)+len(m.Data)+3)
	for i, name := range m.Address {
		lines = append(lines, Line{Signal: fmt.Sprintf("A%d", i), Name: name})
	}
	for i, name := range m.Data {
		lines = append(lines, Line{Signal: fmt.Sprintf("D%d", i), Name: name})
	}
	return append(lines,
		Line{Signal: "CE", Name: m.ChipEnable},
		Line{Signal: "OE", Name: m.OutputEnable},
		Line{Signal: "WE", Name: m.WriteEnable},
	)
}

// Resolve looks every line up with lookup and returns the bus bundle. A nil
// lookup means HostLookup.
func (m *Map) Resolve(lookup Lookup) (bus.Pins, error) {
	if err := m.Validate(); err != nil {
		return bus.Pins{}, err
	}
	if lookup == nil {
		lookup = HostLookup
	}

	resolved := make([]gpio.PinIO, 0, len(m.Address)+len(m.Data)+3)
	for _, l := range m.Lines() {
		p := lookup(l.Name)
		if p == nil {
			return bus.Pins{}, fmt.Errorf("pinmap: %s: no GPIO line named %q", l.Signal, l.Name)
		}
		resolved = append(resolved, p)
	}

	var pins bus.Pins
	for _, p := range resolved[:len(m.Address)] {
		pins.Address = append(pins.Address, p)
	}
	pins.Data = resolved[len(m.Address) : len(m.Address)+len(m.Data)]
	ctl := resolved[len(m.Address)+len(m.Data):]
	pins.ChipEnable, pins.OutputEnable, pins.WriteEnable = ctl[0], ctl[1], ctl[2]
	return pins, pins.Validate()
}
