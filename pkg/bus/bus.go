// Package bus sequences read and write cycles on a parallel EEPROM bus
// through GPIO lines.
package bus

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const (
	// DataWidth is the number of data lines of the parallel EEPROM bus.
	DataWidth = 8

	// MaxAddressLines bounds the address bus to the protocol's 16-bit
	// address field.
	MaxAddressLines = 16

	// MinPulse is the shortest enable pulse and read settle time the bus will
	// ever use.
	MinPulse = time.Microsecond
)

// Direction selects whether the data lines are driven by the bus (Output)
// or sampled from the chip (Input).
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

var (
	// ErrNotReadable is returned by ReadByteAt when the data lines are not
	// inputs or output-enable has not been asserted by the caller.
	ErrNotReadable = errors.New("bus: read requires input data lines and asserted output-enable")

	// ErrNotWritable is returned by WriteByteAt when the data lines are not
	// outputs or output-enable is still asserted.
	ErrNotWritable = errors.New("bus: write requires output data lines and released output-enable")
)

// Pins bundles every line wired between the programmer and the chip.
// Address[0] is A0 and Data[0] is D0. The three control lines are active low.
type Pins struct {
	Address      []gpio.PinOut
	Data         []gpio.PinIO
	ChipEnable   gpio.PinOut
	OutputEnable gpio.PinOut
	WriteEnable  gpio.PinOut
}

// Validate checks that the bundle is complete.
func (p Pins) Validate() error {
	if len(p.Address) == 0 || len(p.Address) > MaxAddressLines {
		return fmt.Errorf("bus: need 1..%d address lines, got %d", MaxAddressLines, len(p.Address))
	}
	for i, pin := range p.Address {
		if pin == nil {
			return fmt.Errorf("bus: address line A%d is not wired", i)
		}
	}
	if len(p.Data) != DataWidth {
		return fmt.Errorf("bus: need %d data lines, got %d", DataWidth, len(p.Data))
	}
	for i, pin := range p.Data {
		if pin == nil {
			return fmt.Errorf("bus: data line D%d is not wired", i)
		}
	}
	if p.ChipEnable == nil || p.OutputEnable == nil || p.WriteEnable == nil {
		return errors.New("bus: chip-enable, output-enable and write-enable must all be wired")
	}
	return nil
}

// Bus sequences single-byte read and write cycles on a parallel EEPROM.
//
// Data direction and output-enable are left to the caller so that a bulk
// transfer can set them once for many bytes. ReadByteAt and WriteByteAt only
// check that the caller has done so.
type Bus struct {
	pins  Pins
	delay func(time.Duration)
	pulse time.Duration

	dir           Direction
	outputEnabled bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithDelay replaces the timed wait used for pulse widths and write cycles.
// Tests use it to record waits instead of sleeping.
func WithDelay(fn func(time.Duration)) Option {
	return func(b *Bus) {
		if fn != nil {
			b.delay = fn
		}
	}
}

// WithPulseWidth sets the enable pulse width. Values below MinPulse are
// raised to MinPulse.
func WithPulseWidth(d time.Duration) Option {
	return func(b *Bus) {
		if d < MinPulse {
			d = MinPulse
		}
		b.pulse = d
	}
}

// New validates pins and returns a Bus with every control line released and
// the data lines configured as inputs.
func New(pins Pins, opts ...Option) (*Bus, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}
	b := &Bus{
		pins:  pins,
		delay: Wait,
		pulse: MinPulse,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.Idle(); err != nil {
		return nil, err
	}
	return b, nil
}

// Idle releases CE, OE and WE and turns the data lines into inputs.
func (b *Bus) Idle() error {
	for _, pin := range []gpio.PinOut{b.pins.WriteEnable, b.pins.OutputEnable, b.pins.ChipEnable} {
		if err := drive(pin, gpio.High); err != nil {
			return err
		}
	}
	b.outputEnabled = false
	return b.SetDataDirection(Input)
}

// AddressLines returns the number of wired address lines.
func (b *Bus) AddressLines() int {
	return len(b.pins.Address)
}

// AddressMask returns the mask of the addresses reachable through the wired
// address lines.
func (b *Bus) AddressMask() uint16 {
	return uint16(1<<uint(len(b.pins.Address)) - 1)
}

// Direction returns the current data line direction.
func (b *Bus) Direction() Direction {
	return b.dir
}

// OutputEnabled reports whether output-enable is asserted.
func (b *Bus) OutputEnabled() bool {
	return b.outputEnabled
}

// SetAddress drives every address line from the matching bit of addr.
// Bits above the wired lines are ignored.
func (b *Bus) SetAddress(addr uint16) error {
	for i, pin := range b.pins.Address {
		if err := drive(pin, gpio.Level(addr&(1<<uint(i)) != 0)); err != nil {
			return err
		}
	}
	return nil
}

// SetDataDirection reconfigures the data lines. Switching to Output drives
// them low until the next write.
func (b *Bus) SetDataDirection(d Direction) error {
	for i, pin := range b.pins.Data {
		var err error
		if d == Output {
			err = pin.Out(gpio.Low)
		} else {
			err = pin.In(gpio.Float, gpio.NoEdge)
		}
		if err != nil {
			return fmt.Errorf("bus: set D%d %s: %w", i, d, err)
		}
	}
	b.dir = d
	return nil
}

// SetOutputEnable asserts (drives low) or releases output-enable.
func (b *Bus) SetOutputEnable(asserted bool) error {
	if err := drive(b.pins.OutputEnable, activeLow(asserted)); err != nil {
		return err
	}
	b.outputEnabled = asserted
	return nil
}

// ReadByteAt runs one read cycle: address, CE asserted, settle, sample, CE
// released. Data lines must be inputs and output-enable asserted.
func (b *Bus) ReadByteAt(addr uint16) (byte, error) {
	if b.dir != Input || !b.outputEnabled {
		return 0, ErrNotReadable
	}
	if err := b.SetAddress(addr); err != nil {
		return 0, err
	}
	if err := drive(b.pins.ChipEnable, gpio.Low); err != nil {
		return 0, err
	}
	b.delay(b.pulse)

	var value byte
	for i, pin := range b.pins.Data {
		if pin.Read() == gpio.High {
			value |= 1 << uint(i)
		}
	}

	if err := drive(b.pins.ChipEnable, gpio.High); err != nil {
		return 0, err
	}
	return value, nil
}

// WriteByteAt runs one write cycle: address, data, CE then WE asserted, hold,
// WE then CE released. Data lines must be outputs and output-enable released.
func (b *Bus) WriteByteAt(addr uint16, value byte) error {
	if b.dir != Output || b.outputEnabled {
		return ErrNotWritable
	}
	if err := b.SetAddress(addr); err != nil {
		return err
	}
	for i, pin := range b.pins.Data {
		if err := drive(pin, gpio.Level(value&(1<<uint(i)) != 0)); err != nil {
			return err
		}
	}

	if err := drive(b.pins.ChipEnable, gpio.Low); err != nil {
		return err
	}
	if err := drive(b.pins.WriteEnable, gpio.Low); err != nil {
		_ = drive(b.pins.ChipEnable, gpio.High)
		return err
	}
	b.delay(b.pulse)

	weErr := drive(b.pins.WriteEnable, gpio.High)
	ceErr := drive(b.pins.ChipEnable, gpio.High)
	if weErr != nil {
		return weErr
	}
	return ceErr
}

// Wait blocks for d using the bus's timed wait.
func (b *Bus) Wait(d time.Duration) {
	b.delay(d)
}

func activeLow(asserted bool) gpio.Level {
	return gpio.Level(!asserted)
}

func drive(pin gpio.PinOut, l gpio.Level) error {
	if err := pin.Out(l); err != nil {
		return fmt.Errorf("bus: drive %s %s: %w", pin.Name(), l, err)
	}
	return nil
}
