// Package gpiosim simulates a 28C256-family parallel EEPROM attached to
// in-memory GPIO pins. It lets the bus, chip and protocol layers run without
// hardware and records what the host did to the chip.
package gpiosim

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"

	"github.com/OpenTraceLab/eeprog/pkg/bus"
)

const (
	// Size is the capacity of the simulated array in bytes.
	Size = 0x8000

	// AddressLines is the number of address pins of the simulated chip.
	AddressLines = 15

	// ErasedValue is the content of an erased cell.
	ErasedValue = 0xFF

	// PageSize is the page-load granularity of the simulated chip.
	PageSize = 64
)

// Stats counts bus events seen by the simulated chip.
type Stats struct {
	Reads       int // read cycles (CE falling while OE asserted)
	Writes      int // data bytes stored in the array
	Ignored     int // data writes dropped because the chip is protected
	Commands    int // completed JEDEC command sequences
	Erases      int // chip erase commands
	Contentions int // host drove the data bus while the chip was driving it
}

type cycle struct {
	addr uint16
	data byte
}

type command int

const (
	cmdNone command = iota
	cmdProtect
	cmdUnprotect
	cmdErase
)

var commandSequences = []struct {
	cmd   command
	cycle []cycle
}{
	{cmdProtect, []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0xA0}}},
	{cmdUnprotect, []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x80}, {0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x20}}},
	{cmdErase, []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x80}, {0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x10}}},
}

// Chip is a simulated EEPROM. Writes land in the array immediately and
// write-cycle busy time is not modelled. After the SDP enable command, data
// writes are accepted only within the first page written, until the next
// read cycle.
type Chip struct {
	mem [Size]byte

	addr []*Pin
	data []*Pin
	ce   *Pin
	oe   *Pin
	we   *Pin

	protected  bool
	unlocked   bool
	windowPage int
	pending    []cycle
	driving    bool

	stats Stats
}

// New returns an erased, unprotected chip with every control line released.
func New() *Chip {
	c := &Chip{windowPage: -1}
	for i := range c.mem {
		c.mem[i] = ErasedValue
	}

	n := 0
	for i := 0; i < AddressLines; i++ {
		c.addr = append(c.addr, newPin(fmt.Sprintf("A%d", i), n))
		n++
	}
	for i := 0; i < bus.DataWidth; i++ {
		p := newPin(fmt.Sprintf("D%d", i), n)
		bit := uint(i)
		p.sample = func(*Pin) gpio.Level { return c.sampleData(bit) }
		p.onOut = func(*Pin) { c.checkContention() }
		c.data = append(c.data, p)
		n++
	}
	c.ce = newPin("CE", n)
	c.oe = newPin("OE", n+1)
	c.we = newPin("WE", n+2)
	for _, p := range []*Pin{c.ce, c.oe, c.we} {
		p.level = gpio.High
		p.output = true
	}
	c.ce.onOut = c.onChipEnable
	c.oe.onOut = c.onOutputEnable
	c.we.onOut = c.onWriteEnable
	return c
}

// Pins returns the chip's lines as a bus bundle.
func (c *Chip) Pins() bus.Pins {
	p := bus.Pins{
		ChipEnable:   c.ce,
		OutputEnable: c.oe,
		WriteEnable:  c.we,
	}
	for _, a := range c.addr {
		p.Address = append(p.Address, a)
	}
	for _, d := range c.data {
		p.Data = append(p.Data, d)
	}
	return p
}

// Lookup returns the line called name ("A0".."A14", "D0".."D7", "CE", "OE"
// or "WE"), or nil if the chip has no such line. It has the same shape as
// gpioreg.ByName so a wiring file can be resolved against the simulator.
func (c *Chip) Lookup(name string) gpio.PinIO {
	for _, group := range [][]*Pin{c.addr, c.data, {c.ce, c.oe, c.we}} {
		for _, p := range group {
			if strings.EqualFold(p.name, name) {
				return p
			}
		}
	}
	return nil
}

// Load copies image into the array starting at offset.
func (c *Chip) Load(offset int, image []byte) error {
	if offset < 0 || offset+len(image) > Size {
		return fmt.Errorf("gpiosim: image of %d bytes at 0x%04X exceeds %d byte array", len(image), offset, Size)
	}
	copy(c.mem[offset:], image)
	return nil
}

// Bytes returns a copy of the array.
func (c *Chip) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, c.mem[:])
	return out
}

// Peek returns the stored byte at addr without a bus cycle.
func (c *Chip) Peek(addr uint16) byte {
	return c.mem[addr&(Size-1)]
}

// Protected reports whether software data protection is enabled.
func (c *Chip) Protected() bool {
	return c.protected
}

// SetProtected forces the protection latch, as a chip shipped with SDP set.
func (c *Chip) SetProtected(on bool) {
	c.protected = on
	c.closeWindow()
}

// Stats returns the event counters.
func (c *Chip) Stats() Stats {
	return c.stats
}

func (c *Chip) address() uint16 {
	var a uint16
	for i, p := range c.addr {
		if p.level == gpio.High {
			a |= 1 << uint(i)
		}
	}
	return a
}

func (c *Chip) dataByte() byte {
	var v byte
	for i, p := range c.data {
		if p.output && p.level == gpio.High {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (c *Chip) outputActive() bool {
	return c.ce.level == gpio.Low && c.oe.level == gpio.Low && c.we.level == gpio.High
}

func (c *Chip) sampleData(bit uint) gpio.Level {
	if !c.outputActive() {
		return gpio.Low
	}
	return gpio.Level(c.mem[c.address()]&(1<<bit) != 0)
}

func (c *Chip) checkContention() {
	active := c.outputActive()
	if !active {
		c.driving = false
		return
	}
	for _, d := range c.data {
		if d.output {
			if !c.driving {
				c.stats.Contentions++
			}
			c.driving = true
			return
		}
	}
	c.driving = false
}

func (c *Chip) onChipEnable(p *Pin) {
	if p.level == gpio.Low && c.oe.level == gpio.Low {
		c.stats.Reads++
	}
	c.checkContention()
}

func (c *Chip) onOutputEnable(p *Pin) {
	if p.level == gpio.Low {
		// A read cycle ends any unlocked write window.
		c.flushPending()
		c.closeWindow()
	}
	c.checkContention()
}

func (c *Chip) onWriteEnable(p *Pin) {
	rising := p.level == gpio.High
	if rising && c.ce.level == gpio.Low && c.oe.level == gpio.High {
		c.latch(cycle{addr: c.address(), data: c.dataByte()})
	}
	c.checkContention()
}

func (c *Chip) latch(w cycle) {
	c.pending = append(c.pending, w)
	cmd, prefix := matchCommand(c.pending)
	if cmd == cmdNone {
		if !prefix {
			c.flushPending()
		}
		return
	}

	c.pending = c.pending[:0]
	c.stats.Commands++
	switch cmd {
	case cmdProtect:
		c.protected = true
		c.unlocked = true
		c.windowPage = -1
	case cmdUnprotect:
		c.protected = false
		c.closeWindow()
	case cmdErase:
		for i := range c.mem {
			c.mem[i] = ErasedValue
		}
		c.stats.Erases++
	}
}

// flushPending stores writes that turned out not to be a command.
func (c *Chip) flushPending() {
	for _, w := range c.pending {
		c.store(w)
	}
	c.pending = c.pending[:0]
}

func (c *Chip) closeWindow() {
	c.unlocked = false
	c.windowPage = -1
}

func (c *Chip) store(w cycle) {
	if c.protected {
		page := int(w.addr&(Size-1)) / PageSize
		if c.unlocked && c.windowPage < 0 {
			c.windowPage = page
		}
		if !c.unlocked || page != c.windowPage {
			c.closeWindow()
			c.stats.Ignored++
			return
		}
	}
	c.mem[w.addr&(Size-1)] = w.data
	c.stats.Writes++
}

// matchCommand reports a completed command, or whether the writes so far are
// a prefix of one.
func matchCommand(writes []cycle) (command, bool) {
	prefix := false
	for _, seq := range commandSequences {
		if len(writes) > len(seq.cycle) {
			continue
		}
		match := true
		for i, w := range writes {
			if w != seq.cycle[i] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if len(writes) == len(seq.cycle) {
			return seq.cmd, false
		}
		prefix = true
	}
	return cmdNone, prefix
}
