// Package chip implements the composite EEPROM operations of the programmer
// on top of the bus sequencer: bulk transfers, JEDEC software data
// protection, chip erase and page programming.
//
// A Programmer owns the bus and the page buffer. It is not safe for
// concurrent use; the command protocol runs one operation at a time.
package chip

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/eeprog/pkg/bus"
)

const (
	// UnlockAddr1 and UnlockAddr2 are the JEDEC command addresses.
	UnlockAddr1 uint16 = 0x5555
	UnlockAddr2 uint16 = 0x2AAA

	// DefaultWriteCycle is the worst-case write cycle time of the target
	// family. Page commits are not acknowledged, so it is always waited out.
	DefaultWriteCycle = 10 * time.Millisecond
)

var (
	sdpDisableSequence = []byte{0xAA, 0x55, 0x80, 0xAA, 0x55, 0x20}
	sdpEnableSequence  = []byte{0xAA, 0x55, 0xA0}
	eraseSequence      = []byte{0xAA, 0x55, 0x80, 0xAA, 0x55, 0x10}
)

// commandAddress returns the JEDEC address a command byte is written to.
// Every 0x55 goes to 0x2AAA, everything else to 0x5555.
func commandAddress(data byte) uint16 {
	if data == 0x55 {
		return UnlockAddr2
	}
	return UnlockAddr1
}

// Config holds Programmer tunables.
type Config struct {
	// WriteCycle is waited after page programs, bulk writes and SDP changes.
	WriteCycle time.Duration

	// Logger receives per-operation debug events.
	Logger zerolog.Logger
}

// Option configures a Programmer.
type Option func(*Config)

// WithWriteCycle overrides DefaultWriteCycle. Non-positive values are
// ignored.
func WithWriteCycle(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.WriteCycle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// Programmer runs chip operations against one EEPROM.
type Programmer struct {
	bus  *bus.Bus
	page PageBuffer
	cfg  Config
	log  zerolog.Logger
}

// New creates a Programmer with an erased page buffer based at 0.
func New(b *bus.Bus, opts ...Option) *Programmer {
	cfg := Config{
		WriteCycle: DefaultWriteCycle,
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Programmer{
		bus: b,
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "chip").Logger(),
	}
	p.page.Reset(0)
	return p
}

// Bus returns the underlying bus sequencer.
func (p *Programmer) Bus() *bus.Bus {
	return p.bus
}

// Page returns the page buffer.
func (p *Programmer) Page() *PageBuffer {
	return &p.page
}

// BulkRead reads count consecutive bytes starting at addr. Output-enable is
// asserted once for the whole transfer.
func (p *Programmer) BulkRead(addr uint16, count int) ([]byte, error) {
	p.log.Debug().Uint16("addr", addr).Int("len", count).Msg("bulk read")

	if err := p.bus.SetDataDirection(bus.Input); err != nil {
		return nil, err
	}
	if err := p.bus.SetOutputEnable(true); err != nil {
		return nil, err
	}

	out := make([]byte, count)
	var readErr error
	for i := range out {
		v, err := p.bus.ReadByteAt(addr + uint16(i))
		if err != nil {
			readErr = fmt.Errorf("chip: read 0x%04X: %w", addr+uint16(i), err)
			break
		}
		out[i] = v
	}

	if err := p.bus.SetOutputEnable(false); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

// BulkWrite writes data to consecutive addresses starting at addr and waits
// one write cycle after the last byte.
func (p *Programmer) BulkWrite(addr uint16, data []byte) error {
	p.log.Debug().Uint16("addr", addr).Int("len", len(data)).Msg("bulk write")

	if err := p.writeBytes(addr, data); err != nil {
		return err
	}
	p.bus.Wait(p.cfg.WriteCycle)
	return nil
}

// SetSoftwareDataProtection enables or disables JEDEC software data
// protection. Byte 0 is read first and written back after the command
// sequence: the chip only commits a pending SDP command on a data write.
func (p *Programmer) SetSoftwareDataProtection(enable bool) error {
	p.log.Debug().Bool("enable", enable).Msg("software data protection")

	saved, err := p.BulkRead(0, 1)
	if err != nil {
		return err
	}

	seq := sdpDisableSequence
	if enable {
		seq = sdpEnableSequence
	}

	if err := p.bus.SetDataDirection(bus.Output); err != nil {
		return err
	}
	if err := p.writeSequence(seq); err != nil {
		return err
	}
	if err := p.bus.WriteByteAt(0, saved[0]); err != nil {
		return fmt.Errorf("chip: restore byte 0: %w", err)
	}
	p.bus.Wait(p.cfg.WriteCycle)
	return nil
}

// EraseChip issues the JEDEC chip-erase sequence. The erase is self-timed by
// the chip; EraseChip waits two write cycles for it to finish.
func (p *Programmer) EraseChip() error {
	p.log.Debug().Msg("chip erase")

	if err := p.bus.SetDataDirection(bus.Output); err != nil {
		return err
	}
	if err := p.writeSequence(eraseSequence); err != nil {
		return err
	}
	p.bus.Wait(2 * p.cfg.WriteCycle)
	return nil
}

// PreparePageBuffer sets the page base address and fills the page buffer
// with the erased value.
func (p *Programmer) PreparePageBuffer(base uint16) {
	p.log.Debug().Uint16("base", base).Msg("prepare page")
	p.page.Reset(base)
}

// FillPageBuffer copies data into the page buffer at offset masked into the
// page.
func (p *Programmer) FillPageBuffer(offset uint16, data []byte) error {
	p.log.Debug().Uint16("offset", offset&PageOffsetMask).Int("len", len(data)).Msg("fill page")
	return p.page.Fill(offset, data)
}

// ProgramPageBuffer writes the whole page buffer starting at its base
// address, then waits out the write cycle.
func (p *Programmer) ProgramPageBuffer() error {
	p.log.Debug().Uint16("base", p.page.Base).Msg("program page")

	if err := p.writeBytes(p.page.Base, p.page.data[:]); err != nil {
		return err
	}
	p.bus.Wait(p.cfg.WriteCycle)
	return nil
}

func (p *Programmer) writeBytes(addr uint16, data []byte) error {
	if err := p.bus.SetDataDirection(bus.Output); err != nil {
		return err
	}
	for i, b := range data {
		if err := p.bus.WriteByteAt(addr+uint16(i), b); err != nil {
			return fmt.Errorf("chip: write 0x%04X: %w", addr+uint16(i), err)
		}
	}
	return nil
}

func (p *Programmer) writeSequence(seq []byte) error {
	for _, b := range seq {
		if err := p.bus.WriteByteAt(commandAddress(b), b); err != nil {
			return fmt.Errorf("chip: command sequence: %w", err)
		}
	}
	return nil
}
