package gpiosim

import (
	"bytes"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

// writeCycle drives one WE-controlled write directly on the pins.
func writeCycle(c *Chip, addr uint16, data byte) {
	for i, p := range c.addr {
		p.Out(gpio.Level(addr&(1<<uint(i)) != 0))
	}
	for i, p := range c.data {
		p.Out(gpio.Level(data&(1<<uint(i)) != 0))
	}
	c.ce.Out(gpio.Low)
	c.we.Out(gpio.Low)
	c.we.Out(gpio.High)
	c.ce.Out(gpio.High)
}

func readCycle(c *Chip, addr uint16) byte {
	for _, p := range c.data {
		p.In(gpio.Float, gpio.NoEdge)
	}
	for i, p := range c.addr {
		p.Out(gpio.Level(addr&(1<<uint(i)) != 0))
	}
	c.oe.Out(gpio.Low)
	c.ce.Out(gpio.Low)
	var v byte
	for i, p := range c.data {
		if p.Read() == gpio.High {
			v |= 1 << uint(i)
		}
	}
	c.ce.Out(gpio.High)
	c.oe.Out(gpio.High)
	return v
}

func TestNewIsErased(t *testing.T) {
	c := New()
	if !bytes.Equal(c.Bytes(), bytes.Repeat([]byte{ErasedValue}, Size)) {
		t.Fatalf("new chip is not erased")
	}
	if c.Protected() {
		t.Fatalf("new chip is protected")
	}
	pins := c.Pins()
	if len(pins.Address) != AddressLines || len(pins.Data) != 8 {
		t.Fatalf("Pins() has %d address and %d data lines", len(pins.Address), len(pins.Data))
	}
}

func TestReadWriteCycles(t *testing.T) {
	c := New()
	writeCycle(c, 0x0123, 0x5A)
	if got := readCycle(c, 0x0123); got != 0x5A {
		t.Fatalf("read back 0x%02X, want 0x5A", got)
	}
	st := c.Stats()
	if st.Writes != 1 || st.Reads != 1 {
		t.Fatalf("stats = %+v, want 1 write and 1 read", st)
	}
}

func TestLoad(t *testing.T) {
	c := New()
	if err := c.Load(0x7FFE, []byte{1, 2}); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Peek(0x7FFF) != 2 {
		t.Fatalf("Peek(0x7FFF) = 0x%02X, want 2", c.Peek(0x7FFF))
	}
	if err := c.Load(0x7FFF, []byte{1, 2}); err == nil {
		t.Fatalf("expected error for image past the end of the array")
	}
}

func TestCommandSequences(t *testing.T) {
	enable := []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0xA0}}
	disable := []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x80}, {0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x20}}
	erase := []cycle{{0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x80}, {0x5555, 0xAA}, {0x2AAA, 0x55}, {0x5555, 0x10}}

	run := func(c *Chip, seq []cycle) {
		for _, w := range seq {
			writeCycle(c, w.addr, w.data)
		}
	}

	t.Run("enable protects and unlocks", func(t *testing.T) {
		c := New()
		run(c, enable)
		if !c.Protected() {
			t.Fatalf("chip not protected after enable sequence")
		}
		writeCycle(c, 0x0000, 0x11)
		if c.Peek(0) != 0x11 {
			t.Fatalf("write inside unlocked window was dropped")
		}
		if c.Peek(0x5555) != ErasedValue || c.Peek(0x2AAA) != ErasedValue {
			t.Fatalf("command bytes were stored as data")
		}

		readCycle(c, 0)
		writeCycle(c, 0x0001, 0x22)
		if c.Peek(1) != ErasedValue {
			t.Fatalf("write after read cycle landed on protected chip")
		}
		if c.Stats().Ignored != 1 {
			t.Fatalf("Ignored = %d, want 1", c.Stats().Ignored)
		}
	})

	t.Run("disable unprotects", func(t *testing.T) {
		c := New()
		c.SetProtected(true)
		run(c, disable)
		if c.Protected() {
			t.Fatalf("chip still protected after disable sequence")
		}
		writeCycle(c, 0x0002, 0x33)
		if c.Peek(2) != 0x33 {
			t.Fatalf("write after disable was dropped")
		}
	})

	t.Run("erase", func(t *testing.T) {
		c := New()
		if err := c.Load(0, []byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
		run(c, erase)
		if c.Peek(0) != ErasedValue || c.Peek(2) != ErasedValue {
			t.Fatalf("chip not erased")
		}
		if st := c.Stats(); st.Erases != 1 || st.Commands != 1 {
			t.Fatalf("stats = %+v, want one erase command", st)
		}
	})

	t.Run("broken prefix is stored as data", func(t *testing.T) {
		c := New()
		writeCycle(c, 0x5555, 0xAA)
		writeCycle(c, 0x0100, 0x01)
		if c.Peek(0x5555) != 0xAA || c.Peek(0x0100) != 0x01 {
			t.Fatalf("writes after a broken prefix were lost")
		}
	})
}

func TestContention(t *testing.T) {
	c := New()
	c.oe.Out(gpio.Low)
	c.ce.Out(gpio.Low)
	c.data[0].Out(gpio.High)
	c.data[1].Out(gpio.High)
	if got := c.Stats().Contentions; got != 1 {
		t.Fatalf("Contentions = %d, want 1", got)
	}
}

func TestPinIO(t *testing.T) {
	p := newPin("X", 3)
	if p.Name() != "X" || p.Number() != 3 || p.String() != "X(3)" {
		t.Fatalf("unexpected identity: %s", p)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		t.Fatal(err)
	}
	if p.Read() != gpio.High {
		t.Fatalf("pulled-up input reads low")
	}
	if err := p.In(gpio.Float, gpio.RisingEdge); err == nil {
		t.Fatalf("expected error for edge detection")
	}
	if err := p.PWM(gpio.DutyHalf, 0); err != ErrPWM {
		t.Fatalf("PWM err = %v, want ErrPWM", err)
	}
	if err := p.Out(gpio.High); err != nil || !p.IsOutput() || p.Level() != gpio.High {
		t.Fatalf("Out did not drive the pin")
	}
}

func TestLookup(t *testing.T) {
	c := New()
	for _, name := range []string{"A0", "a14", "D7", "CE", "oe", "WE"} {
		if c.Lookup(name) == nil {
			t.Errorf("Lookup(%q) = nil", name)
		}
	}
	for _, name := range []string{"A15", "D8", "GPIO5", ""} {
		if p := c.Lookup(name); p != nil {
			t.Errorf("Lookup(%q) = %v, want nil", name, p)
		}
	}
	if c.Lookup("D3") != c.Pins().Data[3] {
		t.Fatalf("Lookup(D3) is not the bus data line 3")
	}
}
