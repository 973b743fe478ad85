package bus_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/OpenTraceLab/eeprog/pkg/bus"
	"github.com/OpenTraceLab/eeprog/pkg/gpiosim"
)

// tracedPin records every level driven on a control line.
type tracedPin struct {
	*gpiosim.Pin
	trace *[]string
}

func (p tracedPin) Out(l gpio.Level) error {
	*p.trace = append(*p.trace, p.Name()+"="+l.String())
	return p.Pin.Out(l)
}

type waits struct {
	d []time.Duration
}

func (w *waits) record(d time.Duration) {
	w.d = append(w.d, d)
}

func newTestBus(t *testing.T, opts ...bus.Option) (*bus.Bus, *gpiosim.Chip, *waits) {
	t.Helper()
	sim := gpiosim.New()
	w := &waits{}
	b, err := bus.New(sim.Pins(), append([]bus.Option{bus.WithDelay(w.record)}, opts...)...)
	if err != nil {
		t.Fatalf("bus.New returned error: %v", err)
	}
	return b, sim, w
}

func TestPinsValidate(t *testing.T) {
	full := gpiosim.New().Pins()

	tests := []struct {
		name    string
		mutate  func(p *bus.Pins)
		wantErr string
	}{
		{name: "complete", mutate: func(p *bus.Pins) {}},
		{name: "no address lines", mutate: func(p *bus.Pins) { p.Address = nil }, wantErr: "address lines"},
		{name: "seven data lines", mutate: func(p *bus.Pins) { p.Data = p.Data[:7] }, wantErr: "data lines"},
		{name: "nil data line", mutate: func(p *bus.Pins) { p.Data = append([]gpio.PinIO{nil}, p.Data[1:]...) }, wantErr: "D0"},
		{name: "missing write enable", mutate: func(p *bus.Pins) { p.WriteEnable = nil }, wantErr: "write-enable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := full
			p.Address = append([]gpio.PinOut(nil), full.Address...)
			p.Data = append([]gpio.PinIO(nil), full.Data...)
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewLeavesBusIdle(t *testing.T) {
	b, _, _ := newTestBus(t)
	if b.Direction() != bus.Input {
		t.Errorf("Direction = %s, want input", b.Direction())
	}
	if b.OutputEnabled() {
		t.Errorf("output-enable asserted after New")
	}
	if b.AddressLines() != gpiosim.AddressLines {
		t.Errorf("AddressLines = %d, want %d", b.AddressLines(), gpiosim.AddressLines)
	}
	if b.AddressMask() != 0x7FFF {
		t.Errorf("AddressMask = 0x%04X, want 0x7FFF", b.AddressMask())
	}
}

func TestPreconditions(t *testing.T) {
	b, _, _ := newTestBus(t)

	if _, err := b.ReadByteAt(0); !errors.Is(err, bus.ErrNotReadable) {
		t.Fatalf("ReadByteAt without output-enable: err = %v, want ErrNotReadable", err)
	}
	if err := b.WriteByteAt(0, 0x12); !errors.Is(err, bus.ErrNotWritable) {
		t.Fatalf("WriteByteAt with input data lines: err = %v, want ErrNotWritable", err)
	}

	if err := b.SetDataDirection(bus.Output); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOutputEnable(true); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByteAt(0, 0x12); !errors.Is(err, bus.ErrNotWritable) {
		t.Fatalf("WriteByteAt with output-enable asserted: err = %v, want ErrNotWritable", err)
	}
	if _, err := b.ReadByteAt(0); !errors.Is(err, bus.ErrNotReadable) {
		t.Fatalf("ReadByteAt with output data lines: err = %v, want ErrNotReadable", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	b, sim, w := newTestBus(t)

	if err := b.SetDataDirection(bus.Output); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByteAt(0x1234, 0xA5); err != nil {
		t.Fatalf("WriteByteAt returned error: %v", err)
	}
	if got := sim.Peek(0x1234); got != 0xA5 {
		t.Fatalf("chip holds 0x%02X at 0x1234, want 0xA5", got)
	}

	if err := b.SetDataDirection(bus.Input); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOutputEnable(true); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadByteAt(0x1234)
	if err != nil {
		t.Fatalf("ReadByteAt returned error: %v", err)
	}
	if got != 0xA5 {
		t.Fatalf("ReadByteAt = 0x%02X, want 0xA5", got)
	}

	if len(w.d) != 2 {
		t.Fatalf("recorded %d waits, want 2 (write hold + read settle)", len(w.d))
	}
	for _, d := range w.d {
		if d < bus.MinPulse {
			t.Errorf("wait %v shorter than %v", d, bus.MinPulse)
		}
	}
	if c := sim.Stats().Contentions; c != 0 {
		t.Errorf("bus contention count = %d, want 0", c)
	}
}

func TestAddressAboveWiredLinesIsIgnored(t *testing.T) {
	b, sim, _ := newTestBus(t)
	if err := b.SetDataDirection(bus.Output); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByteAt(0x8001, 0x42); err != nil {
		t.Fatal(err)
	}
	if got := sim.Peek(0x0001); got != 0x42 {
		t.Fatalf("write to 0x8001 landed as 0x%02X at 0x0001, want 0x42", got)
	}
}

func TestEnableOrdering(t *testing.T) {
	sim := gpiosim.New()
	pins := sim.Pins()
	var trace []string
	pins.ChipEnable = tracedPin{sim.Pins().ChipEnable.(*gpiosim.Pin), &trace}
	pins.WriteEnable = tracedPin{sim.Pins().WriteEnable.(*gpiosim.Pin), &trace}
	pins.OutputEnable = tracedPin{sim.Pins().OutputEnable.(*gpiosim.Pin), &trace}

	b, err := bus.New(pins, bus.WithDelay(func(time.Duration) {}))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetDataDirection(bus.Output); err != nil {
		t.Fatal(err)
	}

	trace = nil
	if err := b.WriteByteAt(0x10, 0x01); err != nil {
		t.Fatal(err)
	}
	want := []string{"CE=Low", "WE=Low", "WE=High", "CE=High"}
	if strings.Join(trace, ",") != strings.Join(want, ",") {
		t.Fatalf("write cycle order = %v, want %v", trace, want)
	}

	if err := b.SetDataDirection(bus.Input); err != nil {
		t.Fatal(err)
	}
	trace = nil
	if err := b.SetOutputEnable(true); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ReadByteAt(0x10); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOutputEnable(false); err != nil {
		t.Fatal(err)
	}
	want = []string{"OE=Low", "CE=Low", "CE=High", "OE=High"}
	if strings.Join(trace, ",") != strings.Join(want, ",") {
		t.Fatalf("read cycle order = %v, want %v", trace, want)
	}
}

func TestWithPulseWidthClamps(t *testing.T) {
	b, _, w := newTestBus(t, bus.WithPulseWidth(10*time.Nanosecond))
	if err := b.SetDataDirection(bus.Output); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByteAt(0, 0); err != nil {
		t.Fatal(err)
	}
	if len(w.d) != 1 || w.d[0] != bus.MinPulse {
		t.Fatalf("waits = %v, want [%v]", w.d, bus.MinPulse)
	}
}

func TestWait(t *testing.T) {
	for _, d := range []time.Duration{0, bus.MinPulse, 2 * time.Microsecond, 10 * time.Microsecond, 11 * time.Microsecond, time.Millisecond} {
		start := time.Now()
		bus.Wait(d)
		if elapsed := time.Since(start); elapsed < d {
			t.Errorf("Wait(%v) returned after %v", d, elapsed)
		}
	}
}
