package gpiosim

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrPWM is returned by Pin.PWM; simulated pins are digital only.
var ErrPWM = errors.New("gpiosim: PWM not supported")

// Pin is an in-memory gpio.PinIO. Levels driven with Out are reported to the
// owning chip; Read on an input pin asks the chip what it drives.
type Pin struct {
	name   string
	number int

	level  gpio.Level
	output bool
	pull   gpio.Pull

	onOut  func(*Pin)
	sample func(*Pin) gpio.Level
}

func newPin(name string, number int) *Pin {
	return &Pin{name: name, number: number, pull: gpio.Float}
}

func (p *Pin) String() string {
	return fmt.Sprintf("%s(%d)", p.name, p.number)
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.number
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	if p.output {
		return "Out/" + p.level.String()
	}
	return "In/" + p.Read().String()
}

// In implements gpio.PinIn.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return fmt.Errorf("gpiosim: %s: edge detection not supported", p.name)
	}
	p.output = false
	p.pull = pull
	return nil
}

// Read implements gpio.PinIn. An output pin reads back its own level.
func (p *Pin) Read() gpio.Level {
	if p.output {
		return p.level
	}
	if p.sample != nil {
		return p.sample(p)
	}
	return gpio.Level(p.pull == gpio.PullUp)
}

// WaitForEdge implements gpio.PinIn.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	return false
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	return p.pull
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	p.output = true
	p.level = l
	if p.onOut != nil {
		p.onOut(p)
	}
	return nil
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return ErrPWM
}

// IsOutput reports whether the host configured the pin as an output.
func (p *Pin) IsOutput() bool {
	return p.output
}

// Level returns the last level driven on the pin.
func (p *Pin) Level() gpio.Level {
	return p.level
}

var _ gpio.PinIO = (*Pin)(nil)
