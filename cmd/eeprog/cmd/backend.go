package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/bus"
	"github.com/OpenTraceLab/eeprog/pkg/chip"
	"github.com/OpenTraceLab/eeprog/pkg/gpiosim"
	"github.com/OpenTraceLab/eeprog/pkg/pinmap"
)

var (
	backendType string
	pinmapFile  string
	imageFile   string
	saveFile    string
	writeCycle  time.Duration
)

// addBackendFlags registers the flags that select the chip a local
// programmer drives.
func addBackendFlags(c *cobra.Command) {
	c.Flags().StringVarP(&backendType, "backend", "b", "sim",
		"chip backend (sim, gpio)")
	c.Flags().StringVar(&pinmapFile, "pinmap", "",
		"wiring file (required for gpio, optional for sim)")
	c.Flags().StringVar(&imageFile, "image", "",
		"sim: file loaded into the chip at address 0")
	c.Flags().StringVar(&saveFile, "save", "",
		"sim: write the chip contents to this file on exit")
	c.Flags().DurationVar(&writeCycle, "write-cycle", chip.DefaultWriteCycle,
		"write cycle time of the chip")
}

// backend is a programmer attached to a chip, real or simulated.
type backend struct {
	prog *chip.Programmer
	sim  *gpiosim.Chip
}

func createBackend(kind string) (*backend, error) {
	switch kind {
	case "simulator", "sim":
		sim := gpiosim.New()
		if imageFile != "" {
			image, err := os.ReadFile(imageFile)
			if err != nil {
				return nil, fmt.Errorf("read image: %w", err)
			}
			if err := sim.Load(0, image); err != nil {
				return nil, err
			}
		}

		pins := sim.Pins()
		if pinmapFile != "" {
			m, err := pinmap.ParseFile(pinmapFile)
			if err != nil {
				return nil, err
			}
			if pins, err = m.Resolve(sim.Lookup); err != nil {
				return nil, err
			}
		}

		// The simulator latches instantly; skip the real-time waits.
		b, err := bus.New(pins, bus.WithDelay(func(time.Duration) {}))
		if err != nil {
			return nil, err
		}
		log.Debug().Str("backend", "sim").Int("address_lines", b.AddressLines()).Msg("backend ready")
		return &backend{prog: newProgrammer(b), sim: sim}, nil

	case "gpio":
		if pinmapFile == "" {
			return nil, fmt.Errorf("--pinmap is required for the gpio backend")
		}
		m, err := pinmap.ParseFile(pinmapFile)
		if err != nil {
			return nil, err
		}
		if err := pinmap.InitHost(); err != nil {
			return nil, err
		}
		pins, err := m.Resolve(pinmap.HostLookup)
		if err != nil {
			return nil, err
		}
		b, err := bus.New(pins)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("backend", "gpio").Str("chip", m.Chip).Msg("backend ready")
		return &backend{prog: newProgrammer(b)}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q (use sim or gpio)", kind)
	}
}

func newProgrammer(b *bus.Bus) *chip.Programmer {
	return chip.New(b, chip.WithWriteCycle(writeCycle), chip.WithLogger(log.Logger))
}

// close releases the bus and saves the simulated chip if asked to.
func (b *backend) close() error {
	if err := b.prog.Bus().Idle(); err != nil {
		return err
	}
	if b.sim == nil || saveFile == "" {
		return nil
	}
	if err := os.WriteFile(saveFile, b.sim.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}
