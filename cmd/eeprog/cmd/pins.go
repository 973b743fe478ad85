package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/pinmap"
)

var pinsCmd = &cobra.Command{
	Use:   "pins <file>",
	Short: "Check a wiring file and print its pin table",
	Long: `Parse and validate a wiring file and print which GPIO line each chip signal
is connected to.

Examples:
  eeprog pins rpi.pinmap`,
	Args: cobra.ExactArgs(1),
	RunE: runPins,
}

func init() {
	rootCmd.AddCommand(pinsCmd)
}

func runPins(cmd *cobra.Command, args []string) error {
	m, err := pinmap.ParseFile(args[0])
	if err != nil {
		return err
	}

	if m.Chip != "" {
		fmt.Printf("Chip: %s\n", m.Chip)
	}
	fmt.Printf("Address lines: %d\n", len(m.Address))
	fmt.Println("Pin Mappings:")
	for _, l := range m.Lines() {
		fmt.Printf("  %-3s -> %s\n", l.Signal, l.Name)
	}
	return nil
}
