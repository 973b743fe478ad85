package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "eeprog",
	Short: "Parallel EEPROM programmer firmware and host tool",
	Long: `eeprog runs the line-oriented EEPROM programmer on a host with GPIO lines
wired to a 28C256-family chip, and drives such a programmer over a serial link.

Examples:
  eeprog serve --backend gpio --pinmap rpi.pinmap --port /dev/ttyGS0
  eeprog exec V R0000                            # Run commands on the simulator
  eeprog dump --port /dev/ttyUSB0 --length 0x8000 rom.bin
  eeprog flash --port /dev/ttyUSB0 --verify rom.bin
  eeprog interfaces                              # List serial ports`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setupLogging sends logs to stderr so they never mix with protocol replies
// on stdout.
func setupLogging() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
