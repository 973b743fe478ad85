package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/link"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List serial ports a programmer can be reached on",
	Long: `Scan the host for serial ports and known USB-serial bridges (FTDI, CH340,
CP210x, Arduino) and print a summary. Use this to find the --port value for
the other commands.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := link.Discover(ctx)
	if err != nil {
		// Discover still returns what it found, stdio at least.
		log.Warn().Err(err).Msg("interface discovery incomplete")
	}

	fmt.Println("Detected interfaces:")
	for _, iface := range infos {
		switch {
		case iface.VendorID != 0 || iface.ProductID != 0:
			fmt.Printf("  - %s [%s] (VID:PID %04X:%04X) %s\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID, iface.Path)
		default:
			fmt.Printf("  - %s [%s] %s\n", iface.Label(), iface.Kind, iface.Path)
		}
	}
	return nil
}
