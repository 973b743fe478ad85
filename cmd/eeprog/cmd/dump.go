package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dumpStart  string
	dumpLength string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Read chip contents into a file",
	Long: `Read a range of the chip through the programmer and write it to a binary file.

Examples:
  eeprog dump --port /dev/ttyUSB0 rom.bin
  eeprog dump --port /dev/ttyUSB0 --start 0x7F00 --length 256 tail.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVar(&dumpStart, "start", "0", "first address")
	dumpCmd.Flags().StringVar(&dumpLength, "length", "0x8000", "number of bytes")
	addHostFlags(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) (err error) {
	start, err := parseAddress(dumpStart)
	if err != nil {
		return err
	}
	length, err := parseLength(dumpLength)
	if err != nil {
		return err
	}

	conn, err := openClient()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("create %s: %w", args[0], err)
	}
	if err := conn.Dump(context.Background(), f, start, length, printProgress); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Read %d bytes from 0x%04X to %s\n", length, start, args[0])
	return nil
}
