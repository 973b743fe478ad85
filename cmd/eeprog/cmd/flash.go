package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/client"
)

var (
	flashBase   string
	flashMode   string
	flashVerify bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <file>",
	Short: "Write a file to the chip",
	Long: `Write a binary image to the chip through the programmer.

Page mode stages 128-byte pages in the programmer's page buffer; byte mode
writes 16-byte blocks. A protected chip must be unprotected first.

Examples:
  eeprog flash --port /dev/ttyUSB0 --verify rom.bin
  eeprog flash --port /dev/ttyUSB0 --base 0x4000 --mode byte patch.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)

	flashCmd.Flags().StringVar(&flashBase, "base", "0", "address of the first byte")
	flashCmd.Flags().StringVar(&flashMode, "mode", "page", "write mode (page, byte)")
	flashCmd.Flags().BoolVar(&flashVerify, "verify", false, "read the image back after writing")
	addHostFlags(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) (err error) {
	base, err := parseAddress(flashBase)
	if err != nil {
		return err
	}
	opts := client.FlashOptions{Verify: flashVerify, Progress: printProgress}
	switch flashMode {
	case "page":
		opts.Mode = client.PageMode
	case "byte":
		opts.Mode = client.ByteMode
	default:
		return fmt.Errorf("unknown mode %q (use page or byte)", flashMode)
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
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

	if err := conn.Flash(context.Background(), image, base, opts); err != nil {
		return err
	}

	fmt.Printf("Wrote %d bytes at 0x%04X (%s mode)\n", len(image), base, opts.Mode)
	if flashVerify {
		fmt.Println("Verified OK")
	}
	return nil
}
