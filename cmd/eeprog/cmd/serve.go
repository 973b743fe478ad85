package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/link"
	"github.com/OpenTraceLab/eeprog/pkg/protocol"
)

var (
	servePort string
	serveBaud int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the programmer command loop",
	Long: `Run the programmer on a serial link (or standard input/output) until the
link is closed. Each line received is executed against the chip and answered
with OK or ERR.

Examples:
  # Real chip on Raspberry Pi GPIO, host connected over the gadget serial port
  eeprog serve --backend gpio --pinmap rpi.pinmap --port /dev/ttyGS0

  # Simulated chip on stdin/stdout, saved when the input ends
  eeprog serve --image rom.bin --save rom.bin`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", link.StdioPath,
		"serial device to serve on (- for stdin/stdout)")
	serveCmd.Flags().IntVar(&serveBaud, "baud", link.DefaultBaud,
		"baud rate")
	addBackendFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	be, err := createBackend(backendType)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	rw, err := link.Open(servePort, serveBaud)
	if err != nil {
		be.close()
		return err
	}
	defer rw.Close()

	log.Info().Str("port", servePort).Int("baud", serveBaud).Str("backend", backendType).Msg("serving")
	session := protocol.NewSession(be.prog, rw, log.Logger)
	serveErr := session.Serve(rw)
	if err := be.close(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
