package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/protocol"
)

var scriptFile string

var execCmd = &cobra.Command{
	Use:   "exec [command...]",
	Short: "Execute protocol commands locally and print the replies",
	Long: `Execute protocol command lines against a local backend and print the replies
exactly as the programmer would send them. Commands come from the arguments,
one line each, or from --script.

Examples:
  eeprog exec V R0000
  eeprog exec W0010:0102,03 R0010 --save out.bin
  eeprog exec --script commands.txt --image rom.bin`,
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVarP(&scriptFile, "script", "s", "",
		"file of command lines to execute")
	addBackendFlags(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	var input io.Reader
	switch {
	case scriptFile != "" && len(args) > 0:
		return fmt.Errorf("give commands as arguments or with --script, not both")
	case scriptFile != "":
		f, err := os.Open(scriptFile)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		input = f
	case len(args) > 0:
		input = strings.NewReader(strings.Join(args, "\n") + "\n")
	default:
		return fmt.Errorf("no commands given")
	}

	be, err := createBackend(backendType)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	session := protocol.NewSession(be.prog, os.Stdout, log.Logger)
	execErr := session.Serve(input)
	if err := be.close(); err != nil && execErr == nil {
		execErr = err
	}
	return execErr
}
