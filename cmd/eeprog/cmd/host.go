package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/client"
	"github.com/OpenTraceLab/eeprog/pkg/link"
	"github.com/OpenTraceLab/eeprog/pkg/protocol"
)

// simPort selects an in-process programmer on the simulator instead of a
// serial device.
const simPort = "sim"

var (
	hostPort    string
	hostBaud    int
	hostTimeout time.Duration
)

// addHostFlags registers the flags of commands that talk to a programmer.
func addHostFlags(c *cobra.Command) {
	c.Flags().StringVarP(&hostPort, "port", "p", "",
		"serial device of the programmer (sim for an in-process simulator)")
	c.Flags().IntVar(&hostBaud, "baud", link.DefaultBaud, "baud rate")
	c.Flags().DurationVar(&hostTimeout, "timeout", 5*time.Second,
		"how long to wait for each reply")
	c.MarkFlagRequired("port")
	addBackendFlags(c)
}

// connection is an open client plus whatever must be shut down after it.
type connection struct {
	*client.Client
	closeFn func() error
}

func (c *connection) Close() error {
	return c.closeFn()
}

func openClient() (*connection, error) {
	if hostPort != simPort {
		rw, err := link.Open(hostPort, hostBaud, link.WithReadTimeout(hostTimeout))
		if err != nil {
			return nil, err
		}
		log.Debug().Str("port", hostPort).Int("baud", hostBaud).Msg("link open")
		return &connection{Client: client.New(rw, client.WithLogger(log.Logger)), closeFn: rw.Close}, nil
	}

	be, err := createBackend(backendType)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	session := protocol.NewSession(be.prog, respW, log.Logger)
	done := make(chan error, 1)
	go func() {
		err := session.Serve(reqR)
		respW.Close()
		done <- err
	}()

	rw := struct {
		io.Reader
		io.Writer
	}{respR, reqW}
	closeFn := func() error {
		reqW.Close()
		respR.Close()
		if err := <-done; err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Warn().Err(err).Msg("simulated programmer stopped")
		}
		return be.close()
	}
	return &connection{Client: client.New(rw, client.WithLogger(log.Logger)), closeFn: closeFn}, nil
}

// parseAddress accepts decimal, 0x-prefixed hex and other Go integer forms.
func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseLength(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 17)
	if err != nil || v > client.AddressSpace {
		return 0, fmt.Errorf("invalid length %q", s)
	}
	return int(v), nil
}

// printProgress logs transfer progress in verbose mode.
func printProgress(p client.Progress) {
	if verbose {
		log.Debug().Str("phase", p.Phase).Int("done", p.Done).Int("total", p.Total).Msg("progress")
	}
}
