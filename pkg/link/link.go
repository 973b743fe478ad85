// Package link opens the byte stream between a host and the programmer and
// finds the interfaces one could be opened on.
package link

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaud is the programmer's line rate.
	DefaultBaud = 9600

	// StdioPath names the process's standard input and output as a link.
	StdioPath = "-"
)

// ErrTimeout is returned by Read when no byte arrived within the read
// timeout.
var ErrTimeout = errors.New("link: read timeout")

type config struct {
	readTimeout time.Duration
}

// Option configures Open.
type Option func(*config)

// WithReadTimeout makes Read fail with ErrTimeout after d without data. The
// default is to block.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) {
		c.readTimeout = d
	}
}

// Open opens path at baud, 8 data bits, no parity, one stop bit. StdioPath
// opens the process's standard streams instead; baud and timeouts do not
// apply to it.
func Open(path string, baud int, opts ...Option) (io.ReadWriteCloser, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if path == StdioPath {
		return Stdio(), nil
	}
	if baud <= 0 {
		baud = DefaultBaud
	}

	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", path, err)
	}
	if cfg.readTimeout > 0 {
		if err := port.SetReadTimeout(cfg.readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("link: set read timeout on %s: %w", path, err)
		}
	}
	return &Port{port: port, path: path, timed: cfg.readTimeout > 0}, nil
}

// Port is an open serial link.
type Port struct {
	port  serial.Port
	path  string
	timed bool
}

// Read reads from the port. With a read timeout set, an expired wait is
// reported as ErrTimeout rather than as an empty read.
func (p *Port) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == nil && p.timed && len(b) > 0 {
		return 0, fmt.Errorf("%w on %s", ErrTimeout, p.path)
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close releases the port.
func (p *Port) Close() error {
	return p.port.Close()
}

// Path returns the device path the port was opened on.
func (p *Port) Path() string {
	return p.path
}

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return nil
}

// Stdio returns the process's standard input and output as a link. Closing
// it leaves both streams open.
func Stdio() io.ReadWriteCloser {
	return stdio{Reader: os.Stdin, Writer: os.Stdout}
}
