// Package client drives an EEPROM programmer over its line protocol.
//
// A Client works on any byte stream: a serial port opened with link.Open,
// or an in-process protocol.Session joined with pipes.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/eeprog/pkg/hexcodec"
)

const (
	// BlockSize is the number of bytes moved by one R or W command.
	BlockSize = 16

	// PageSize is the size of the programmer's page buffer.
	PageSize = 128

	// AddressSpace is the number of addressable bytes.
	AddressSpace = 0x10000
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for command tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// Client issues commands and parses replies. It is safe for concurrent use;
// commands are serialized.
type Client struct {
	mu  sync.Mutex
	w   io.Writer
	r   *bufio.Reader
	log zerolog.Logger
}

// New returns a Client talking over rw.
func New(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		w:   rw,
		r:   bufio.NewReader(rw),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "client").Logger()
	return c
}

// Version returns the programmer's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, "V"); err != nil {
		return "", err
	}
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	if isError(line) {
		return "", &ResponseError{Command: "V", Line: line}
	}
	return line, nil
}

// Read returns the 16 bytes starting at addr.
func (c *Client) Read(ctx context.Context, addr uint16) ([]byte, error) {
	cmd := string(hexcodec.AppendAddress([]byte("R"), addr))

	c.mu.Lock()
	defer c.mu.Unlock()

	lines, err := c.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if len(lines) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d data lines", ErrMalformedReply, cmd, len(lines))
	}
	return parseReadReply(lines[0], addr)
}

// Write stores up to 16 bytes at addr.
func (c *Client) Write(ctx context.Context, addr uint16, data []byte) error {
	if len(data) == 0 || len(data) > BlockSize {
		return fmt.Errorf("client: write of %d bytes, want 1..%d", len(data), BlockSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.exchange(ctx, payloadCommand('W', addr, data))
	return err
}

// Erase erases the whole chip.
func (c *Client) Erase(ctx context.Context) error {
	return c.simple(ctx, "B")
}

// Protect enables software data protection.
func (c *Client) Protect(ctx context.Context) error {
	return c.simple(ctx, "P")
}

// Unprotect disables software data protection.
func (c *Client) Unprotect(ctx context.Context) error {
	return c.simple(ctx, "U")
}

// WritePage programs one page at base through the page buffer. The
// programmer writes the whole 128-byte buffer, so bytes past len(data)
// are written as 0xFF.
func (c *Client) WritePage(ctx context.Context, base uint16, data []byte) error {
	if len(data) == 0 || len(data) > PageSize {
		return fmt.Errorf("client: page of %d bytes, want 1..%d", len(data), PageSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(ctx, string(hexcodec.AppendAddress([]byte("N"), base))); err != nil {
		return err
	}
	for off := 0; off < len(data); off += BlockSize {
		end := min(off+BlockSize, len(data))
		if _, err := c.exchange(ctx, payloadCommand('S', uint16(off), data[off:end])); err != nil {
			return err
		}
	}
	_, err := c.exchange(ctx, "T")
	return err
}

func (c *Client) simple(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.exchange(ctx, cmd)
	return err
}

// exchange sends cmd and collects reply lines up to OK. An ERR line ends the
// exchange with a ResponseError.
func (c *Client) exchange(ctx context.Context, cmd string) ([]string, error) {
	if err := c.send(ctx, cmd); err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, fmt.Errorf("client: %s: %w", cmd, err)
		}
		switch {
		case line == "OK":
			return lines, nil
		case isError(line):
			c.log.Warn().Str("cmd", cmd).Str("reply", line).Msg("command rejected")
			return nil, &ResponseError{Command: cmd, Line: line}
		default:
			lines = append(lines, line)
		}
	}
}

func (c *Client) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.Debug().Str("cmd", cmd).Msg("send")
	if _, err := io.WriteString(c.w, cmd+"\n"); err != nil {
		return fmt.Errorf("client: send %s: %w", cmd, err)
	}
	return nil
}

// readLine returns the next non-empty line without CR or LF.
func (c *Client) readLine() (string, error) {
	for {
		line, err := c.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func isError(line string) bool {
	return line == "ERR" || strings.HasPrefix(line, "ERR ")
}

func payloadCommand(tag byte, addr uint16, data []byte) string {
	b := make([]byte, 0, 1+4+1+2*len(data)+3)
	b = append(b, tag)
	b = hexcodec.AppendAddress(b, addr)
	b = append(b, ':')
	b = hexcodec.AppendBytes(b, data)
	b = append(b, ',')
	b = hexcodec.AppendByte(b, hexcodec.XORChecksum(data))
	return string(b)
}

// parseReadReply decodes "aaaa:<32 hex>,ss" and checks it against addr.
func parseReadReply(line string, addr uint16) ([]byte, error) {
	const want = 4 + 1 + 2*BlockSize + 1 + 2
	if len(line) != want || line[4] != ':' || line[5+2*BlockSize] != ',' {
		return nil, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}
	for i := 0; i < len(line); i++ {
		if i == 4 || i == 5+2*BlockSize {
			continue
		}
		if !hexcodec.IsHexDigit(line[i]) {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReply, line)
		}
	}

	echo, _ := hexcodec.ParseAddress([]byte(line[:4]), hexcodec.MaxAddressDigits)
	if echo != addr {
		return nil, fmt.Errorf("%w: asked 0x%04X, got 0x%04X", ErrAddressEcho, addr, echo)
	}

	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = hexcodec.PairValue(line[5+2*i], line[6+2*i])
	}
	sum := hexcodec.PairValue(line[want-2], line[want-1])
	if computed := hexcodec.XORChecksum(data); sum != computed {
		return nil, fmt.Errorf("%w: block 0x%04X says 0x%02X, data gives 0x%02X", ErrChecksum, addr, sum, computed)
	}
	return data, nil
}
