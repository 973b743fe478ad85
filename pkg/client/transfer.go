package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Progress reports how far a Dump or Flash has come.
type Progress struct {
	// Phase is "reading", "writing" or "verifying".
	Phase string
	Done  int
	Total int
}

// ProgressFunc receives progress updates. It runs on the caller's goroutine
// and should return quickly.
type ProgressFunc func(Progress)

// WriteMode selects how Flash transfers the image.
type WriteMode int

const (
	// PageMode stages full pages in the programmer's page buffer.
	PageMode WriteMode = iota
	// ByteMode writes 16-byte blocks with W commands.
	ByteMode
)

func (m WriteMode) String() string {
	if m == ByteMode {
		return "byte"
	}
	return "page"
}

// FlashOptions controls Flash.
type FlashOptions struct {
	Mode     WriteMode
	Verify   bool
	Progress ProgressFunc
}

func checkRange(start uint16, length int) error {
	if length < 0 || int(start)+length > AddressSpace {
		return fmt.Errorf("client: %d bytes at 0x%04X run past the address space", length, start)
	}
	return nil
}

func report(fn ProgressFunc, phase string, done, total int) {
	if fn != nil {
		fn(Progress{Phase: phase, Done: done, Total: total})
	}
}

// Dump reads length bytes starting at start and writes them to w.
func (c *Client) Dump(ctx context.Context, w io.Writer, start uint16, length int, progress ProgressFunc) error {
	if err := checkRange(start, length); err != nil {
		return err
	}

	for done := 0; done < length; done += BlockSize {
		addr := start + uint16(done)
		block, err := c.Read(ctx, addr)
		if err != nil {
			return err
		}
		n := min(BlockSize, length-done)
		if _, err := w.Write(block[:n]); err != nil {
			return fmt.Errorf("client: write dump: %w", err)
		}
		report(progress, "reading", done+n, length)
	}
	return nil
}

// Flash writes image to the chip starting at base and optionally reads it
// back. In PageMode only whole pages go through the page buffer; a trailing
// partial page is written in blocks so that bytes past the image are not
// overwritten.
func (c *Client) Flash(ctx context.Context, image []byte, base uint16, opts FlashOptions) error {
	if len(image) == 0 {
		return nil
	}
	if err := checkRange(base, len(image)); err != nil {
		return err
	}

	c.log.Info().Str("mode", opts.Mode.String()).Int("len", len(image)).Uint16("addr", base).Msg("flash")

	done := 0
	if opts.Mode == PageMode {
		for ; len(image)-done >= PageSize; done += PageSize {
			if err := c.WritePage(ctx, base+uint16(done), image[done:done+PageSize]); err != nil {
				return err
			}
			report(opts.Progress, "writing", done+PageSize, len(image))
		}
	}
	for ; done < len(image); done += BlockSize {
		end := min(done+BlockSize, len(image))
		if err := c.Write(ctx, base+uint16(done), image[done:end]); err != nil {
			return err
		}
		report(opts.Progress, "writing", end, len(image))
	}

	if !opts.Verify {
		return nil
	}
	return c.verify(ctx, image, base, opts.Progress)
}

func (c *Client) verify(ctx context.Context, image []byte, base uint16, progress ProgressFunc) error {
	for done := 0; done < len(image); done += BlockSize {
		addr := base + uint16(done)
		got, err := c.Read(ctx, addr)
		if err != nil {
			return err
		}
		want := image[done:min(done+BlockSize, len(image))]
		if !bytes.Equal(got[:len(want)], want) {
			for i := range want {
				if got[i] != want[i] {
					return &VerifyError{Addr: addr + uint16(i), Want: want[i], Got: got[i]}
				}
			}
		}
		report(progress, "verifying", done+len(want), len(image))
	}
	return nil
}
