package protocol

import (
	"bufio"
	"io"
)

const (
	// MaxLineLength is the capacity of the command line buffer.
	MaxLineLength = 80

	// Terminator ends every command line.
	Terminator = '\n'

	// maxControl is the highest byte value treated as a control character.
	maxControl = 31
)

// LineReader accumulates command lines from a byte stream.
type LineReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:   bufio.NewReader(r),
		buf: make([]byte, 0, MaxLineLength),
	}
}

// ReadLine returns the next line without its terminator and with control
// bytes removed. The returned slice is only valid until the next call.
//
// A line longer than MaxLineLength is consumed up to its terminator and
// reported as ErrLineTooLong. At the end of input a final unterminated line
// is returned before io.EOF.
func (lr *LineReader) ReadLine() ([]byte, error) {
	lr.buf = lr.buf[:0]
	overflow := false
	for {
		c, err := lr.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if overflow {
					return nil, ErrLineTooLong
				}
				if len(lr.buf) > 0 {
					return lr.buf, nil
				}
			}
			return nil, err
		}

		switch {
		case c == Terminator:
			if overflow {
				return nil, ErrLineTooLong
			}
			return lr.buf, nil
		case c <= maxControl:
			continue
		case len(lr.buf) == MaxLineLength:
			overflow = true
		default:
			lr.buf = append(lr.buf, c)
		}
	}
}
