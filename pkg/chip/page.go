package chip

import (
	"errors"
	"fmt"
)

const (
	// PageSize is the capacity of the page buffer in bytes.
	PageSize = 128

	// PageOffsetMask selects the offset of an address within a page.
	PageOffsetMask = PageSize - 1

	// ErasedValue is the content of an erased cell; it initializes the page
	// buffer.
	ErasedValue = 0xFF
)

// ErrPageOverflow is returned when a fill would run past the end of the page.
var ErrPageOverflow = errors.New("chip: page overflow")

// PageBuffer stages one page for a page-program operation.
type PageBuffer struct {
	Base uint16
	data [PageSize]byte
}

// Reset records base and fills every byte with ErasedValue.
func (p *PageBuffer) Reset(base uint16) {
	p.Base = base
	for i := range p.data {
		p.data[i] = ErasedValue
	}
}

// Fill copies data into the buffer at offset&PageOffsetMask. A fill that does
// not fit leaves the buffer unchanged.
func (p *PageBuffer) Fill(offset uint16, data []byte) error {
	start := int(offset & PageOffsetMask)
	if remaining := PageSize - start; len(data) > remaining {
		return fmt.Errorf("%w: %d bytes at offset 0x%02X, %d remaining", ErrPageOverflow, len(data), start, remaining)
	}
	copy(p.data[start:], data)
	return nil
}

// Bytes returns a copy of the staged page.
func (p *PageBuffer) Bytes() []byte {
	out := make([]byte, PageSize)
	copy(out, p.data[:])
	return out
}
