package client

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksum is returned when a read reply's checksum does not match
	// its data.
	ErrChecksum = errors.New("client: reply checksum mismatch")

	// ErrAddressEcho is returned when a read reply is for another address
	// than the one requested.
	ErrAddressEcho = errors.New("client: reply address does not match request")

	// ErrMalformedReply is returned for a reply line that does not follow
	// the protocol grammar.
	ErrMalformedReply = errors.New("client: malformed reply")
)

// ResponseError is an ERR reply from the programmer.
type ResponseError struct {
	Command string
	Line    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("client: %s: programmer replied %q", e.Command, e.Line)
}

// VerifyError reports the first byte that read back differently from what
// was written.
type VerifyError struct {
	Addr uint16
	Want byte
	Got  byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("client: verify failed at 0x%04X: wrote 0x%02X, read 0x%02X", e.Addr, e.Want, e.Got)
}
