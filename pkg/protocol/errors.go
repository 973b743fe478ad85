package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for a command missing a required parameter.
	ErrMalformed = errors.New("protocol: malformed command")

	// ErrLineTooLong is returned by LineReader when a line exceeds
	// MaxLineLength.
	ErrLineTooLong = errors.New("protocol: line too long")
)

// ChecksumError reports a payload whose stated checksum does not match the
// XOR of the decoded bytes.
type ChecksumError struct {
	Given    byte
	Computed byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("protocol: checksum mismatch: given 0x%02X, computed 0x%02X", e.Given, e.Computed)
}

// UnknownCommandError reports a line whose tag is not in the dispatch table.
type UnknownCommandError struct {
	Tag byte
}

func (e *UnknownCommandError) Error() string {
	return "protocol: unknown command " + tagString(e.Tag)
}

// tagString renders a command tag as itself when printable ASCII and as hex
// otherwise.
func tagString(tag byte) string {
	if tag >= ' ' && tag <= '~' {
		return string(rune(tag))
	}
	return fmt.Sprintf("0x%02X", tag)
}

// IsChecksumError returns true if err is or wraps a ChecksumError.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}
