// Package protocol implements the programmer's line-oriented serial command
// protocol.
//
// A Session is a strict request/response loop with two states: it waits for
// a complete line (AwaitingLine), then runs exactly one command to completion
// (Dispatching) before waiting again. Every command produces its reply lines
// before the next line is read; there is no pipelining.
//
// # Framing
//
// Lines end with LF. Control bytes (value <= 31) other than LF are dropped,
// so CRLF hosts work unchanged. Lines longer than MaxLineLength are discarded
// up to the next LF and answered with "ERR line too long".
//
// # Commands
//
// The first byte of a line selects the command:
//
//	V                        version string
//	P / U                    enable / disable software data protection
//	R<addr>                  read 16 bytes: "<addr>:<32 hex>,<sum>" then "OK"
//	W<addr>:<data>[,<sum>]   write up to 16 bytes, "OK"
//	B                        chip erase, "OK"
//	N<addr>                  prepare the page buffer at addr, "OK"
//	S<addr>:<data>[,<sum>]   fill the page buffer at addr&0x7F, "OK"
//	T                        program the page buffer, "OK"
//	?                        usage text
//
// Addresses are 1-4 hex digits. Data is hex pairs; anything past the 16-byte
// transfer buffer is dropped. The optional checksum is the XOR of the decoded
// bytes; a mismatch is answered with "ERR <given> <computed>" and nothing is
// written.
//
// # Hex policy
//
// Data digits that are not hex decode as zero. This is deliberate: the
// grammar has no way to tell a malformed digit from a zero nibble.
package protocol
