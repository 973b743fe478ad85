// Package hexcodec converts between the ASCII hex used on the programmer's
// serial protocol and raw bytes, and computes the protocol's XOR checksum.
//
// Parsing is tolerant by policy: the protocol grammar does not distinguish a
// malformed digit from zero, so NibbleValue maps any non-hex character to 0
// instead of reporting an error. Address parsing is the one place where a
// non-hex character matters, because it terminates the address field.
package hexcodec

const hexDigits = "0123456789abcdef"

// MaxAddressDigits is the number of hex digits accepted for an address.
const MaxAddressDigits = 4

// IsHexDigit reports whether c is one of 0-9, A-F or a-f.
func IsHexDigit(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'A' && c <= 'F':
		return true
	case c >= 'a' && c <= 'f':
		return true
	}
	return false
}

// NibbleValue maps a hex digit to 0-15. Any other character yields 0.
func NibbleValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

// ParseAddress accumulates up to maxDigits hex digits from the start of s,
// most significant first. It stops at the first non-hex character or at the
// digit limit and returns the value together with the number of characters
// consumed.
func ParseAddress(s []byte, maxDigits int) (addr uint16, n int) {
	for n < len(s) && n < maxDigits && IsHexDigit(s[n]) {
		addr = addr<<4 | uint16(NibbleValue(s[n]))
		n++
	}
	return addr, n
}

// PairValue decodes two characters into a byte, most significant nibble
// first.
func PairValue(hi, lo byte) byte {
	return NibbleValue(hi)<<4 | NibbleValue(lo)
}

// AppendByte appends b as two lowercase hex digits.
func AppendByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
}

// AppendAddress appends addr as four lowercase hex digits.
func AppendAddress(dst []byte, addr uint16) []byte {
	dst = AppendByte(dst, byte(addr>>8))
	return AppendByte(dst, byte(addr))
}

// AppendBytes appends every byte of data as lowercase hex pairs.
func AppendBytes(dst []byte, data []byte) []byte {
	for _, b := range data {
		dst = AppendByte(dst, b)
	}
	return dst
}

// XORChecksum folds every byte of data with XOR. The checksum of an empty
// sequence is 0.
func XORChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}
