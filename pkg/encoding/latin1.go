// Package encoding provides text encoding utilities for Quake III map data.
// Entity and shader strings are stored as 8-bit ISO-8859-1 text.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Latin1ToUTF8 converts ISO-8859-1 encoded bytes to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func Latin1ToUTF8(data []byte) string {
	result, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// Latin1StringToUTF8 converts an ISO-8859-1 encoded string to UTF-8.
func Latin1StringToUTF8(s string) string {
	return Latin1ToUTF8([]byte(s))
}

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// FixedStringToUTF8 converts a NUL-terminated fixed-size field to UTF-8.
func FixedStringToUTF8(data []byte) string {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	return Latin1ToUTF8(data)
}

// Printable replaces control characters other than tab and newline with
// spaces so map text can be written to a terminal.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if r < 0x20 || (r >= 0x7f && r < 0xa0) {
			return ' '
		}
		return r
	}, s)
}
