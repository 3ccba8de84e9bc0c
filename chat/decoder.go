package chat

import (
	"strings"
	"unicode/utf8"
)

// Decoder turns a sequence of byte chunks into text. A multi-byte character
// split across chunks is held back until the rest of it arrives. Invalid
// bytes become U+FFFD.
type Decoder struct {
	pending []byte
}

func (d *Decoder) Decode(chunk []byte) string {
	buf := append(d.pending, chunk...)
	end := len(buf) - incompleteSuffix(buf)
	d.pending = append([]byte(nil), buf[end:]...)
	return strings.ToValidUTF8(string(buf[:end]), string(utf8.RuneError))
}

// Flush returns anything still held back, at the end of the stream.
func (d *Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
	d.pending = nil
	return s
}

// incompleteSuffix returns the length of a trailing partial UTF-8 sequence
// that could still become valid.
func incompleteSuffix(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if utf8.RuneStart(c) {
			if c < utf8.RuneSelf {
				return 0
			}
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
