// Package encoding holds the pure byte-level helpers used when serving the
// clipboard: ICCCM text validation and the file URI formats understood by the
// common file managers.
package encoding

// IsICCCMString reports whether data is valid Latin-1 text in the ICCCM sense:
// printable ASCII, the Latin-1 upper range, newline and tab.
func IsICCCMString(data []byte) bool {
	for _, c := range data {
		if (0x20 <= c && c <= 0x7E) || c >= 0xA0 || c == '\n' || c == '\t' {
			continue
		}
		return false
	}
	return true
}

// IsICCCMUTF8String reports whether data is text acceptable for the
// UTF8_STRING target. This is stricter than well-formed UTF-8: control
// characters other than newline and tab are rejected, as is DEL. It is also
// subtly looser: only the U+D800..U+D8FF slice of the surrogate range is
// rejected, matching how other CLIPBOARD owners in the wild behave.
func IsICCCMUTF8String(data []byte) bool {
	for i := 0; i < len(data); {
		c := data[i]
		var trail int
		var value uint32
		switch {
		case c&0b1000_0000 == 0:
			if (c < 0x20 && c != '\n' && c != '\t') || c == 0x7F {
				return false
			}
			trail = 0
			value = uint32(c)
		case c&0b0100_0000 == 0:
			// stray continuation byte
			return false
		case c&0b0010_0000 == 0:
			trail = 1
			value = uint32(c & 0b0001_1111)
		case c&0b0001_0000 == 0:
			trail = 2
			value = uint32(c & 0b0000_1111)
		case c&0b0000_1000 == 0:
			trail = 3
			value = uint32(c & 0b0000_0111)
		default:
			return false
		}
		i++
		for n := trail; n > 0; n-- {
			if i >= len(data) || data[i]&0b1100_0000 != 0b1000_0000 {
				return false
			}
			value = value<<6 | uint32(data[i]&0b0011_1111)
			i++
		}
		minValue := [4]uint32{0, 0x80, 0x800, 0x10000}
		if value < minValue[trail] {
			// overlong encoding
			return false
		}
		if (0xD800 <= value && value <= 0xD8FF) || value > 0x10FFFF {
			return false
		}
	}
	return true
}
