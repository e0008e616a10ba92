package encoding

const hexDigits = "0123456789ABCDEF"

// passesThrough reports whether c may appear in a file URI unencoded.
func passesThrough(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '/' || c == '.' || c == '_' || c == '-' || c == '~'
}

func percentEncode(dst []byte, path []byte) []byte {
	for _, c := range path {
		if passesThrough(c) {
			dst = append(dst, c)
		} else {
			dst = append(dst, '%', hexDigits[c>>4], hexDigits[c&0xF])
		}
	}
	return dst
}

func encodedLen(path []byte) int {
	n := 0
	for _, c := range path {
		if passesThrough(c) {
			n++
		} else {
			n += 3
		}
	}
	return n
}

// ToURI renders path as a text/uri-list entry: a percent-encoded file URI
// terminated by CRLF.
func ToURI(path []byte) []byte {
	buf := make([]byte, 0, len("file://")+encodedLen(path)+2)
	buf = append(buf, "file://"...)
	buf = percentEncode(buf, path)
	return append(buf, '\r', '\n')
}

// ToFileManagerFormat renders path in the x-special/*-copied-files format used
// by GNOME, KDE, MATE and Nautilus: a "copy" verb, a newline and the file URI,
// with no terminator.
func ToFileManagerFormat(path []byte) []byte {
	buf := make([]byte, 0, len("copy\nfile://")+encodedLen(path))
	buf = append(buf, "copy\nfile://"...)
	return percentEncode(buf, path)
}
