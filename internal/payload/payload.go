// Package payload resolves the command line argument into the immutable byte
// view served as the selection value.
package payload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mode selects how the argument is interpreted.
type Mode int

const (
	// ModeString serves the argument bytes themselves.
	ModeString Mode = iota
	// ModeFileName serves the canonicalized absolute path of the argument.
	ModeFileName
	// ModeContents serves the contents of the file named by the argument.
	ModeContents
)

// Payload is the selection value fixed at startup. The byte view is immutable
// for the life of the process; converters only ever read it.
type Payload struct {
	data   []byte
	isFile bool
	mapped bool
}

// Load resolves arg according to mode. In contents mode, files up to one page
// are read into memory and larger ones are mapped read-only and private, so a
// multi-gigabyte file costs address space rather than RSS.
func Load(mode Mode, arg string) (*Payload, error) {
	switch mode {
	case ModeFileName:
		path, err := canonicalize(arg)
		if err != nil {
			return nil, err
		}
		return &Payload{data: []byte(path), isFile: true}, nil

	case ModeContents:
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		size := int(st.Size())
		if size <= unix.Getpagesize() {
			data := make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			return &Payload{data: data}, nil
		}
		data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("%s: mmap: %w", arg, err)
		}
		return &Payload{data: data, mapped: true}, nil

	default:
		return &Payload{data: []byte(arg)}, nil
	}
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return resolved, nil
}

// Bytes returns the immutable selection value.
func (p *Payload) Bytes() []byte {
	return p.data
}

// IsFile reports whether the payload names a filesystem path.
func (p *Payload) IsFile() bool {
	return p.isFile
}

// Close releases the mapping in contents mode. It is a no-op otherwise.
func (p *Payload) Close() error {
	if !p.mapped {
		return nil
	}
	data := p.data
	p.data = nil
	p.mapped = false
	return unix.Munmap(data)
}
