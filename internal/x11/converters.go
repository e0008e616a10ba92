package x11

import (
	"encoding/binary"
	"sort"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/berrythewa/xclipper/pkg/encoding"
)

// supportObsoleteClients applies the ICCCM compatibility rule for requestors
// predating the property field: a None property means "use the target atom".
// MULTIPLE is exempt; there a None property is an error.
func supportObsoleteClients(ev *xproto.SelectionRequestEvent) {
	if ev.Property == xproto.AtomNone {
		ev.Property = ev.Target
	}
}

// cached memoizes an owning converter per target. Entries live until process
// exit and are never mutated after insertion.
func (c *Clipper) cached(convert ownedConvert) ownedConvert {
	return func(ev *xproto.SelectionRequestEvent) (convertedData, bool) {
		if d, ok := c.cache[ev.Target]; ok {
			return d, true
		}
		d, ok := convert(ev)
		if ok {
			c.cache[ev.Target] = d
		}
		return d, ok
	}
}

// registerHandlers builds the conversion registry. The key set of handlers is
// exactly the advertised TARGETS list; only atoms actually interned at
// bootstrap get an entry.
func (c *Clipper) registerHandlers() {
	c.handlers[c.targets["TIMESTAMP"]] = func(r *request) {
		supportObsoleteClients(r.ev)
		c.proceedView(r, func(*xproto.SelectionRequestEvent) convertedData {
			var ts [4]byte
			binary.LittleEndian.PutUint32(ts[:], uint32(c.ownershipTS))
			return convertedData{xproto.AtomInteger, 32, ts[:]}
		})
	}

	c.handlers[c.targets["TARGETS"]] = func(r *request) {
		supportObsoleteClients(r.ev)
		c.proceed(r, c.cached(func(*xproto.SelectionRequestEvent) (convertedData, bool) {
			atoms := make([]xproto.Atom, 0, len(c.handlers))
			for atom := range c.handlers {
				atoms = append(atoms, atom)
			}
			sort.Slice(atoms, func(i, j int) bool { return atoms[i] < atoms[j] })
			buf := make([]byte, 4*len(atoms))
			for i, atom := range atoms {
				binary.LittleEndian.PutUint32(buf[4*i:], uint32(atom))
			}
			return convertedData{xproto.AtomAtom, 32, buf}, true
		}))
	}

	c.handlers[c.targets["MULTIPLE"]] = func(r *request) {
		if r.ev.Property == xproto.AtomNone {
			c.finishRequest(r, true)
			return
		}
		c.proceed(r, c.convertMultiple)
	}

	asIs := func(r *request) {
		supportObsoleteClients(r.ev)
		c.proceedView(r, func(ev *xproto.SelectionRequestEvent) convertedData {
			return convertedData{ev.Target, 8, c.data}
		})
	}
	for _, name := range []string{"C_STRING", "STRING", "UTF8_STRING"} {
		if atom, ok := c.targets[name]; ok {
			c.handlers[atom] = asIs
		}
	}

	// TEXT answers with the best concrete encoding we can offer
	if textAtom, ok := c.targets["TEXT"]; ok {
		var textType xproto.Atom
		for _, name := range []string{"UTF8_STRING", "STRING", "C_STRING"} {
			if atom, ok := c.targets[name]; ok {
				textType = atom
				break
			}
		}
		if textType != xproto.AtomNone {
			c.handlers[textAtom] = func(r *request) {
				supportObsoleteClients(r.ev)
				c.proceedView(r, func(*xproto.SelectionRequestEvent) convertedData {
					return convertedData{textType, 8, c.data}
				})
			}
		}
	}

	// file names travel as null-free C strings
	if fileNameAtom, ok := c.targets["FILE_NAME"]; ok {
		if cString, ok := c.targets["C_STRING"]; ok {
			c.handlers[fileNameAtom] = func(r *request) {
				supportObsoleteClients(r.ev)
				c.proceedView(r, func(*xproto.SelectionRequestEvent) convertedData {
					return convertedData{cString, 8, c.data}
				})
			}
		}
	}

	if uriAtom, ok := c.targets["text/uri-list"]; ok {
		c.handlers[uriAtom] = func(r *request) {
			supportObsoleteClients(r.ev)
			c.proceed(r, c.cached(func(ev *xproto.SelectionRequestEvent) (convertedData, bool) {
				return convertedData{ev.Target, 8, encoding.ToURI(c.data)}, true
			}))
		}
	}

	fileManager := func(r *request) {
		supportObsoleteClients(r.ev)
		c.proceed(r, c.cached(func(ev *xproto.SelectionRequestEvent) (convertedData, bool) {
			return convertedData{ev.Target, 8, encoding.ToFileManagerFormat(c.data)}, true
		}))
	}
	for _, name := range []string{
		"x-special/gnome-copied-files",
		"x-special/KDE-copied-files",
		"x-special/mate-copied-files",
		"x-special/nautilus-clipboard",
	} {
		if atom, ok := c.targets[name]; ok {
			c.handlers[atom] = fileManager
		}
	}
}
