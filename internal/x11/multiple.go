package x11

import (
	"encoding/binary"

	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"
)

// convertMultiple reads the requestor's ATOM_PAIR property and splices one
// sub-request per valid (target, property) pair onto the front of the
// requestor's queue, in source order. Every sub-request shares the parent's
// event record: while a sub-request runs, the record carries that pair's
// target and property, and its completion callback restores the values for
// the next sub-request in the chain (the last one pushed restores the
// parent's own). The returned buffer is the authoritative results buffer —
// callbacks overwrite a pair's property slot with None when the sub-request
// refused, and the very same bytes are later transferred back to the
// requestor.
func (c *Clipper) convertMultiple(ev *xproto.SelectionRequestEvent) (convertedData, bool) {
	// type discovery first: a zero-length read reports actual size,
	// format and type
	probe, err := c.xc.GetProperty(false, ev.Requestor, ev.Property,
		xproto.GetPropertyTypeAny, 0, 0)
	if err != nil {
		c.log.Warn("failed to get property value", zap.Error(err),
			zap.Uint32("requestor", uint32(ev.Requestor)))
		return convertedData{}, false
	}

	propSize := probe.BytesAfter
	if probe.Format != 32 || probe.Type != c.atomPair || propSize%8 != 0 {
		return convertedData{}, false
	}

	reply, err := c.xc.GetProperty(false, ev.Requestor, ev.Property,
		probe.Type, 0, propSize/4)
	if err != nil {
		c.log.Warn("failed to get property value", zap.Error(err),
			zap.Uint32("requestor", uint32(ev.Requestor)))
		return convertedData{}, false
	}

	n := int(propSize / 4) // atom count, even
	if n == 0 {
		return convertedData{c.atomPair, 32, nil}, true
	}

	buf := make([]byte, 4*n)
	copy(buf, reply.Value)
	atomAt := func(i int) xproto.Atom {
		return xproto.Atom(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	markFailed := func(i int) {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(xproto.AtomNone))
	}

	// walk the pairs in reverse so each push lands in front of the
	// previous one and the sub-requests execute in source order
	nextTarget, nextProperty := ev.Target, ev.Property
	for i := n - 2; i >= 0; i -= 2 {
		target, property := atomAt(i), atomAt(i+1)
		if property == xproto.AtomNone {
			// a sub-request's property cannot be None
			markFailed(i + 1)
			continue
		}
		if target == ev.Target && c.hasTransfer(ev.Requestor, property) {
			// a MULTIPLE referencing an in-flight transfer of itself
			// would recurse forever
			markFailed(i + 1)
			continue
		}

		slot := i + 1
		restoreTarget, restoreProperty := nextTarget, nextProperty
		onFinish := func(ev *xproto.SelectionRequestEvent) {
			if ev.Property == xproto.AtomNone {
				markFailed(slot)
			}
			ev.Target = restoreTarget
			ev.Property = restoreProperty
		}
		c.queues[ev.Requestor] = append(
			[]*request{{ev: ev, ready: true, onFinish: onFinish}},
			c.queues[ev.Requestor]...)
		nextTarget, nextProperty = target, property
	}

	// point the shared event at the first enqueued sub-request; if every
	// pair was rejected this restores the parent's own values
	ev.Target = nextTarget
	ev.Property = nextProperty

	return convertedData{c.atomPair, 32, buf}, true
}

func (c *Clipper) hasTransfer(requestor xproto.Window, property xproto.Atom) bool {
	_, ok := c.transfers[transferKey{requestor, property}]
	return ok
}
