package x11

import (
	"encoding/binary"
	"math"

	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"
)

type transferResult int

const (
	transferFatal transferResult = iota
	transferPartial
	transferFinished
)

// transfer writes the converted bytes for the transfer keyed by the request's
// (requestor, property): in one property change when they fit under the
// negotiated chunk size, otherwise as an INCR sequence driven by the
// requestor's PropertyNotify(Delete) round-trips.
func (c *Clipper) transfer(ev *xproto.SelectionRequestEvent) transferResult {
	t := c.transfers[transferKey{ev.Requestor, ev.Property}]
	d := t.data
	transferred := t.transferred
	size := len(d.bytes)

	if transferred == transferPreinit {
		// fits in one shot
		if size <= c.maxTransferSize {
			err := c.xc.ChangePropertyE(xproto.PropModeReplace, ev.Requestor, ev.Property,
				d.typ, d.format, d.bytes)
			if err != nil {
				c.log.Warn("failed to change property", zap.Error(err),
					zap.Uint32("requestor", uint32(ev.Requestor)))
				return transferFatal
			}
			t.transferred = size
			return transferFinished
		}

		// initiate INCR: subscribe to the requestor's property changes,
		// announce the (clamped) total size, and notify now — per ICCCM
		// the SelectionNotify for an INCR transfer is sent at its start
		if err := c.xc.ChangeWindowEventMask(ev.Requestor, xproto.EventMaskPropertyChange); err != nil {
			c.log.Warn("failed to subscribe for property changes", zap.Error(err),
				zap.Uint32("requestor", uint32(ev.Requestor)))
			return transferFatal
		}
		// clamped: requestors of a >4GiB payload get an understated hint
		sizeHint := uint32(math.MaxUint32)
		if uint64(size) < math.MaxUint32 {
			sizeHint = uint32(size)
		}
		var hint [4]byte
		binary.LittleEndian.PutUint32(hint[:], sizeHint)
		err := c.xc.ChangePropertyE(xproto.PropModeReplace, ev.Requestor, ev.Property,
			c.incr, 32, hint[:])
		if err != nil {
			c.log.Warn("failed to change property", zap.Error(err),
				zap.Uint32("requestor", uint32(ev.Requestor)))
			return transferFatal
		}
		if !c.sendNotify(ev) {
			return transferFatal
		}
		t.transferred = 0
		return transferPartial
	}

	// next chunk, a whole number of format units
	chunk := size - transferred
	if chunk > c.maxTransferSize {
		chunk = c.maxTransferSize
	}
	chunk -= chunk % (int(d.format) / 8)
	err := c.xc.ChangePropertyE(xproto.PropModeReplace, ev.Requestor, ev.Property,
		d.typ, d.format, d.bytes[transferred:transferred+chunk])
	if err != nil {
		c.log.Warn("failed to change property", zap.Error(err),
			zap.Uint32("requestor", uint32(ev.Requestor)))
		return transferFatal
	}
	t.transferred += chunk

	// the comparison uses the count from before this chunk, so a transfer
	// that just delivered its last bytes still comes back once more to
	// write the zero-length chunk that terminates INCR
	if transferred < size {
		return transferPartial
	}

	// transfer done, stop watching the requestor's properties. Best-effort:
	// the requestor may be gone already.
	if err := c.xc.ChangeWindowEventMask(ev.Requestor, 0); err != nil {
		c.log.Warn("failed to unsubscribe from property changes", zap.Error(err),
			zap.Uint32("requestor", uint32(ev.Requestor)))
	}
	return transferFinished
}
