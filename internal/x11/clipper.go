// Package x11 implements the CLIPBOARD selection owner: the event loop,
// per-requestor request queues, the conversion registry and the single-shot
// and INCR transfer paths.
package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"
)

// transferPreinit marks a transfer whose first chunk has not been written yet.
const transferPreinit = -1

// transferKey identifies an in-flight transfer. Keying on the pair rather
// than on the request record keeps transfers and queue entries free of
// references to each other.
type transferKey struct {
	requestor xproto.Window
	property  xproto.Atom
}

// convertedData is the uniform projection every converter produces: the atom
// labelling the data, the element width in bits, and the bytes. The slice may
// own its backing array or alias the payload or the cache; either way the
// transfer engine only reads through it — except for MULTIPLE, whose slice is
// deliberately mutated in place by sub-request completions.
type convertedData struct {
	typ    xproto.Atom
	format byte
	bytes  []byte
}

type transferState struct {
	data convertedData
	// bytes delivered so far, or transferPreinit
	transferred int
}

// request is one queued conversion request. Sub-requests spawned by MULTIPLE
// share the parent's event record and carry an onFinish callback that stitches
// their result back into the parent's ATOM_PAIR buffer.
type request struct {
	ev       *xproto.SelectionRequestEvent
	ready    bool
	onFinish func(*xproto.SelectionRequestEvent)
}

type handlerFunc func(*request)

// viewConvert produces data aliasing memory that outlives the transfer.
type viewConvert func(*xproto.SelectionRequestEvent) convertedData

// ownedConvert produces fresh data; ok=false refuses the request.
type ownedConvert func(*xproto.SelectionRequestEvent) (convertedData, bool)

// Clipper owns the CLIPBOARD selection and serves the payload until ownership
// is lost and every outstanding request has drained.
type Clipper struct {
	xc  XClient
	log *zap.Logger

	data   []byte
	isFile bool

	owner       xproto.Window
	ownershipTS xproto.Timestamp

	clipboard xproto.Atom
	atomPair  xproto.Atom
	incr      xproto.Atom
	// interned target name -> atom; fixed after bootstrap
	targets map[string]xproto.Atom

	maxTransferSize int

	handlers  map[xproto.Atom]handlerFunc
	cache     map[xproto.Atom]convertedData
	queues    map[xproto.Window][]*request
	transfers map[transferKey]*transferState

	own bool
}

type clipperConfig struct {
	xc              XClient
	log             *zap.Logger
	data            []byte
	isFile          bool
	owner           xproto.Window
	ownershipTS     xproto.Timestamp
	clipboard       xproto.Atom
	atomPair        xproto.Atom
	incr            xproto.Atom
	targets         map[string]xproto.Atom
	maxTransferSize int
}

func newClipper(cfg clipperConfig) *Clipper {
	c := &Clipper{
		xc:              cfg.xc,
		log:             cfg.log,
		data:            cfg.data,
		isFile:          cfg.isFile,
		owner:           cfg.owner,
		ownershipTS:     cfg.ownershipTS,
		clipboard:       cfg.clipboard,
		atomPair:        cfg.atomPair,
		incr:            cfg.incr,
		targets:         cfg.targets,
		maxTransferSize: cfg.maxTransferSize,
		handlers:        make(map[xproto.Atom]handlerFunc),
		cache:           make(map[xproto.Atom]convertedData),
		queues:          make(map[xproto.Window][]*request),
		transfers:       make(map[transferKey]*transferState),
	}
	c.registerHandlers()
	return c
}

// Close releases the X connection.
func (c *Clipper) Close() {
	c.xc.Close()
}

// Run serves conversion requests until ownership is lost and all queues are
// drained, or the connection breaks.
func (c *Clipper) Run() error {
	// re-verify ownership: another client may have outraced us between
	// bootstrap and here
	owner, err := c.xc.GetSelectionOwner(c.clipboard)
	if err != nil {
		return fmt.Errorf("failed to get owner of CLIPBOARD selection: %w", err)
	}
	if owner != c.owner {
		c.log.Info("lost CLIPBOARD ownership race", zap.Uint32("owner", uint32(owner)))
		return nil
	}
	c.own = true

	for c.own || len(c.queues) > 0 {
		ev, err := c.xc.WaitForEvent()
		if ev == nil && err == nil {
			// connection broken
			return nil
		}
		if err != nil {
			c.log.Warn("x error event", zap.Error(err))
		}
		if ev != nil {
			c.handleEvent(ev)
		}
		c.sweep()
	}
	return nil
}

func (c *Clipper) handleEvent(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.SelectionRequestEvent:
		c.log.Debug("selection request",
			zap.Uint32("requestor", uint32(e.Requestor)),
			zap.Uint32("target", uint32(e.Target)),
			zap.Uint32("property", uint32(e.Property)))
		c.queues[e.Requestor] = append(c.queues[e.Requestor], &request{ev: &e, ready: true})

	case xproto.SelectionClearEvent:
		c.log.Debug("selection clear", zap.Uint32("owner", uint32(e.Owner)))
		c.own = false

	case xproto.PropertyNotifyEvent:
		// the requestor deleted the property: it consumed the previous
		// INCR chunk and is ready for the next one
		if e.State != xproto.PropertyDelete {
			return
		}
		if q := c.queues[e.Window]; len(q) > 0 && q[0].ev.Property == e.Atom {
			q[0].ready = true
		}
	}
}

// sweep dispatches every queue head marked ready, repeating until a full pass
// makes no progress, then prunes empty queues. Repeating is what lets a
// MULTIPLE chain of single-shot sub-requests drain without waiting for
// further client events.
func (c *Clipper) sweep() {
	for {
		progressed := false
		for w := range c.queues {
			q := c.queues[w]
			if len(q) == 0 || !q[0].ready {
				continue
			}
			head := q[0]
			c.startRequest(head)
			if nq := c.queues[w]; len(nq) == 0 || nq[0] != head || !nq[0].ready {
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for w, q := range c.queues {
		if len(q) == 0 {
			delete(c.queues, w)
		}
	}
}

// startRequest validates the head request and hands it to its handler.
func (c *Clipper) startRequest(r *request) {
	ev := r.ev
	h, known := c.handlers[ev.Target]
	if ev.Owner != c.owner ||
		(ev.Time < c.ownershipTS && ev.Time != xproto.TimeCurrentTime) ||
		ev.Selection != c.clipboard ||
		!known {
		ev.Property = xproto.AtomNone
		c.finishRequest(r, true)
		return
	}
	h(r)
}

// finishRequest completes the head request: a sub-request reports back to its
// parent through onFinish, anything else gets a SelectionNotify (unless
// suppressed), and the record is popped.
func (c *Clipper) finishRequest(r *request, sendNotification bool) {
	if r.onFinish != nil {
		r.onFinish(r.ev)
	} else if sendNotification {
		c.sendNotify(r.ev)
	}
	c.queues[r.ev.Requestor] = c.queues[r.ev.Requestor][1:]
}

func (c *Clipper) sendNotify(ev *xproto.SelectionRequestEvent) bool {
	notify := xproto.SelectionNotifyEvent{
		Time:      ev.Time,
		Requestor: ev.Requestor,
		Selection: ev.Selection,
		Target:    ev.Target,
		Property:  ev.Property,
	}
	if err := c.xc.SendEventE(&notify); err != nil {
		c.log.Warn("failed to send finish notification",
			zap.Error(err), zap.Uint32("requestor", uint32(ev.Requestor)))
		return false
	}
	return true
}

// proceedView adapts a view converter, which cannot fail, to proceed.
func (c *Clipper) proceedView(r *request, convert viewConvert) {
	c.proceed(r, func(ev *xproto.SelectionRequestEvent) (convertedData, bool) {
		return convert(ev), true
	})
}

// proceed is the generic conversion dispatch every handler funnels through:
// convert once per (requestor, property), then drive the transfer engine
// unless MULTIPLE has spliced sub-requests ahead of this record.
func (c *Clipper) proceed(r *request, convert ownedConvert) {
	ev := r.ev
	key := transferKey{ev.Requestor, ev.Property}
	if _, ok := c.transfers[key]; !ok {
		data, ok := convert(ev)
		if !ok {
			ev.Property = xproto.AtomNone
			c.finishRequest(r, true)
			return
		}
		c.transfers[key] = &transferState{data: data, transferred: transferPreinit}
	}

	// MULTIPLE may have put sub-requests before this one during
	// conversion; they run first and the sweep revisits us
	if q := c.queues[ev.Requestor]; len(q) == 0 || q[0] != r {
		return
	}

	switch c.transfer(ev) {
	case transferFatal:
		// the engine already tried to report, or the requestor is gone
		ev.Property = xproto.AtomNone
		delete(c.transfers, key)
		c.finishRequest(r, false)
	case transferFinished:
		// INCR requestors were notified at start
		sendNotification := c.transfers[key].transferred <= c.maxTransferSize
		delete(c.transfers, key)
		c.finishRequest(r, sendNotification)
	case transferPartial:
		r.ready = false
	}
}
