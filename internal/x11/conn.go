package x11

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// XClient is the slice of the X11 connection the selection state machine
// needs at runtime. Production code wraps *xgb.Conn; tests substitute a
// scripted fake.
type XClient interface {
	// ChangePropertyE replaces the named property on win with data. The
	// element count is derived from len(data) and format.
	ChangePropertyE(mode byte, win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error
	// ChangeWindowEventMask rewrites win's event mask.
	ChangeWindowEventMask(win xproto.Window, mask uint32) error
	// GetProperty reads a property. Offset and length are in 32-bit units,
	// per the protocol.
	GetProperty(del bool, win xproto.Window, prop, typ xproto.Atom, longOffset, longLength uint32) (*xproto.GetPropertyReply, error)
	GetSelectionOwner(sel xproto.Atom) (xproto.Window, error)
	// SendEventE delivers a SelectionNotify to its requestor.
	SendEventE(ev *xproto.SelectionNotifyEvent) error
	// WaitForEvent blocks for the next event. Both results nil means the
	// connection is gone.
	WaitForEvent() (xgb.Event, error)
	Close()
}

type xgbClient struct {
	conn *xgb.Conn
}

func newXGBClient(conn *xgb.Conn) *xgbClient {
	return &xgbClient{conn: conn}
}

func (x *xgbClient) ChangePropertyE(mode byte, win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	units := uint32(len(data)) * 8 / uint32(format)
	return xproto.ChangePropertyChecked(x.conn, mode, win, prop, typ, format, units, data).Check()
}

func (x *xgbClient) ChangeWindowEventMask(win xproto.Window, mask uint32) error {
	return xproto.ChangeWindowAttributesChecked(x.conn, win, xproto.CwEventMask, []uint32{mask}).Check()
}

func (x *xgbClient) GetProperty(del bool, win xproto.Window, prop, typ xproto.Atom, longOffset, longLength uint32) (*xproto.GetPropertyReply, error) {
	return xproto.GetProperty(x.conn, del, win, prop, typ, longOffset, longLength).Reply()
}

func (x *xgbClient) GetSelectionOwner(sel xproto.Atom) (xproto.Window, error) {
	reply, err := xproto.GetSelectionOwner(x.conn, sel).Reply()
	if err != nil {
		return xproto.Window(0), err
	}
	return reply.Owner, nil
}

func (x *xgbClient) SendEventE(ev *xproto.SelectionNotifyEvent) error {
	return xproto.SendEventChecked(x.conn, false, ev.Requestor, xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

func (x *xgbClient) WaitForEvent() (xgb.Event, error) {
	ev, xerr := x.conn.WaitForEvent()
	if xerr != nil {
		return ev, xerr
	}
	return ev, nil
}

func (x *xgbClient) Close() {
	x.conn.Close()
}
