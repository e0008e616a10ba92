package x11

import (
	"errors"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"

	"github.com/berrythewa/xclipper/pkg/encoding"
)

var errBadWindow = errors.New("BadWindow")

// test atoms; arbitrary but distinct
const (
	atomClipboard xproto.Atom = 100
	atomTimestamp xproto.Atom = 101
	atomTargets   xproto.Atom = 102
	atomMultiple  xproto.Atom = 103
	atomText      xproto.Atom = 104
	atomString    xproto.Atom = 105
	atomUTF8      xproto.Atom = 106
	atomCString   xproto.Atom = 107
	atomFileName  xproto.Atom = 108
	atomURIList   xproto.Atom = 109
	atomGnome     xproto.Atom = 110
	atomKDE       xproto.Atom = 111
	atomMate      xproto.Atom = 112
	atomNautilus  xproto.Atom = 113
	atomPairAtom  xproto.Atom = 120
	atomIncr      xproto.Atom = 121
)

const (
	ownerWin xproto.Window = 1
	ownerTS  xproto.Timestamp = 100
)

type propKey struct {
	win  xproto.Window
	atom xproto.Atom
}

type propWrite struct {
	win    xproto.Window
	prop   xproto.Atom
	typ    xproto.Atom
	format byte
	data   []byte
}

type fakeProp struct {
	typ    xproto.Atom
	format byte
	value  []byte
}

// fakeXClient scripts incoming events and records every outgoing request.
type fakeXClient struct {
	owner  xproto.Window
	events []xgb.Event

	writes   []propWrite
	notifies []xproto.SelectionNotifyEvent
	masks    map[xproto.Window][]uint32
	props    map[propKey]fakeProp

	changePropErr error
}

func newFakeXClient(events ...xgb.Event) *fakeXClient {
	return &fakeXClient{
		owner:  ownerWin,
		events: events,
		masks:  make(map[xproto.Window][]uint32),
		props:  make(map[propKey]fakeProp),
	}
}

func (f *fakeXClient) ChangePropertyE(mode byte, win xproto.Window, prop, typ xproto.Atom, format byte, data []byte) error {
	if f.changePropErr != nil {
		return f.changePropErr
	}
	f.writes = append(f.writes, propWrite{win, prop, typ, format, append([]byte(nil), data...)})
	return nil
}

func (f *fakeXClient) ChangeWindowEventMask(win xproto.Window, mask uint32) error {
	f.masks[win] = append(f.masks[win], mask)
	return nil
}

func (f *fakeXClient) GetProperty(del bool, win xproto.Window, prop, typ xproto.Atom, longOffset, longLength uint32) (*xproto.GetPropertyReply, error) {
	p, ok := f.props[propKey{win, prop}]
	if !ok {
		return &xproto.GetPropertyReply{Type: xproto.AtomNone}, nil
	}
	if longLength == 0 {
		return &xproto.GetPropertyReply{
			Format:     p.format,
			Type:       p.typ,
			BytesAfter: uint32(len(p.value)),
		}, nil
	}
	return &xproto.GetPropertyReply{
		Format:   p.format,
		Type:     p.typ,
		ValueLen: uint32(len(p.value)) / (uint32(p.format) / 8),
		Value:    append([]byte(nil), p.value...),
	}, nil
}

func (f *fakeXClient) GetSelectionOwner(sel xproto.Atom) (xproto.Window, error) {
	return f.owner, nil
}

func (f *fakeXClient) SendEventE(ev *xproto.SelectionNotifyEvent) error {
	f.notifies = append(f.notifies, *ev)
	return nil
}

func (f *fakeXClient) WaitForEvent() (xgb.Event, error) {
	if len(f.events) == 0 {
		return nil, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeXClient) Close() {}

func (f *fakeXClient) writesTo(win xproto.Window, prop xproto.Atom) []propWrite {
	var out []propWrite
	for _, w := range f.writes {
		if w.win == win && w.prop == prop {
			out = append(out, w)
		}
	}
	return out
}

// testTargets mirrors the bootstrap interning rules against the test atoms.
func testTargets(data []byte, isFile bool) map[string]xproto.Atom {
	m := map[string]xproto.Atom{
		"TIMESTAMP": atomTimestamp,
		"TARGETS":   atomTargets,
		"MULTIPLE":  atomMultiple,
		"TEXT":      atomText,
		"C_STRING":  atomCString,
	}
	if encoding.IsICCCMString(data) {
		m["STRING"] = atomString
	}
	if encoding.IsICCCMUTF8String(data) {
		m["UTF8_STRING"] = atomUTF8
	}
	if isFile {
		m["FILE_NAME"] = atomFileName
		m["text/uri-list"] = atomURIList
		m["x-special/gnome-copied-files"] = atomGnome
		m["x-special/KDE-copied-files"] = atomKDE
		m["x-special/mate-copied-files"] = atomMate
		m["x-special/nautilus-clipboard"] = atomNautilus
	}
	return m
}

func newTestClipper(fc *fakeXClient, data []byte, isFile bool, maxTransfer int) *Clipper {
	return newClipper(clipperConfig{
		xc:              fc,
		log:             zap.NewNop(),
		data:            data,
		isFile:          isFile,
		owner:           ownerWin,
		ownershipTS:     ownerTS,
		clipboard:       atomClipboard,
		atomPair:        atomPairAtom,
		incr:            atomIncr,
		targets:         testTargets(data, isFile),
		maxTransferSize: maxTransfer,
	})
}

func selReq(requestor xproto.Window, target, property xproto.Atom, t xproto.Timestamp) xproto.SelectionRequestEvent {
	return xproto.SelectionRequestEvent{
		Owner:     ownerWin,
		Requestor: requestor,
		Selection: atomClipboard,
		Target:    target,
		Property:  property,
		Time:      t,
	}
}

func propDelete(win xproto.Window, prop xproto.Atom) xproto.PropertyNotifyEvent {
	return xproto.PropertyNotifyEvent{
		Window: win,
		Atom:   prop,
		State:  xproto.PropertyDelete,
	}
}

func selClear() xproto.SelectionClearEvent {
	return xproto.SelectionClearEvent{
		Owner:     ownerWin,
		Selection: atomClipboard,
	}
}

func atomsToBytes(atoms ...xproto.Atom) []byte {
	buf := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		buf[4*i] = byte(a)
		buf[4*i+1] = byte(a >> 8)
		buf[4*i+2] = byte(a >> 16)
		buf[4*i+3] = byte(a >> 24)
	}
	return buf
}

func bytesToAtoms(data []byte) []xproto.Atom {
	atoms := make([]xproto.Atom, len(data)/4)
	for i := range atoms {
		atoms[i] = xproto.Atom(uint32(data[4*i]) |
			uint32(data[4*i+1])<<8 |
			uint32(data[4*i+2])<<16 |
			uint32(data[4*i+3])<<24)
	}
	return atoms
}
