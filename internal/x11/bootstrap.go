package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/bigreq"
	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/zap"

	"github.com/berrythewa/xclipper/pkg/encoding"
)

// requiredTargets must intern or the process cannot serve at all.
var requiredTargets = []string{"TIMESTAMP", "TARGETS", "MULTIPLE"}

// textTargets are advertised when the payload satisfies their validator (or
// unconditionally when they have none).
var textTargets = []string{"TEXT", "STRING", "UTF8_STRING", "C_STRING"}

// fileTargets are advertised only in filename mode.
var fileTargets = []string{
	"FILE_NAME",
	"text/uri-list",
	"x-special/gnome-copied-files",
	"x-special/KDE-copied-files",
	"x-special/mate-copied-files",
	"x-special/nautilus-clipboard",
}

var textValidators = map[string]func([]byte) bool{
	"STRING":      encoding.IsICCCMString,
	"UTF8_STRING": encoding.IsICCCMUTF8String,
}

// Options configures the selection owner.
type Options struct {
	// Data is the immutable payload served for every conversion.
	Data []byte
	// IsFile marks the payload as a filesystem path, enabling the file
	// targets.
	IsFile bool
	Logger *zap.Logger
	// MaxTransferSize overrides the chunk size negotiated with the server
	// when positive. Intended for experiments; leave zero in normal use.
	MaxTransferSize int
}

// New connects to the X server, acquires the CLIPBOARD selection and returns
// a Clipper ready to Run. Any failure here is fatal for the process.
func New(opts Options) (*Clipper, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			conn.Close()
		}
	}()

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	// input-only window, subscribed to its own property changes so the
	// ownership timestamp can be provoked below
	owner, err := xproto.NewWindowId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(conn, 0, owner, screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOnly, 0,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	targets, protocol, err := internAtoms(conn, log, opts.Data, opts.IsFile)
	if err != nil {
		return nil, err
	}

	ts, err := ownershipTimestamp(conn, owner)
	if err != nil {
		return nil, err
	}
	log.Debug("acquired ownership timestamp", zap.Uint32("timestamp", uint32(ts)))

	err = xproto.SetSelectionOwnerChecked(conn, owner, protocol.clipboard, ts).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire CLIPBOARD selection: %w", err)
	}

	maxTransfer := opts.MaxTransferSize
	if maxTransfer <= 0 {
		maxTransfer = maxTransferSize(conn, setup, log)
	}
	log.Info("owning CLIPBOARD selection",
		zap.Uint32("window", uint32(owner)),
		zap.Int("payload_size", len(opts.Data)),
		zap.Int("max_transfer_size", maxTransfer))

	ok = true
	return newClipper(clipperConfig{
		xc:              newXGBClient(conn),
		log:             log,
		data:            opts.Data,
		isFile:          opts.IsFile,
		owner:           owner,
		ownershipTS:     ts,
		clipboard:       protocol.clipboard,
		atomPair:        protocol.atomPair,
		incr:            protocol.incr,
		targets:         targets,
		maxTransferSize: maxTransfer,
	}), nil
}

type protocolAtoms struct {
	clipboard xproto.Atom
	atomPair  xproto.Atom
	incr      xproto.Atom
}

// internAtoms interns every advertised target plus the protocol atoms,
// issuing all requests before collecting any reply. Required and protocol
// atoms are fatal; a failed optional target is logged and dropped from the
// advertised set.
func internAtoms(conn *xgb.Conn, log *zap.Logger, data []byte, isFile bool) (map[string]xproto.Atom, protocolAtoms, error) {
	var required, optional []string
	required = append(required, requiredTargets...)
	for _, name := range textTargets {
		if validate, ok := textValidators[name]; ok && !validate(data) {
			continue
		}
		optional = append(optional, name)
	}
	if isFile {
		optional = append(optional, fileTargets...)
	}
	protocolNames := []string{"CLIPBOARD", "ATOM_PAIR", "INCR"}

	names := make([]string, 0, len(required)+len(optional)+len(protocolNames))
	names = append(names, required...)
	names = append(names, optional...)
	names = append(names, protocolNames...)

	cookies := make([]xproto.InternAtomCookie, len(names))
	for i, name := range names {
		cookies[i] = xproto.InternAtom(conn, false, uint16(len(name)), name)
	}

	targets := make(map[string]xproto.Atom, len(required)+len(optional))
	var protocol protocolAtoms
	for i, name := range names {
		reply, err := cookies[i].Reply()
		if err != nil {
			if i < len(required) || i >= len(required)+len(optional) {
				return nil, protocolAtoms{}, fmt.Errorf("failed to get %s atom: %w", name, err)
			}
			log.Warn("failed to get atom, target not advertised",
				zap.String("target", name), zap.Error(err))
			continue
		}
		switch name {
		case "CLIPBOARD":
			protocol.clipboard = reply.Atom
		case "ATOM_PAIR":
			protocol.atomPair = reply.Atom
		case "INCR":
			protocol.incr = reply.Atom
		default:
			targets[name] = reply.Atom
		}
	}
	return targets, protocol, nil
}

// ownershipTimestamp provokes a PropertyNotify on the owner window with a
// zero-length property change and takes its server time. Claiming a selection
// at CurrentTime would make stale-request detection impossible.
func ownershipTimestamp(conn *xgb.Conn, owner xproto.Window) (xproto.Timestamp, error) {
	err := xproto.ChangePropertyChecked(conn, xproto.PropModeReplace, owner,
		xproto.AtomPrimary, xproto.AtomPrimary, 8, 0, nil).Check()
	if err != nil {
		return 0, fmt.Errorf("failed to provoke timestamp property change: %w", err)
	}
	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return 0, errors.New("connection broken while waiting for timestamp")
		}
		if xerr != nil {
			continue
		}
		if notify, ok := ev.(xproto.PropertyNotifyEvent); ok && notify.Window == owner {
			return notify.Time, nil
		}
	}
}

// maxTransferSize is half the maximum request length in bytes, preferring the
// big-requests extension when the server offers it.
func maxTransferSize(conn *xgb.Conn, setup *xproto.SetupInfo, log *zap.Logger) int {
	units := uint32(setup.MaximumRequestLength)
	if err := bigreq.Init(conn); err == nil {
		if reply, err := bigreq.Enable(conn).Reply(); err == nil {
			units = reply.MaximumRequestLength
		} else {
			log.Debug("big-requests enable failed", zap.Error(err))
		}
	} else {
		log.Debug("big-requests extension unavailable", zap.Error(err))
	}
	// the maximum request length is in 4-byte units; take half of it in
	// bytes
	return 2 * int(units)
}
