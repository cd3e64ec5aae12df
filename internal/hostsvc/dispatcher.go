package hostsvc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yawning/relaydesk/internal/control"
	"github.com/yawning/relaydesk/internal/geom"
	"github.com/yawning/relaydesk/internal/wire"
)

// dispatcherState is the host control-connection state machine of spec
// §4.4: IDLE (not modeled here, the caller only enters once accepted) ->
// ACTIVE -> RECV_FILE -> ACTIVE, with disconnect/protocol-error ending the
// connection from any state.
type dispatcherState int

const (
	stateActive dispatcherState = iota
	stateRecvFile
)

// pressedState tracks every button and key this connection has pressed
// but not yet released, so the host can synthetically release them on
// disconnect (spec §3 "sanitation guarantee", §4.6).
type pressedState struct {
	buttons map[string]bool
	keys    map[string]bool
}

func newPressedState() *pressedState {
	return &pressedState{buttons: map[string]bool{}, keys: map[string]bool{}}
}

// runDispatcher repeatedly receives control-channel frames and dispatches
// them by state: JSON envelopes in stateActive, raw file chunks in
// stateRecvFile, distinguished by state rather than by content (spec §4.5).
// frameDims/screenDims are the session's fixed host capture state (spec §3),
// used to invert mouse_move from viewer-frame into native-screen
// coordinates before injection (spec §4.8).
func (s *Server) runDispatcher(ctx context.Context, conn net.Conn, codec *wire.Codec, log *logrus.Entry, frameDims, screenDims geom.Dims) error {
	pressed := newPressedState()
	defer s.releaseAllPressed(pressed, log)

	var state dispatcherState = stateActive
	var recv *fileReceiver

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		switch state {
		case stateActive:
			raw, err := codec.RecvOpen(conn, wire.AADControl)
			if err != nil {
				return classifyDispatchError(err, log)
			}

			msg, err := control.Decode(raw)
			if err != nil {
				log.WithError(err).Warn("malformed control message, ignoring")
				continue
			}

			switch m := msg.(type) {
			case control.MouseMove:
				if sx, sy, ok := geom.ToScreen(m.X, m.Y, frameDims, screenDims); ok {
					s.injector.MoveCursor(sx, sy)
				} else {
					log.Debug("mouse_move dropped: degenerate frame/screen dims")
				}
			case control.MouseDown:
				s.injector.PressButton(m.Button)
				pressed.buttons[m.Button] = true
			case control.MouseUp:
				s.injector.ReleaseButton(m.Button)
				delete(pressed.buttons, m.Button)
			case control.KeyDown:
				s.injector.PressKey(m.Name)
				pressed.keys[m.Name] = true
			case control.KeyUp:
				s.injector.ReleaseKey(m.Name)
				delete(pressed.keys, m.Name)
			case control.FileStart:
				r, err := newFileReceiver(s.cfg.ReceivedFilesDir, m.Name, m.Size, s.cfg.MaxFileBytes)
				if err != nil {
					log.WithError(err).Warn("failed to open file for receive")
					continue
				}
				recv = r
				state = stateRecvFile
			case control.FileEnd:
				log.Warn("file_end with no file_start in progress, ignoring")
			default:
				log.Warn("unrecognized control message, ignoring")
			}

		case stateRecvFile:
			// The declared size (from file_start) tells us, by state
			// alone, whether the next frame is another file chunk (AAD
			// "file") or the closing file_end (AAD "control") — no
			// trial-and-error decoding of the same bytes under two AADs
			// (spec §4.5: "distinguishes JSON vs chunk by state").
			if !recv.complete() {
				raw, err := codec.RecvOpen(conn, wire.AADFile)
				if err != nil {
					recv.close()
					return classifyDispatchError(err, log)
				}
				if err := recv.write(raw); err != nil {
					log.WithError(err).Warn("file write failed")
				}
				continue
			}

			raw, err := codec.RecvOpen(conn, wire.AADControl)
			if err != nil {
				recv.close()
				return classifyDispatchError(err, log)
			}
			msg, derr := control.Decode(raw)
			if derr != nil {
				log.WithError(derr).Warn("malformed frame awaiting file_end, ignoring")
				continue
			}
			switch m := msg.(type) {
			case control.FileEnd:
				if m.Name != recv.name {
					log.WithFields(logrus.Fields{
						"expected": recv.name,
						"got":      m.Name,
					}).Warn("file_end name mismatch")
				}
				recv.close()
				recv = nil
				state = stateActive
			case control.FileStart:
				recv.close()
				return wire.NewProtocolError("nested file_start while awaiting file_end")
			default:
				log.Warn("unexpected control message while awaiting file_end, ignoring")
			}
		}
	}
}

func (s *Server) releaseAllPressed(p *pressedState, log *logrus.Entry) {
	for button := range p.buttons {
		s.injector.ReleaseButton(button)
	}
	for key := range p.keys {
		s.injector.ReleaseKey(key)
	}
	if len(p.buttons) > 0 || len(p.keys) > 0 {
		log.WithFields(logrus.Fields{
			"buttons": len(p.buttons),
			"keys":    len(p.keys),
		}).Info("released stuck input on disconnect")
	}
}

// classifyDispatchError maps a wire-layer error to the dispatcher's
// propagation policy (spec §7): EOF/IO ends the session cleanly; auth and
// protocol errors are reported but still end the session (no recovery on
// the same connection).
func classifyDispatchError(err error, log *logrus.Entry) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	var authErr *wire.AuthError
	if errors.As(err, &authErr) {
		log.WithError(err).Error("authentication failure, closing connection")
		return err
	}
	var protoErr *wire.ProtocolError
	if errors.As(err, &protoErr) {
		log.WithError(err).Warn("protocol error, closing connection")
		return err
	}
	return err
}

// fileReceiver appends sealed-frame plaintexts to an open file until the
// declared size is reached (spec §4.5).
type fileReceiver struct {
	f        *os.File
	name     string
	size     uint64
	received uint64
}

func newFileReceiver(dir, rawName string, size, maxBytes uint64) (*fileReceiver, error) {
	if maxBytes > 0 && size > maxBytes {
		return nil, errors.New("hostsvc: declared file size exceeds configured ceiling")
	}
	name := control.SanitizeFileName(rawName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &fileReceiver{f: f, name: name, size: size}, nil
}

func (r *fileReceiver) write(chunk []byte) error {
	n, err := r.f.Write(chunk)
	r.received += uint64(n)
	return err
}

func (r *fileReceiver) complete() bool {
	return r.received >= r.size
}

func (r *fileReceiver) close() {
	r.f.Close()
}
