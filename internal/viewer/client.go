// Package viewer implements the viewer client (C7): it connects the
// control socket then the video socket (spec §6, connection order is a
// protocol requirement), decodes frames, and emits input events, following
// the teacher's per-session goroutine-pair shape (video/control) from
// obfs4proxy.go's copyLoop.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yawning/relaydesk/internal/config"
	"github.com/yawning/relaydesk/internal/control"
	"github.com/yawning/relaydesk/internal/encode"
	"github.com/yawning/relaydesk/internal/geom"
	"github.com/yawning/relaydesk/internal/wire"
)

// ConnectTimeout bounds how long Connect waits for each socket (spec §5).
const ConnectTimeout = 10 * time.Second

// Display receives decoded frames from the video task. The GUI front end
// that actually paints them is out of scope (spec §1); this is the narrow
// interface the core pushes images through.
type Display interface {
	ShowFrame(img image.Image)
}

// Client is one viewer session: control socket, video socket, and the
// input state (window rect, decoded-frame dims, pressed keys) needed to
// translate local UI events into control-channel messages.
type Client struct {
	cfg config.SessionConfig
	key []byte
	log *logrus.Entry

	display Display

	videoConn   net.Conn
	controlConn net.Conn
	codec       *wire.Codec

	resolver     Resolver
	hostName     string
	preferPublic bool

	mu         sync.Mutex
	windowRect geom.Rect
	frameDims  geom.Dims

	pressedMu sync.Mutex
	pressed   map[string]bool
}

// New builds a Client. Connect must be called before Run.
func New(cfg config.SessionConfig, key []byte, display Display, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:     cfg,
		key:     key,
		display: display,
		log:     log.WithField("component", "viewer"),
		pressed: map[string]bool{},
	}
}

// Connect dials the control socket, then the video socket, per the
// protocol's mandated connection order (spec §6).
func (c *Client) Connect(ctx context.Context) error {
	sessionID := uuid.New().String()
	c.log = c.log.WithField("session", sessionID)

	videoAddr, controlAddr, err := c.resolveAddrs()
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: ConnectTimeout}

	controlConn, err := dialer.DialContext(ctx, "tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("viewer: connecting control socket: %w", err)
	}
	videoConn, err := dialer.DialContext(ctx, "tcp", videoAddr)
	if err != nil {
		controlConn.Close()
		return fmt.Errorf("viewer: connecting video socket: %w", err)
	}

	codec, err := wire.NewCodec(c.key, c.cfg.MaxFrameBytes)
	if err != nil {
		controlConn.Close()
		videoConn.Close()
		return err
	}

	c.controlConn = controlConn
	c.videoConn = videoConn
	c.codec = codec
	return nil
}

// resolveAddrs substitutes a resolver-provided IP for the configured
// video/control hosts when SetResolver was called, keeping the configured
// ports (spec §6: the core consumes a resolver callback, it never parses
// the hosts-directory CSV itself).
func (c *Client) resolveAddrs() (videoAddr, controlAddr string, err error) {
	if c.resolver == nil || c.hostName == "" {
		return c.cfg.VideoAddr, c.cfg.ControlAddr, nil
	}

	ip, ok := c.resolver.Resolve(c.hostName, c.preferPublic)
	if !ok {
		return "", "", fmt.Errorf("viewer: resolver has no address for %q", c.hostName)
	}

	_, videoPort, err := net.SplitHostPort(c.cfg.VideoAddr)
	if err != nil {
		return "", "", fmt.Errorf("viewer: parsing configured video_addr: %w", err)
	}
	_, controlPort, err := net.SplitHostPort(c.cfg.ControlAddr)
	if err != nil {
		return "", "", fmt.Errorf("viewer: parsing configured control_addr: %w", err)
	}
	return net.JoinHostPort(ip, videoPort), net.JoinHostPort(ip, controlPort), nil
}

// Run drives the video and control receive loops until the session ends
// or ctx is canceled, then closes both sockets (spec §4.7 "Teardown").
func (c *Client) Run(ctx context.Context) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error {
		defer cancel()
		return c.runVideoTask(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.runControlTask(gctx)
	})

	go func() {
		<-gctx.Done()
		c.Stop()
	}()

	err := g.Wait()
	c.resetPressedKeys()
	return err
}

// Stop shuts down both sockets for read and write, so any pending RecvOpen
// returns and both tasks exit (spec §4.7).
func (c *Client) Stop() {
	if c.videoConn != nil {
		c.videoConn.Close()
	}
	if c.controlConn != nil {
		c.controlConn.Close()
	}
}

func (c *Client) runVideoTask(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		payload, err := c.codec.RecvOpen(c.videoConn, wire.AADVideo)
		if err != nil {
			return classifyClientError(err, c.log)
		}

		img, err := encode.Decode(payload)
		if err != nil {
			c.log.WithError(err).Debug("jpeg decode failed, skipping frame")
			continue
		}

		bounds := img.Bounds()
		c.mu.Lock()
		c.frameDims = geom.Dims{W: bounds.Dx(), H: bounds.Dy()}
		c.mu.Unlock()

		if c.display != nil {
			c.display.ShowFrame(img)
		}
	}
}

func (c *Client) runControlTask(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := c.codec.RecvOpen(c.controlConn, wire.AADControl)
		if err != nil {
			return classifyClientError(err, c.log)
		}

		msg, err := control.Decode(raw)
		if err != nil {
			c.log.WithError(err).Warn("malformed control frame from host, ignoring")
			continue
		}

		switch m := msg.(type) {
		case control.FileStart:
			if err := c.receiveFile(m); err != nil {
				c.log.WithError(err).Warn("inbound file transfer failed")
			}
		default:
			c.log.WithField("type", fmt.Sprintf("%T", m)).Debug("unhandled host-initiated control message")
		}
	}
}

// SetWindowRect updates the viewer window's screen-coordinate rectangle;
// called from the UI thread whenever the window moves or resizes (spec
// §3, §5 "Shared state").
func (c *Client) SetWindowRect(r geom.Rect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windowRect = r
}

// SendMouseMove maps a desktop-coordinate pointer position into viewer-
// frame coordinates via C8 and emits mouse_move, dropping events outside
// the video rectangle (spec §4.7, §4.8).
func (c *Client) SendMouseMove(px, py int) error {
	c.mu.Lock()
	win := c.windowRect
	frame := c.frameDims
	c.mu.Unlock()

	fx, fy, ok := geom.ToFrame(px, py, win, frame)
	if !ok {
		return nil
	}
	return c.sendJSON(control.MouseMove{X: fx, Y: fy})
}

func (c *Client) SendMouseDown(button string) error {
	return c.sendJSON(control.MouseDown{Button: button})
}

func (c *Client) SendMouseUp(button string) error {
	return c.sendJSON(control.MouseUp{Button: button})
}

// SendKeyDown de-duplicates against the pressed-keys set so OS auto-repeat
// does not flood the channel (spec §3, §4.7, property 7).
func (c *Client) SendKeyDown(name string) error {
	c.pressedMu.Lock()
	if c.pressed[name] {
		c.pressedMu.Unlock()
		return nil
	}
	c.pressed[name] = true
	c.pressedMu.Unlock()

	return c.sendJSON(control.KeyDown{Name: name})
}

func (c *Client) SendKeyUp(name string) error {
	c.pressedMu.Lock()
	delete(c.pressed, name)
	c.pressedMu.Unlock()

	return c.sendJSON(control.KeyUp{Name: name})
}

func (c *Client) resetPressedKeys() {
	c.pressedMu.Lock()
	c.pressed = map[string]bool{}
	c.pressedMu.Unlock()
}

func (c *Client) sendJSON(msg control.Msg) error {
	raw, err := control.Encode(msg)
	if err != nil {
		return err
	}
	return c.codec.SendSealed(c.controlConn, raw, wire.AADControl)
}

func classifyClientError(err error, log *logrus.Entry) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	var authErr *wire.AuthError
	if errors.As(err, &authErr) {
		log.WithError(err).Error("authentication failure, closing session")
		return err
	}
	return err
}
