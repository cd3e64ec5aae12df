// Package hostsvc implements the host server (C5): the accept loops for
// the video and control TCP listeners, the capture pacer loop, and the
// control dispatcher, following the teacher's acceptLoop/handlerChan
// shape in obfs4-server/obfs4-server.go and obfs4proxy/obfs4proxy.go.
package hostsvc

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yawning/relaydesk/internal/capture"
	"github.com/yawning/relaydesk/internal/config"
	"github.com/yawning/relaydesk/internal/encode"
	"github.com/yawning/relaydesk/internal/geom"
	"github.com/yawning/relaydesk/internal/inject"
	"github.com/yawning/relaydesk/internal/wire"
)

// acceptPollInterval is how often an accept loop wakes up to check the
// stop flag, mirroring the teacher's ~1s accept timeout (spec §4.4, §5).
const acceptPollInterval = time.Second

// Server runs the host side of one relay deployment: it owns the two
// listeners and, at most one viewer session at a time, the capture pacer
// and control dispatcher for that session.
type Server struct {
	cfg      config.SessionConfig
	key      []byte
	capturer capture.Capturer
	injector inject.Injector
	log      *logrus.Entry

	running int32

	videoLn   net.Listener
	controlLn net.Listener
	ready     chan struct{}
}

// New builds a Server bound to no sockets yet; call Run to start accepting.
func New(cfg config.SessionConfig, key []byte, capturer capture.Capturer, injector inject.Injector, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:      cfg,
		key:      key,
		capturer: capturer,
		injector: injector,
		log:      log.WithField("component", "hostsvc"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the video and control listeners are bound, so tests
// and supervisors can wait for Run to be accepting before dialing in.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addrs returns the bound listener addresses; only valid after Ready is
// closed.
func (s *Server) Addrs() (video, control net.Addr) {
	return s.videoLn.Addr(), s.controlLn.Addr()
}

// Run binds the video and control listeners and repeatedly serves one
// viewer session at a time until ctx is canceled or Stop is called. It
// returns when the accept loop has fully drained (spec §4.4 "Shutdown").
func (s *Server) Run(ctx context.Context) error {
	videoLn, err := net.Listen("tcp", s.cfg.VideoAddr)
	if err != nil {
		return fmt.Errorf("hostsvc: binding video listener: %w", err)
	}
	defer videoLn.Close()

	controlLn, err := net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("hostsvc: binding control listener: %w", err)
	}
	defer controlLn.Close()

	s.videoLn = videoLn
	s.controlLn = controlLn
	atomic.StoreInt32(&s.running, 1)
	close(s.ready)

	s.log.WithFields(logrus.Fields{
		"video_addr":   videoLn.Addr(),
		"control_addr": controlLn.Addr(),
	}).Info("listening")

	for s.isRunning() && ctx.Err() == nil {
		if err := s.serveOneSession(ctx); err != nil {
			if !s.isRunning() {
				return nil
			}
			s.log.WithError(err).Warn("session ended")
		}
	}
	return nil
}

// Stop requests that the accept loops and any in-flight session exit at
// their next observation point (spec §4.4, §5 "Cancellation").
func (s *Server) Stop() {
	atomic.StoreInt32(&s.running, 0)
	if s.videoLn != nil {
		s.videoLn.Close()
	}
	if s.controlLn != nil {
		s.controlLn.Close()
	}
}

func (s *Server) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// serveOneSession accepts control then video, per the protocol-mandated
// connection order (spec §6), and runs the pacer and dispatcher until the
// session ends.
func (s *Server) serveOneSession(ctx context.Context) error {
	controlConn, err := s.acceptWithPoll(ctx, s.controlLn)
	if err != nil {
		return err
	}
	defer controlConn.Close()

	videoConn, err := s.acceptWithPoll(ctx, s.videoLn)
	if err != nil {
		return err
	}
	defer videoConn.Close()

	sessionID := uuid.New().String()
	log := s.log.WithField("session", sessionID)
	log.Info("session established")
	defer log.Info("session ended")

	codec, err := wire.NewCodec(s.key, s.cfg.MaxFrameBytes)
	if err != nil {
		return err
	}

	// Host capture state (spec §3): screen_dims is native and fixed for the
	// session; frame_dims is derived from it by the same scale factor the
	// pacer encodes at, so the dispatcher can invert mouse_move the way §4.8
	// requires without decoding a frame itself.
	screenW, screenH := s.capturer.Dims()
	screenDims := geom.Dims{W: screenW, H: screenH}
	frameW, frameH := encode.ScaledDims(screenW, screenH, s.cfg.Scale)
	frameDims := geom.Dims{W: frameW, H: frameH}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(sessCtx)
	g.Go(func() error {
		defer cancel()
		return s.runPacer(gctx, videoConn, codec, log)
	})
	g.Go(func() error {
		defer cancel()
		return s.runDispatcher(gctx, controlConn, codec, log, frameDims, screenDims)
	})

	return g.Wait()
}

// acceptWithPoll accepts a connection on ln, waking up every
// acceptPollInterval to observe ctx cancellation or Stop().
func (s *Server) acceptWithPoll(ctx context.Context, ln net.Listener) (net.Conn, error) {
	tcpLn, ok := ln.(*net.TCPListener)
	for {
		if ctx.Err() != nil || !s.isRunning() {
			return nil, ctx.Err()
		}
		if ok {
			_ = tcpLn.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, isNetErr := err.(net.Error); isNetErr && ne.Timeout() {
				continue
			}
			return nil, err
		}
		return conn, nil
	}
}
