package hostsvc

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yawning/relaydesk/internal/encode"
	"github.com/yawning/relaydesk/internal/wire"
)

// runPacer is the capture pacer loop (spec §4.4): timed capture, encode,
// seal, send, with rate pacing and no catch-up bursts. A rate.Limiter with
// burst 1 gives exactly that: at most one token is ever banked, so after a
// tick that ran long because the send blocked, the next Wait returns at
// once and the ticks missed during the stall are dropped rather than
// replayed as a burst. The loop returns once Stop has cleared the running
// flag, checked after every Wait.
func (s *Server) runPacer(ctx context.Context, conn net.Conn, codec *wire.Codec, log *logrus.Entry) error {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.FPS), 1)
	opts := encode.Options{Scale: s.cfg.Scale, Quality: s.cfg.JPEGQuality}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if !s.isRunning() {
			return nil
		}

		frame, err := s.capturer.Capture()
		if err != nil {
			log.WithError(err).Debug("capture failed, skipping tick")
			continue
		}

		payload, err := encode.Encode(frame, opts)
		if err != nil {
			log.WithError(err).Debug("encode failed, skipping tick")
			continue
		}

		if err := codec.SendSealed(conn, payload, wire.AADVideo); err != nil {
			log.WithError(err).Warn("video send failed, ending session")
			return err
		}
	}
}
