// Package capture defines the screen-capture collaborator (C3). The actual
// platform-specific screen-grab primitive is deliberately out of scope
// (spec §1): this package fixes the narrow interface the rest of the
// pipeline depends on, plus a synthetic implementation used in tests and as
// a fallback when no platform capturer is wired in.
package capture

import (
	"image"
	"sync"
)

// Frame is one captured framebuffer: RGBA pixels, native dimensions.
type Frame struct {
	Image *image.RGBA
	W, H  int
}

// Capturer grabs the current primary-monitor framebuffer. Implementations
// are provided by platform-specific code outside this module; Capture is
// called once per pacer tick and must return quickly.
type Capturer interface {
	// Capture returns the current frame, or an error if the grab failed.
	// A capture failure is not fatal to the pipeline: the caller skips
	// that tick (spec §4.3).
	Capture() (*Frame, error)

	// Dims reports the native screen dimensions established at capture
	// start; it does not change mid-session (spec §3).
	Dims() (w, h int)
}

// Synthetic is a Capturer that renders a deterministic test pattern. It
// exists so the capture→encode→seal→send pipeline can be exercised and
// tested without a real display, the same role a headless framebuffer
// plays in integration tests for GUI-adjacent pipelines.
type Synthetic struct {
	mu       sync.Mutex
	w, h     int
	tick     int
	failNext bool
}

// NewSynthetic creates a Synthetic capturer reporting native dimensions
// (w, h).
func NewSynthetic(w, h int) *Synthetic {
	return &Synthetic{w: w, h: h}
}

// FailNextCapture makes the next Capture call return an error, to exercise
// the "skip that frame" path.
func (s *Synthetic) FailNextCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *Synthetic) Capture() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext {
		s.failNext = false
		return nil, errCaptureFailed
	}

	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	// Paint a gradient (red along x, green along y) offset by tick so
	// successive captures are distinguishable in tests.
	shade := uint8(s.tick % 256)
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			img.Set(x, y, colorAt(x, y, shade))
		}
	}
	s.tick++

	return &Frame{Image: img, W: s.w, H: s.h}, nil
}

func (s *Synthetic) Dims() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func colorAt(x, y int, shade uint8) colorRGBA {
	return colorRGBA{R: uint8(x) + shade, G: uint8(y) + shade, B: shade, A: 0xff}
}

type colorRGBA struct {
	R, G, B, A uint8
}

func (c colorRGBA) RGBA() (r, g, b, a uint32) {
	return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101, uint32(c.A) * 0x101
}

var errCaptureFailed = captureError("synthetic capture failed")

type captureError string

func (e captureError) Error() string { return string(e) }
