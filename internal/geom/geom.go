// Package geom maps pointer coordinates between the viewer window's pixel
// space and the host screen's native pixel space.
package geom

import "math"

// Rect is a window or screen rectangle in desktop coordinates.
type Rect struct {
	X, Y, W, H int
}

// Dims is a width/height pair, either a decoded-frame size or a native
// screen size.
type Dims struct {
	W, H int
}

// ToFrame maps a pointer position in desktop coordinates to a position in
// the most recently decoded frame's coordinate space. ok is false when the
// pointer falls outside window, or when any dimension is degenerate; the
// caller must drop the event in that case.
func ToFrame(px, py int, win Rect, frame Dims) (fx, fy int, ok bool) {
	if win.W <= 0 || win.H <= 0 || frame.W <= 0 || frame.H <= 0 {
		return 0, 0, false
	}

	rx := px - win.X
	ry := py - win.Y
	if rx < 0 || rx >= win.W || ry < 0 || ry >= win.H {
		return 0, 0, false
	}

	fx = roundInt(float64(rx) * float64(frame.W) / float64(win.W))
	fy = roundInt(float64(ry) * float64(frame.H) / float64(win.H))
	return fx, fy, true
}

// ToScreen maps a point in the decoded-frame's coordinate space to the
// host's native screen coordinate space. ok is false when frame or screen
// has a degenerate dimension.
func ToScreen(vx, vy int, frame, screen Dims) (sx, sy int, ok bool) {
	if frame.W <= 0 || frame.H <= 0 || screen.W <= 0 || screen.H <= 0 {
		return 0, 0, false
	}

	sx = roundInt(float64(vx) * float64(screen.W) / float64(frame.W))
	sy = roundInt(float64(vy) * float64(screen.H) / float64(frame.H))
	return sx, sy, true
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
