package geom

import "testing"

func TestToFrameInsideWindow(t *testing.T) {
	win := Rect{X: 0, Y: 0, W: 800, H: 600}
	frame := Dims{W: 1536, H: 864}

	fx, fy, ok := ToFrame(100, 50, win, frame)
	if !ok {
		t.Fatal("expected point inside window to be accepted")
	}
	if fx != 192 || fy != 72 {
		t.Fatalf("got (%d,%d), want (192,72)", fx, fy)
	}
}

func TestToFrameOutsideWindowDropped(t *testing.T) {
	win := Rect{X: 0, Y: 0, W: 800, H: 600}
	frame := Dims{W: 1536, H: 864}

	if _, _, ok := ToFrame(900, 50, win, frame); ok {
		t.Fatal("expected point outside window to be dropped")
	}
	if _, _, ok := ToFrame(100, -5, win, frame); ok {
		t.Fatal("expected negative relative coordinate to be dropped")
	}
}

func TestToFrameDegenerateDimsDropped(t *testing.T) {
	win := Rect{X: 0, Y: 0, W: 0, H: 600}
	frame := Dims{W: 1536, H: 864}
	if _, _, ok := ToFrame(10, 10, win, frame); ok {
		t.Fatal("expected zero window width to be dropped")
	}
}

func TestToScreenMapping(t *testing.T) {
	// E3: frame=(1536,864) from screen=(1920,1080), scale=0.8.
	screen := Dims{W: 1920, H: 1080}
	frame := Dims{W: 1536, H: 864}

	sx, sy, ok := ToScreen(192, 72, frame, screen)
	if !ok {
		t.Fatal("expected mapping to succeed")
	}
	if sx != 240 || sy != 90 {
		t.Fatalf("got (%d,%d), want (240,90)", sx, sy)
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	win := Rect{X: 10, Y: 20, W: 800, H: 600}
	frame := Dims{W: 1536, H: 864}
	screen := Dims{W: 1920, H: 1080}

	for px := win.X; px < win.X+win.W; px += 37 {
		for py := win.Y; py < win.Y+win.H; py += 41 {
			fx, fy, ok := ToFrame(px, py, win, frame)
			if !ok {
				t.Fatalf("ToFrame(%d,%d) unexpectedly dropped", px, py)
			}
			sx, sy, ok := ToScreen(fx, fy, frame, screen)
			if !ok {
				t.Fatalf("ToScreen(%d,%d) unexpectedly dropped", fx, fy)
			}

			wantSx := int(float64(px-win.X) * float64(screen.W) / float64(win.W))
			wantSy := int(float64(py-win.Y) * float64(screen.H) / float64(win.H))
			if diff := sx - wantSx; diff < -1 || diff > 1 {
				t.Fatalf("sx=%d too far from expected %d", sx, wantSx)
			}
			if diff := sy - wantSy; diff < -1 || diff > 1 {
				t.Fatalf("sy=%d too far from expected %d", sy, wantSy)
			}
		}
	}
}

func TestToScreenDegenerateFrameDropped(t *testing.T) {
	if _, _, ok := ToScreen(1, 1, Dims{W: 0, H: 10}, Dims{W: 100, H: 100}); ok {
		t.Fatal("expected zero frame width to be dropped")
	}
}
