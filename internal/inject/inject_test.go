package inject

import "testing"

func TestRecordingIgnoresUnknownKeyNames(t *testing.T) {
	r := NewRecording()
	r.PressKey("totally-bogus")
	r.ReleaseKey("")
	if len(r.Keys) != 0 {
		t.Fatalf("expected unknown key names to be ignored, got %v", r.Keys)
	}

	r.PressKey("a")
	r.ReleaseKey("a")
	if len(r.Keys) != 2 {
		t.Fatalf("expected 2 recorded key events, got %d", len(r.Keys))
	}
}

func TestRecordingTracksButtonsAndMoves(t *testing.T) {
	r := NewRecording()
	r.MoveCursor(10, 20)
	r.PressButton("left")
	r.ReleaseButton("left")

	if len(r.Moves) != 1 || r.Moves[0] != (Move{X: 10, Y: 20}) {
		t.Fatalf("unexpected moves: %v", r.Moves)
	}
	if len(r.Buttons) != 2 || r.Buttons[0].Pressed != true || r.Buttons[1].Pressed != false {
		t.Fatalf("unexpected button events: %v", r.Buttons)
	}
}
