package control

import (
	"encoding/json"
	"testing"
)

// TestEncodeWireShapes pins the envelope's value field to the literal
// shapes spec §3's control-message table documents: mouse_move is a bare
// (x,y) tuple, mouse_down/up and key_down/up are bare strings, and
// file_start/file_end remain objects.
func TestEncodeWireShapes(t *testing.T) {
	cases := []struct {
		msg  Msg
		want string
	}{
		{MouseMove{X: 100, Y: 50}, `{"type":"mouse_move","value":[100,50]}`},
		{MouseDown{Button: ButtonLeft}, `{"type":"mouse_down","value":"left"}`},
		{MouseUp{Button: ButtonRight}, `{"type":"mouse_up","value":"right"}`},
		{KeyDown{Name: "a"}, `{"type":"key_down","value":"a"}`},
		{KeyUp{Name: "f12"}, `{"type":"key_up","value":"f12"}`},
		{FileStart{Name: "a.bin", Size: 200000}, `{"type":"file_start","value":{"name":"a.bin","size":200000}}`},
		{FileEnd{Name: "a.bin"}, `{"type":"file_end","value":{"name":"a.bin"}}`},
	}

	for _, c := range cases {
		raw, err := Encode(c.msg)
		if err != nil {
			t.Fatalf("Encode(%#v) failed: %v", c.msg, err)
		}

		var gotCompact, wantCompact []byte
		if gotCompact, err = compactJSON(raw); err != nil {
			t.Fatal(err)
		}
		if wantCompact, err = compactJSON([]byte(c.want)); err != nil {
			t.Fatal(err)
		}
		if string(gotCompact) != string(wantCompact) {
			t.Fatalf("Encode(%#v) = %s, want %s", c.msg, gotCompact, wantCompact)
		}
	}
}

func compactJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Msg{
		MouseMove{X: 100, Y: 50},
		MouseDown{Button: ButtonLeft},
		MouseUp{Button: ButtonRight},
		KeyDown{Name: "a"},
		KeyUp{Name: "f12"},
		FileStart{Name: "a.bin", Size: 200000},
		FileEnd{Name: "a.bin"},
	}

	for _, want := range cases {
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%#v) failed: %v", want, err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, want)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"mouse_teleport","value":{}}`)); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestIsValidKeyName(t *testing.T) {
	valid := []string{"a", "Z", "1", "esc", "tab", "f1", "f24", "space", "delete"}
	for _, name := range valid {
		if !IsValidKeyName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}

	invalid := []string{"", "f0", "f25", "unknownkey", "ab"}
	for _, name := range invalid {
		if IsValidKeyName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
