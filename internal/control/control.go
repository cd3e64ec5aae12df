// Package control defines the tagged-variant control-channel message
// vocabulary (spec §9: "Dynamic dispatch on control-message type" is
// replaced here by an exhaustively-handled Go sum type) and its JSON
// envelope encoding.
package control

import (
	"encoding/json"
	"fmt"
)

// MsgType is the wire discriminant carried in every control envelope.
type MsgType string

const (
	TypeMouseMove MsgType = "mouse_move"
	TypeMouseDown MsgType = "mouse_down"
	TypeMouseUp   MsgType = "mouse_up"
	TypeKeyDown   MsgType = "key_down"
	TypeKeyUp     MsgType = "key_up"
	TypeFileStart MsgType = "file_start"
	TypeFileEnd   MsgType = "file_end"
)

// ButtonLeft and ButtonRight are the only recognized mouse_down/mouse_up
// values.
const (
	ButtonLeft  = "left"
	ButtonRight = "right"
)

// Msg is implemented by every concrete control message. The set is closed;
// callers type-switch exhaustively rather than adding new implementations
// outside this package.
type Msg interface {
	msgType() MsgType
}

// MouseMove moves the host cursor to (X, Y) in viewer-frame coordinates.
// Its wire value is the bare two-element tuple spec §3 documents
// (`(x:int, y:int)`), not an object, so it carries its own
// MarshalJSON/UnmarshalJSON rather than relying on struct tags.
type MouseMove struct {
	X int
	Y int
}

func (m MouseMove) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{m.X, m.Y})
}

func (m *MouseMove) UnmarshalJSON(data []byte) error {
	var xy [2]int
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	m.X, m.Y = xy[0], xy[1]
	return nil
}

// MouseDown presses Button ("left" or "right"). Its wire value is the bare
// string spec §3 documents, not an object.
type MouseDown struct {
	Button string
}

func (m MouseDown) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Button)
}

func (m *MouseDown) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &m.Button)
}

// MouseUp releases Button. Same bare-string wire value as MouseDown.
type MouseUp struct {
	Button string
}

func (m MouseUp) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Button)
}

func (m *MouseUp) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &m.Button)
}

// KeyDown presses the symbolic key Name. Its wire value is the bare
// symbolic key name string spec §3 documents, not an object.
type KeyDown struct {
	Name string
}

func (k KeyDown) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Name)
}

func (k *KeyDown) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &k.Name)
}

// KeyUp releases the symbolic key Name. Same bare-string wire value as
// KeyDown.
type KeyUp struct {
	Name string
}

func (k KeyUp) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Name)
}

func (k *KeyUp) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &k.Name)
}

// FileStart begins a file transfer of Size bytes named Name.
type FileStart struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// FileEnd closes out the current file transfer. Name is informational; a
// mismatch against the FileStart that opened the transfer is logged, not
// fatal.
type FileEnd struct {
	Name string `json:"name"`
}

func (MouseMove) msgType() MsgType { return TypeMouseMove }
func (MouseDown) msgType() MsgType { return TypeMouseDown }
func (MouseUp) msgType() MsgType   { return TypeMouseUp }
func (KeyDown) msgType() MsgType   { return TypeKeyDown }
func (KeyUp) msgType() MsgType     { return TypeKeyUp }
func (FileStart) msgType() MsgType { return TypeFileStart }
func (FileEnd) msgType() MsgType   { return TypeFileEnd }

// envelope is the self-describing on-wire record: a discriminant plus the
// type-specific payload, per spec §3.
type envelope struct {
	Type  MsgType         `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Encode marshals msg into its wire envelope.
func Encode(msg Msg) ([]byte, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: msg.msgType(), Value: value})
}

// Decode parses a wire envelope into its concrete Msg, exhaustively
// dispatching on the type discriminant. An unrecognized type is reported as
// an error so callers can log-and-continue per spec §4.4 rather than
// tearing down the connection.
func Decode(raw []byte) (Msg, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("control: malformed envelope: %w", err)
	}

	switch env.Type {
	case TypeMouseMove:
		var m MouseMove
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeMouseDown:
		var m MouseDown
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeMouseUp:
		var m MouseUp
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeKeyDown:
		var m KeyDown
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeKeyUp:
		var m KeyUp
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeFileStart:
		var m FileStart
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeFileEnd:
		var m FileEnd
		if err := json.Unmarshal(env.Value, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("control: unknown message type %q", env.Type)
	}
}
