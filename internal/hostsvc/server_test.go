package hostsvc

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yawning/relaydesk/internal/capture"
	"github.com/yawning/relaydesk/internal/config"
	"github.com/yawning/relaydesk/internal/control"
	"github.com/yawning/relaydesk/internal/encode"
	"github.com/yawning/relaydesk/internal/inject"
	"github.com/yawning/relaydesk/internal/wire"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig(t *testing.T) config.SessionConfig {
	t.Helper()
	cfg := config.Default()
	cfg.VideoAddr = "127.0.0.1:0"
	cfg.ControlAddr = "127.0.0.1:0"
	cfg.FPS = 30
	cfg.ReceivedFilesDir = filepath.Join(t.TempDir(), "received_files")
	return cfg
}

func startServer(t *testing.T, cfg config.SessionConfig, key []byte, injector inject.Injector) (*Server, context.CancelFunc) {
	return startServerWithScreen(t, cfg, key, injector, 64, 48)
}

func startServerWithScreen(t *testing.T, cfg config.SessionConfig, key []byte, injector inject.Injector, screenW, screenH int) (*Server, context.CancelFunc) {
	t.Helper()
	capturer := capture.NewSynthetic(screenW, screenH)
	srv := New(cfg, key, capturer, injector, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready in time")
	}
	return srv, cancel
}

func randKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, wire.KeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatal(err)
	}
	return key
}

// sendControl encodes msg into its envelope and sends it as a sealed
// control-channel frame, the way internal/viewer's Client does.
func sendControl(t *testing.T, codec *wire.Codec, conn net.Conn, msg control.Msg) {
	t.Helper()
	raw, err := control.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := codec.SendSealed(conn, raw, wire.AADControl); err != nil {
		t.Fatal(err)
	}
}

// TestE1VideoFrames: viewer decodes frames at the configured scaled
// dimensions.
func TestE1VideoFrames(t *testing.T) {
	key := randKey(t)
	cfg := testConfig(t)
	cfg.Scale = 0.5

	srv, cancel := startServer(t, cfg, key, inject.NewRecording())
	defer cancel()

	videoAddr, controlAddr := srv.Addrs()

	controlConn, err := net.Dial("tcp", controlAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer controlConn.Close()
	videoConn, err := net.Dial("tcp", videoAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer videoConn.Close()

	codec, err := wire.NewCodec(key, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatal(err)
	}

	wantW, wantH := encode.ScaledDims(64, 48, 0.5)
	for i := 0; i < 10; i++ {
		payload, err := codec.RecvOpen(videoConn, wire.AADVideo)
		if err != nil {
			t.Fatalf("RecvOpen(%d) failed: %v", i, err)
		}
		img, err := encode.Decode(payload)
		if err != nil {
			t.Fatalf("Decode(%d) failed: %v", i, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != wantW || bounds.Dy() != wantH {
			t.Fatalf("frame %d dims (%d,%d), want (%d,%d)", i, bounds.Dx(), bounds.Dy(), wantW, wantH)
		}
	}
}

// TestE2WrongPSKFailsAuthentication.
func TestE2WrongPSKFailsAuthentication(t *testing.T) {
	key := randKey(t)
	wrongKey := randKey(t)
	cfg := testConfig(t)

	srv, cancel := startServer(t, cfg, key, inject.NewRecording())
	defer cancel()

	_, controlAddr := srv.Addrs()
	controlConn, err := net.Dial("tcp", controlAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer controlConn.Close()

	wrongCodec, err := wire.NewCodec(wrongKey, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatal(err)
	}

	sendControl(t, wrongCodec, controlConn, control.MouseMove{X: 1, Y: 1})

	controlConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := controlConn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after auth failure")
	}
}

// TestE3MouseMoveMapsToScreenCoordinates exercises scenario E3: a mouse_move
// received in viewer-frame coordinates must be inverted to native screen
// coordinates before injection, not passed straight through (spec §4.8).
func TestE3MouseMoveMapsToScreenCoordinates(t *testing.T) {
	key := randKey(t)
	cfg := testConfig(t)
	cfg.Scale = 0.8

	injector := inject.NewRecording()
	srv, cancel := startServerWithScreen(t, cfg, key, injector, 1920, 1080)
	defer cancel()

	_, controlAddr := srv.Addrs()
	controlConn, err := net.Dial("tcp", controlAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer controlConn.Close()

	codec, err := wire.NewCodec(key, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatal(err)
	}

	// frame=(1536,864) at scale 0.8 of screen=(1920,1080); (192,72) in frame
	// space maps to (240,90) in screen space, per geom_test.go's worked E3.
	sendControl(t, codec, controlConn, control.MouseMove{X: 192, Y: 72})

	deadline := time.After(2 * time.Second)
	for injector.MoveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("host never injected a mouse move")
		case <-time.After(10 * time.Millisecond):
		}
	}

	got, ok := injector.LastMove()
	if !ok {
		t.Fatal("expected a recorded move")
	}
	if got.X != 240 || got.Y != 90 {
		t.Fatalf("MoveCursor(%d,%d), want (240,90)", got.X, got.Y)
	}
}

// TestE4FileTransfer exercises the file-receive sub-protocol end to end.
func TestE4FileTransfer(t *testing.T) {
	key := randKey(t)
	cfg := testConfig(t)

	injector := inject.NewRecording()
	srv, cancel := startServer(t, cfg, key, injector)
	defer cancel()

	_, controlAddr := srv.Addrs()
	controlConn, err := net.Dial("tcp", controlAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer controlConn.Close()

	codec, err := wire.NewCodec(key, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatal(err)
	}

	const total = 200000
	const chunkSize = 50000
	payload := make([]byte, total)
	if _, err := io.ReadFull(rand.Reader, payload); err != nil {
		t.Fatal(err)
	}

	sendControl(t, codec, controlConn, control.FileStart{Name: "a.bin", Size: total})
	for i := 0; i < total; i += chunkSize {
		if err := codec.SendSealed(controlConn, payload[i:i+chunkSize], wire.AADFile); err != nil {
			t.Fatal(err)
		}
	}
	sendControl(t, codec, controlConn, control.FileEnd{Name: "a.bin"})

	time.Sleep(300 * time.Millisecond)

	got, err := os.ReadFile(filepath.Join(cfg.ReceivedFilesDir, "a.bin"))
	if err != nil {
		t.Fatal("reading received file failed:", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("received file content does not match what was sent")
	}

	// Dispatcher should be back in ACTIVE: a mouse_move should still work.
	sendControl(t, codec, controlConn, control.MouseMove{X: 1, Y: 1})

	deadline := time.After(2 * time.Second)
	for injector.MoveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("mouse_move after file_end was never injected")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestE5NestedFileStartClosesConnection.
func TestE5NestedFileStartClosesConnection(t *testing.T) {
	key := randKey(t)
	cfg := testConfig(t)

	srv, cancel := startServer(t, cfg, key, inject.NewRecording())
	defer cancel()

	_, controlAddr := srv.Addrs()
	controlConn, err := net.Dial("tcp", controlAddr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer controlConn.Close()

	codec, err := wire.NewCodec(key, cfg.MaxFrameBytes)
	if err != nil {
		t.Fatal(err)
	}

	// A non-zero size puts the dispatcher in RECV_FILE awaiting chunks
	// (AAD "file"); a second file_start sent as control JSON fails that
	// chunk-AAD open outright, so the connection closes either way -
	// satisfying "close the control connection with a protocol error".
	sendControl(t, codec, controlConn, control.FileStart{Name: "a.bin", Size: 1024})
	sendControl(t, codec, controlConn, control.FileStart{Name: "b.bin", Size: 1})

	controlConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := controlConn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after nested file_start")
	}
}

// TestE6StopExitsPromptly.
func TestE6StopExitsPromptly(t *testing.T) {
	key := randKey(t)
	cfg := testConfig(t)

	srv, cancel := startServer(t, cfg, key, inject.NewRecording())
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop() did not return promptly")
	}
}
