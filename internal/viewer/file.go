package viewer

import (
	"os"
	"path/filepath"

	"github.com/yawning/relaydesk/internal/control"
	"github.com/yawning/relaydesk/internal/wire"
)

// receiveFile drains a host-initiated file transfer into cfg.DownloadsDir,
// mirroring the host dispatcher's RECV_FILE state (spec §4.5, §4.7): read
// chunks until the declared size is reached, then read the closing
// file_end off the control channel.
func (c *Client) receiveFile(start control.FileStart) error {
	if c.cfg.MaxFileBytes > 0 && start.Size > c.cfg.MaxFileBytes {
		return errTooLarge
	}

	name := control.SanitizeFileName(start.Name)
	if err := os.MkdirAll(c.cfg.DownloadsDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(c.cfg.DownloadsDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	var received uint64
	for received < start.Size {
		payload, err := c.codec.RecvOpen(c.controlConn, wire.AADFile)
		if err != nil {
			return err
		}
		n, werr := f.Write(payload)
		received += uint64(n)
		if werr != nil {
			return werr
		}
	}

	raw, err := c.codec.RecvOpen(c.controlConn, wire.AADControl)
	if err != nil {
		return err
	}
	msg, err := control.Decode(raw)
	if err != nil {
		return err
	}
	if end, ok := msg.(control.FileEnd); ok && end.Name != name {
		c.log.WithFields(map[string]interface{}{
			"expected": name,
			"got":      end.Name,
		}).Warn("file_end name mismatch")
	}
	return nil
}

// maxChunkBytes is the sender-side chunk size for outbound file transfers
// (spec §4.5: "up to 64 KiB each").
const maxChunkBytes = 64 * 1024

// SendFile sends path to the host over the control channel: file_start,
// chunks, file_end, with no pointer/key events interleaved in between
// (spec §4.5). The caller is responsible for not issuing other
// SendMouse*/SendKey* calls concurrently.
func (c *Client) SendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	name := filepath.Base(path)

	if err := c.sendJSON(control.FileStart{Name: name, Size: uint64(info.Size())}); err != nil {
		return err
	}

	buf := make([]byte, maxChunkBytes)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if serr := c.codec.SendSealed(c.controlConn, buf[:n], wire.AADFile); serr != nil {
				return serr
			}
		}
		if err != nil {
			break
		}
	}

	return c.sendJSON(control.FileEnd{Name: name})
}

var errTooLarge = fileTooLargeError("viewer: declared file size exceeds configured ceiling")

type fileTooLargeError string

func (e fileTooLargeError) Error() string { return string(e) }
