/*
 * Copyright (c) 2014, Yawning Angel <yawning at torproject dot org>
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions are met:
 *
 *  * Redistributions of source code must retain the above copyright notice,
 *    this list of conditions and the following disclaimer.
 *
 *  * Redistributions in binary form must reproduce the above copyright notice,
 *    this list of conditions and the following disclaimer in the documentation
 *    and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
 * AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
 * IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
 * ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
 * LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
 * CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
 * SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
 * INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
 * CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
 * ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

// Package wire implements the relay's link framing and cryptography.
//
// The wire format for a single sealed frame is:
//   uint32_t length (big endian, counts bytes after itself)
//   uint8_t[12]  nonce
//   uint8_t[]    AES-256-GCM ciphertext+tag
//
// The nonce is drawn fresh from a CSPRNG for every sealed frame; it is never
// derived from a counter. The birthday bound on 12-byte random nonces
// applies per key, across all connections: a single pre-shared key is good
// for roughly 2^32 sealed frames, and no rekeying is done. Associated data is a
// short fixed per-channel label ("video", "control", or "file") that is
// authenticated but not encrypted; a label mismatch surfaces as an
// AuthError indistinguishable from a corrupted ciphertext, by design.
package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yawning/relaydesk/csrand"
)

const (
	// KeyLength is the length in bytes of the pre-shared key.
	KeyLength = 32

	// NonceLength is the length in bytes of the per-frame AES-GCM nonce.
	NonceLength = 12

	// LengthFieldLength is the length in bytes of the big-endian frame
	// length prefix.
	LengthFieldLength = 4

	// DefaultMaxFrameBytes is the ceiling on a sealed frame's length,
	// applied before any read, so that a forged length prefix cannot be
	// used to exhaust memory.
	DefaultMaxFrameBytes = 16 * 1024 * 1024

	// Associated-data labels, one per logical channel.
	AADVideo   = "video"
	AADControl = "control"
	AADFile    = "file"
)

// AuthError indicates that a sealed frame failed to authenticate: a tag
// mismatch, an AAD mismatch, a truncated blob, or an oversized length
// prefix. The caller MUST NOT attempt to recover the connection; close it.
type AuthError struct {
	reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("wire: authentication failed: %s", e.reason)
}

func newAuthError(reason string) error {
	return &AuthError{reason: reason}
}

// ProtocolError indicates a stream that ended partway through a frame, or a
// message sequence that violates the protocol (as opposed to an
// authentication failure). Length prefixes that are too large or too small
// are reported as *AuthError, not ProtocolError.
type ProtocolError struct {
	reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error: %s", e.reason)
}

// NewProtocolError builds a ProtocolError for conditions detected above the
// wire package, such as a nested file_start (spec §4.5).
func NewProtocolError(reason string) error {
	return &ProtocolError{reason: reason}
}

// Codec seals and opens frames under a single 32-byte pre-shared key.
type Codec struct {
	key           [KeyLength]byte
	aead          cipher.AEAD
	maxFrameBytes int
}

// NewCodec builds a Codec from exactly KeyLength bytes of keying material.
// maxFrameBytes bounds the sealed-frame length, including the nonce and the
// GCM tag; zero selects DefaultMaxFrameBytes.
func NewCodec(key []byte, maxFrameBytes int) (*Codec, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("wire: invalid key length: %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}

	c := &Codec{aead: aead, maxFrameBytes: maxFrameBytes}
	copy(c.key[:], key)
	return c, nil
}

// Seal encrypts plaintext under aad and returns nonce‖ciphertext‖tag.
func (c *Codec) Seal(plaintext []byte, aad string) ([]byte, error) {
	nonce := make([]byte, NonceLength)
	if err := csrand.Bytes(nonce); err != nil {
		return nil, err
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, []byte(aad))
	return append(nonce, sealed...), nil
}

// Open splits blob into its nonce and ciphertext and authenticates it
// against aad, returning the recovered plaintext. Any truncation, tag
// mismatch, or AAD mismatch yields an *AuthError.
func (c *Codec) Open(blob []byte, aad string) ([]byte, error) {
	if len(blob) < NonceLength+c.aead.Overhead() {
		return nil, newAuthError("blob shorter than nonce+tag")
	}
	nonce := blob[:NonceLength]
	ciphertext := blob[NonceLength:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, newAuthError(err.Error())
	}
	return plaintext, nil
}

// SendSealed seals payload under aad and writes it to w as a length-prefixed
// frame, looping until the entire frame is written or an I/O error occurs.
func (c *Codec) SendSealed(w io.Writer, payload []byte, aad string) error {
	blob, err := c.Seal(payload, aad)
	if err != nil {
		return err
	}
	if len(blob) > c.maxFrameBytes {
		return newAuthError("sealed frame exceeds configured ceiling")
	}

	var lenBuf [LengthFieldLength]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(blob)))
	if err := writeFull(w, lenBuf[:]); err != nil {
		return err
	}
	return writeFull(w, blob)
}

// RecvOpen reads one length-prefixed sealed frame from r and opens it
// against aad. io.EOF is returned verbatim when the stream ends cleanly
// before any byte of a new frame is read; any other truncation is a
// ProtocolError; authentication failures are an *AuthError.
func (c *Codec) RecvOpen(r io.Reader, aad string) ([]byte, error) {
	var lenBuf [LengthFieldLength]byte
	if err := readFullOrEOF(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > c.maxFrameBytes {
		return nil, newAuthError("frame length prefix exceeds configured ceiling")
	}
	if n < NonceLength+uint32(c.aead.Overhead()) {
		return nil, newAuthError("frame length prefix too small for nonce+tag")
	}

	blob := make([]byte, n)
	if err := readFull(r, blob); err != nil {
		return nil, err
	}
	return c.Open(blob, aad)
}

// SendJSON JSON-encodes v and sends it as a control-channel sealed frame.
func (c *Codec) SendJSON(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendSealed(w, payload, AADControl)
}

// RecvJSON receives one control-channel sealed frame and JSON-decodes it
// into v.
func (c *Codec) RecvJSON(r io.Reader, v interface{}) error {
	payload, err := c.RecvOpen(r, AADControl)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return &ProtocolError{reason: "connection closed mid-frame"}
	}
	return err
}

// readFullOrEOF is like readFull but preserves a clean io.EOF when zero
// bytes of the next frame have been read yet, per the framing contract:
// only a partial read mid-frame is a protocol error.
func readFullOrEOF(r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF {
				if read == 0 {
					return io.EOF
				}
				return &ProtocolError{reason: "connection closed mid-frame"}
			}
			return err
		}
	}
	return nil
}
