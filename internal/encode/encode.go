// Package encode implements the frame encoder (C4): downscale by a
// configured factor, then JPEG-encode at a configured quality. The JPEG
// codec itself is named by spec §1 as an external collaborator; this
// package calls stdlib image/jpeg directly and defines no interface for
// substituting another codec (no ecosystem JPEG codec in the retrieval
// pack improves on it for this use).
package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/yawning/relaydesk/internal/capture"
)

// Options controls the encode pipeline for one session.
type Options struct {
	// Scale is the downscale factor applied to both width and height,
	// in (0,1]. A value of 1 (or <= 0) disables downscaling.
	Scale float64
	// Quality is the JPEG encoder quality, 1-100.
	Quality int
}

// ScaledDims returns the output dimensions for a native (sw, sh) frame
// under scale, rounded to the nearest integer, per spec §4.3.
func ScaledDims(sw, sh int, scale float64) (w, h int) {
	if scale <= 0 || scale == 1 {
		return sw, sh
	}
	w = roundPositive(float64(sw) * scale)
	h = roundPositive(float64(sh) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Encode downscales frame (if opts.Scale != 1) with an area-averaging
// filter and JPEG-encodes the result at opts.Quality. A nil return with a
// non-nil error means the caller should skip this tick rather than
// propagate a fatal error (spec §4.3, §7 "Codec").
func Encode(frame *capture.Frame, opts Options) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("encode: no frame")
	}

	img := image.Image(frame.Image)
	if opts.Scale > 0 && opts.Scale != 1 {
		w, h := ScaledDims(frame.W, frame.H, opts.Scale)
		img = downscaleAreaAverage(frame.Image, w, h)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode: jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode JPEG-decodes payload. A decode failure is a Codec error (spec §7)
// the viewer should skip, not propagate.
func Decode(payload []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("encode: jpeg decode failed: %w", err)
	}
	return img, nil
}

// downscaleAreaAverage resizes src to (w, h) by averaging the block of
// source pixels each destination pixel covers, the filter spec §4.3 calls
// for (as opposed to nearest-neighbor or bilinear).
func downscaleAreaAverage(src *image.RGBA, w, h int) *image.RGBA {
	bounds := src.Bounds()
	sw, sh := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	for dy := 0; dy < h; dy++ {
		srcY0 := dy * sh / h
		srcY1 := (dy + 1) * sh / h
		if srcY1 <= srcY0 {
			srcY1 = srcY0 + 1
		}
		for dx := 0; dx < w; dx++ {
			srcX0 := dx * sw / w
			srcX1 := (dx + 1) * sw / w
			if srcX1 <= srcX0 {
				srcX1 = srcX0 + 1
			}

			var rSum, gSum, bSum, aSum, count uint64
			for y := srcY0; y < srcY1 && y < sh; y++ {
				for x := srcX0; x < srcX1 && x < sw; x++ {
					r, g, b, a := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					rSum += uint64(r)
					gSum += uint64(g)
					bSum += uint64(b)
					aSum += uint64(a)
					count++
				}
			}
			if count == 0 {
				count = 1
			}
			dst.Set(dx, dy, color.RGBA64{
				R: uint16(rSum / count),
				G: uint16(gSum / count),
				B: uint16(bSum / count),
				A: uint16(aSum / count),
			})
		}
	}
	return dst
}

func roundPositive(v float64) int {
	return int(v + 0.5)
}
