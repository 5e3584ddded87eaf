package encoders

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/cattern/rovercam/internal/camera"
)

// DefaultJPEGQuality matches the streaming default.
const DefaultJPEGQuality = 80

// EncodeJPEG encodes a BGR24 frame as JPEG. Quality outside 1-100 falls
// back to the default.
func EncodeJPEG(frame *camera.Frame, quality int) ([]byte, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if expected := frame.Width * frame.Height * camera.BytesPerPixel; len(frame.Data) != expected {
		return nil, fmt.Errorf("frame data is %d bytes, want %d for %dx%d",
			len(frame.Data), expected, frame.Width, frame.Height)
	}
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	img := bgrToRGBA(frame)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

// bgrToRGBA converts packed BGR24 into the RGBA layout the stdlib
// encoder consumes.
func bgrToRGBA(frame *camera.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	src := frame.Data
	dst := img.Pix
	for si, di := 0, 0; si+2 < len(src); si, di = si+3, di+4 {
		dst[di] = src[si+2]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si]
		dst[di+3] = 0xFF
	}
	return img
}
