package session

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/cattern/rovercam/internal/camera"
)

// resizeFrame scales a BGR24 frame to the target geometry. Frames
// already at the target size pass through untouched. The encoder's
// input geometry is fixed at spawn time, so every fed frame must match
// it even when the capture device changes mid-session.
func resizeFrame(f *camera.Frame, width, height int) *camera.Frame {
	if f.Width == width && f.Height == height {
		return f
	}

	src := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for si, di := 0, 0; si+2 < len(f.Data); si, di = si+3, di+4 {
		src.Pix[di] = f.Data[si+2]
		src.Pix[di+1] = f.Data[si+1]
		src.Pix[di+2] = f.Data[si]
		src.Pix[di+3] = 0xFF
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := camera.NewFrame(width, height)
	out.Seq = f.Seq
	for si, di := 0, 0; di+2 < len(out.Data); si, di = si+4, di+3 {
		out.Data[di] = dst.Pix[si+2]
		out.Data[di+1] = dst.Pix[si+1]
		out.Data[di+2] = dst.Pix[si]
	}
	return out
}
