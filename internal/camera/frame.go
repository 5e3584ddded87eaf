package camera

// BytesPerPixel is the size of one BGR24 pixel.
const BytesPerPixel = 3

// Frame is one captured image: a raw BGR24 pixel buffer plus a sequence
// number assigned by the capture loop. Frames are treated as immutable
// once handed off; every consumer gets its own copy.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Seq    uint64
}

// NewFrame allocates a zeroed frame with the given geometry.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Data:   make([]byte, width*height*BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

// Size returns the expected byte length of the pixel buffer.
func (f *Frame) Size() int {
	return f.Width * f.Height * BytesPerPixel
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:   data,
		Width:  f.Width,
		Height: f.Height,
		Seq:    f.Seq,
	}
}
