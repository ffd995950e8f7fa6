package media

import (
	"context"
	"image"
)

// Frame is a single decoded video frame in 8-bit grayscale.
type Frame struct {
	Timestamp float64
	Image     *image.Gray
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// VideoHandle is the read-only view of a recording consumed by analysis.
type VideoHandle interface {
	Path() string
	Duration() float64
	FrameAt(ctx context.Context, timestamp float64) (*Frame, error)
	Close() error
}
