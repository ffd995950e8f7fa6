// Package mediatest provides deterministic in-memory videos for analysis tests.
package mediatest

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"matchreel/internal/media"
)

// Window marks [Start, End) seconds as high-activity.
type Window struct {
	Start float64
	End   float64
}

// Video renders flat gray frames except inside active windows, where every
// frame is independent noise seeded from its timestamp.
type Video struct {
	Length  float64
	Width   int
	Height  int
	Active  []Window
	FailAt  map[int64]bool
	fetches atomic.Int64
}

// NewVideo returns a synthetic video of the given length in seconds.
func NewVideo(length float64, active ...Window) *Video {
	return &Video{Length: length, Width: 64, Height: 36, Active: active}
}

// Path implements media.VideoHandle.
func (v *Video) Path() string { return "synthetic://match" }

// Duration implements media.VideoHandle.
func (v *Video) Duration() float64 { return v.Length }

// Close implements media.VideoHandle.
func (v *Video) Close() error { return nil }

// Fetches returns how many frames have been decoded.
func (v *Video) Fetches() int64 { return v.fetches.Load() }

// FrameAt implements media.VideoHandle.
func (v *Video) FrameAt(_ context.Context, ts float64) (*media.Frame, error) {
	v.fetches.Add(1)
	key := int64(math.Round(ts * 1000))
	if v.FailAt[key] {
		return nil, fmt.Errorf("synthetic decode failure at %.2fs", ts)
	}
	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
	if v.activeAt(ts) {
		rng := rand.New(rand.NewPCG(uint64(key), 0x9e3779b97f4a7c15))
		for i := range img.Pix {
			img.Pix[i] = uint8(rng.IntN(256))
		}
	} else {
		for i := range img.Pix {
			img.Pix[i] = 128
		}
	}
	return &media.Frame{Timestamp: ts, Image: img}, nil
}

func (v *Video) activeAt(ts float64) bool {
	for _, w := range v.Active {
		if ts >= w.Start && ts < w.End {
			return true
		}
	}
	return false
}
