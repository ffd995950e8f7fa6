package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"matchreel/internal/media/ffprobe"
	"matchreel/internal/services"
)

// Options controls frame extraction.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	Width         int
	Height        int
}

// Video is a VideoHandle backed by ffmpeg frame extraction.
type Video struct {
	path     string
	duration float64
	fps      float64
	hasAudio bool
	ffmpeg   string
	width    int
	height   int
}

// Open probes path and returns a handle that extracts frames scaled to
// opts.Width x opts.Height.
func Open(ctx context.Context, path string, opts Options) (*Video, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "analyzing", "open video", "empty video path", nil)
	}
	probe, err := ffprobe.Inspect(ctx, opts.FFprobeBinary, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "analyzing", "probe video", "ffprobe failed", err)
	}
	if _, ok := probe.VideoStream(); !ok {
		return nil, services.Wrap(services.ErrValidation, "analyzing", "probe video", "input has no video stream", nil)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "analyzing", "probe video", "input duration unknown", nil)
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 160
	}
	if height <= 0 {
		height = 90
	}
	binary := strings.TrimSpace(opts.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Video{
		path:     path,
		duration: duration,
		fps:      probe.FrameRate(),
		hasAudio: probe.HasAudio(),
		ffmpeg:   binary,
		width:    width,
		height:   height,
	}, nil
}

// Path implements VideoHandle.
func (v *Video) Path() string { return v.path }

// Duration implements VideoHandle.
func (v *Video) Duration() float64 { return v.duration }

// FrameRate returns the probed source frame rate.
func (v *Video) FrameRate() float64 { return v.fps }

// HasAudio reports whether the source carries an audio stream.
func (v *Video) HasAudio() bool { return v.hasAudio }

// Close implements VideoHandle. Frame extraction holds no open resources.
func (v *Video) Close() error { return nil }

// FrameAt seeks to timestamp and decodes one grayscale frame.
func (v *Video) FrameAt(ctx context.Context, timestamp float64) (*Frame, error) {
	if timestamp < 0 || timestamp > v.duration {
		return nil, fmt.Errorf("frame at %.2fs: outside video duration %.2fs", timestamp, v.duration)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", v.path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d,format=gray", v.width, v.height),
		"-f", "rawvideo",
		"-",
	}
	cmd := exec.CommandContext(ctx, v.ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %.2fs: %w: %s", timestamp, err, strings.TrimSpace(stderr.String()))
	}
	want := v.width * v.height
	if stdout.Len() < want {
		return nil, errors.New("ffmpeg returned a short frame")
	}
	img := image.NewGray(image.Rect(0, 0, v.width, v.height))
	copy(img.Pix, stdout.Bytes()[:want])
	return &Frame{Timestamp: timestamp, Image: img}, nil
}
