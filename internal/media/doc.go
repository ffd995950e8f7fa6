// Package media exposes match recordings to the Scene Analyzer as a read-only
// VideoHandle that yields downscaled grayscale frames at arbitrary timestamps.
//
// Open probes the file with ffprobe and extracts frames on demand with ffmpeg.
// Handles are safe for concurrent use so analysis passes can share one.
package media
