// Package ffprobe runs ffprobe against match recordings and decodes the JSON
// stream/format report.
//
// media.Open uses it to learn the duration, frame rate and dimensions of the
// input before frames are sampled; the assembler uses it to measure the clips
// it writes.
package ffprobe
