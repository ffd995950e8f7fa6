// Package assembly defines the Video Assembler contract and its ffmpeg
// implementation.
//
// PlanWindows turns ranked highlights and manual cut overrides into the
// chronological clip windows to cut: automatic windows overlapping a manual
// cut are dropped, and every window is held to the configured minimum and
// maximum clip length. FFmpegAssembler stream-copies each window and
// concatenates them into a team compilation plus optional per-player reels.
package assembly
