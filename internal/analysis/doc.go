// Package analysis implements the Scene Analyzer: it scans a match recording
// alongside the parsed note timeline and produces ranked highlight candidates.
//
// An Analyzer is created per job and owns its frame score cache and
// previous-frame buffers; nothing is shared across jobs. Analyze runs four
// passes concurrently against the same read-only media.VideoHandle:
//
//   - notes: one candidate per note action, confirmed (and promoted to
//     "merged") when fused frame scoring finds activity inside its window
//   - visual: frames sampled at analysis.visual_sample_rate, each scored by
//     the detector registry and fused with the configured weight table
//   - motion: coarse frame differencing flagging sustained activity
//   - audio: pluggable; the default pass returns nothing
//
// Visual and motion passes skip seconds within analysis.note_buffer_seconds
// of any note. A frame is a highlight only when the fused confidence exceeds
// analysis.frame_confidence and at least analysis.min_significant_detectors
// detectors cross their own threshold. Candidates are then merged by
// Deduplicate and ordered by Rank.
package analysis
