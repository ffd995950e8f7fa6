package analysis

import (
	"context"
	"math"

	"matchreel/internal/logging"
	"matchreel/internal/media"
	"matchreel/internal/notes"
)

// span is a closed interval of seconds excluded from visual and motion scans.
type span struct {
	start float64
	end   float64
}

type spans []span

func noteSpans(timeline notes.Timeline, buffer float64) spans {
	out := make(spans, 0, len(timeline))
	for _, action := range timeline {
		out = append(out, span{start: action.Timestamp - buffer, end: action.Timestamp + buffer})
	}
	return out
}

func (s spans) contains(ts float64) bool {
	for _, sp := range s {
		if ts >= sp.start && ts <= sp.end {
			return true
		}
	}
	return false
}

// frameBuffer holds the last decoded frame of one pass so consecutive samples
// can be differenced without decoding twice.
type frameBuffer struct {
	frame *media.Frame
}

func (b *frameBuffer) reset() { b.frame = nil }

// previousFor returns the buffered frame when it sits exactly one step before
// ts, otherwise decodes it.
func (b *frameBuffer) previousFor(ctx context.Context, video media.VideoHandle, ts, step float64) *media.Frame {
	prevTS := ts - step
	if prevTS < 0 {
		return nil
	}
	if b.frame != nil && cacheKey(b.frame.Timestamp) == cacheKey(prevTS) {
		return b.frame
	}
	frame, err := video.FrameAt(ctx, prevTS)
	if err != nil {
		return nil
	}
	return frame
}

func stepTimestamps(start, end, step float64) []float64 {
	if step <= 0 || end <= start {
		return nil
	}
	first := math.Ceil(start/step-1e-9) * step
	var out []float64
	for i := 0; ; i++ {
		ts := first + float64(i)*step
		if ts >= end {
			break
		}
		out = append(out, math.Round(ts*1000)/1000)
	}
	return out
}

// scoreAt returns the fused score for ts, consulting the cache first. The
// previous frame is always the one visualStep earlier so cached scores are
// comparable no matter which pass computed them.
func (a *Analyzer) scoreAt(ctx context.Context, video media.VideoHandle, ts float64, buf *frameBuffer, stats *passStats) FrameScore {
	stats.sampled++
	if cached, ok := a.cache.get(ts); ok {
		return cached
	}
	frame, err := video.FrameAt(ctx, ts)
	if err != nil {
		stats.failed++
		a.logger.Debug("frame analysis failed; frame skipped",
			logging.Float64("timestamp", ts),
			logging.Error(err),
		)
		buf.reset()
		return FrameScore{Timestamp: ts, Failed: true}
	}
	sample := Sample{Timestamp: ts, Frame: frame, Previous: buf.previousFor(ctx, video, ts, a.visualStep())}
	buf.frame = frame
	score := a.fusion.Fuse(ts, a.registry.Run(sample))
	stats.detectorErrors += score.Errors
	a.cache.put(ts, score)
	return score
}

// progressEvery is how many visual samples pass between progress callbacks.
const progressEvery = 240

func (a *Analyzer) visualPass(ctx context.Context, video media.VideoHandle, skip spans) ([]Candidate, passStats, error) {
	var (
		stats passStats
		out   []Candidate
		buf   frameBuffer
	)
	duration := video.Duration()
	steps := stepTimestamps(0, duration, a.visualStep())
	for i, ts := range steps {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		if a.progress != nil && i%progressEvery == 0 {
			a.progress(float64(i) / float64(len(steps)))
		}
		if skip.contains(ts) {
			stats.skipped++
			buf.reset()
			continue
		}
		score := a.scoreAt(ctx, video, ts, &buf, &stats)
		if !score.Highlight {
			continue
		}
		label := Classify(score)
		c := Candidate{
			Start:      math.Max(0, ts-label.Before),
			End:        math.Min(duration, ts+label.After),
			Source:     SourceVisual,
			Confidence: score.Confidence,
			Label:      label.Name,
			Peak:       ts,
		}
		if c.End > c.Start {
			out = append(out, c)
		}
	}
	return out, stats, nil
}

func (a *Analyzer) motionPass(ctx context.Context, video media.VideoHandle, skip spans) ([]Candidate, passStats, error) {
	var (
		stats passStats
		out   []Candidate
		prev  *media.Frame
		run   []FrameScore
	)
	duration := video.Duration()
	sustain := a.cfg.MotionSustainSamples
	if sustain < 1 {
		sustain = 1
	}
	flush := func() {
		if len(run) >= sustain {
			var sum float64
			for _, s := range run {
				sum += s.Confidence
			}
			c := Candidate{
				Start:      math.Max(0, run[0].Timestamp-motionWindow.Before),
				End:        math.Min(duration, run[len(run)-1].Timestamp+motionWindow.After),
				Source:     SourceMotion,
				Confidence: clamp01(sum / float64(len(run))),
				Label:      FallbackLabel.Name,
				Peak:       peakOf(run),
			}
			if c.End > c.Start {
				out = append(out, c)
			}
		}
		run = run[:0]
	}
	for _, ts := range stepTimestamps(0, duration, a.motionStep()) {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		if skip.contains(ts) {
			stats.skipped++
			prev = nil
			flush()
			continue
		}
		stats.sampled++
		frame, err := video.FrameAt(ctx, ts)
		if err != nil {
			stats.failed++
			prev = nil
			flush()
			continue
		}
		score := motionScore(Sample{Timestamp: ts, Frame: frame, Previous: prev})
		prev = frame
		if score >= a.cfg.MotionThreshold && score > 0 {
			run = append(run, FrameScore{Timestamp: ts, Confidence: score})
			continue
		}
		flush()
	}
	flush()
	return out, stats, nil
}

func peakOf(run []FrameScore) float64 {
	best := run[0]
	for _, s := range run[1:] {
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	return best.Timestamp
}

// notePass emits one candidate per note action. Notes whose window contains
// a highlight frame are confirmed: they become merged note/visual candidates
// with a confidence boost.
func (a *Analyzer) notePass(ctx context.Context, video media.VideoHandle, timeline notes.Timeline) ([]Candidate, int, passStats, error) {
	var (
		stats     passStats
		out       []Candidate
		confirmed int
	)
	duration := video.Duration()
	for _, action := range timeline {
		if err := ctx.Err(); err != nil {
			return out, confirmed, stats, err
		}
		if action.Timestamp < 0 || action.Timestamp > duration {
			logging.WarnWithContext(a.logger, "note outside video duration; ignored", "note_out_of_range",
				logging.Float64("timestamp", action.Timestamp),
				logging.Float64("duration", duration),
				logging.String(logging.FieldErrorHint, "check the note clock against the recording length"),
				logging.String(logging.FieldImpact, "note produces no highlight"),
			)
			continue
		}
		window := NoteWindow(action.Kind)
		c := Candidate{
			Start:       math.Max(0, action.Timestamp-window.Before),
			End:         math.Min(duration, action.Timestamp+window.After),
			Source:      SourceNote,
			Confidence:  noteBaseConfidence,
			Label:       string(action.Kind),
			Peak:        action.Timestamp,
			Player:      action.Player,
			Description: action.Description,
		}
		if !(c.End > c.Start) {
			continue
		}
		var (
			buf  frameBuffer
			best FrameScore
			hit  bool
		)
		for _, ts := range stepTimestamps(c.Start, c.End, a.visualStep()) {
			score := a.scoreAt(ctx, video, ts, &buf, &stats)
			if score.Highlight && (!hit || score.Confidence > best.Confidence) {
				best, hit = score, true
			}
		}
		if hit {
			confirmed++
			c.Source = SourceMerged
			c.Sources = []Source{SourceNote, SourceVisual}
			c.Confidence = clamp01(math.Max(c.Confidence, best.Confidence) + a.cfg.ConfirmationBoost)
			c.Peak = best.Timestamp
		}
		out = append(out, c)
	}
	return out, confirmed, stats, nil
}

// noteBaseConfidence is the confidence of an unconfirmed note: trusted enough
// to survive ranking, below any confirmed candidate.
const noteBaseConfidence = 0.6

// AudioPass extracts candidates from the soundtrack.
type AudioPass interface {
	Name() string
	Analyze(ctx context.Context, video media.VideoHandle) ([]Candidate, error)
}

// NoopAudio is the default audio pass; it reports nothing.
type NoopAudio struct{}

// Name implements AudioPass.
func (NoopAudio) Name() string { return "noop" }

// Analyze implements AudioPass.
func (NoopAudio) Analyze(context.Context, media.VideoHandle) ([]Candidate, error) { return nil, nil }
