package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/media"
	"matchreel/internal/notes"
)

// Analyzer scans one job's recording. Create one per job.
type Analyzer struct {
	cfg      config.Analysis
	logger   *slog.Logger
	registry *Registry
	fusion   Fusion
	cache    *frameCache
	audio    AudioPass
	strategy string
	progress func(fraction float64)
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithRegistry replaces the detector registry (the strategy label becomes "custom").
func WithRegistry(registry *Registry) Option {
	return func(a *Analyzer) {
		if registry != nil {
			a.registry = registry
			a.strategy = "custom"
		}
	}
}

// WithAudioPass installs an audio pass.
func WithAudioPass(pass AudioPass) Option {
	return func(a *Analyzer) {
		if pass != nil {
			a.audio = pass
		}
	}
}

// WithFusion overrides the fusion table built from config.
func WithFusion(f Fusion) Option {
	return func(a *Analyzer) {
		a.fusion = f
	}
}

// WithProgress receives the visual pass completion fraction periodically.
func WithProgress(fn func(fraction float64)) Option {
	return func(a *Analyzer) {
		a.progress = fn
	}
}

// New builds an Analyzer. The player-activity detector is chosen from the
// ranked strategy list unless WithRegistry supplies detectors.
func New(cfg config.Analysis, logger *slog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scene-analyzer"),
		fusion: FusionFromConfig(cfg),
		cache:  newFrameCache(cfg.CacheSize),
		audio:  NoopAudio{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry, a.strategy = DefaultRegistry(a.logger, cfg.ModelPath)
	}
	return a
}

// Strategy returns the selected player-activity strategy name.
func (a *Analyzer) Strategy() string { return a.strategy }

func (a *Analyzer) visualStep() float64 {
	if a.cfg.VisualSampleRate <= 0 {
		return 0.5
	}
	return 1 / a.cfg.VisualSampleRate
}

func (a *Analyzer) motionStep() float64 {
	if a.cfg.MotionSampleRate <= 0 {
		return 1
	}
	return 1 / a.cfg.MotionSampleRate
}

// Analyze runs the note, visual, motion and audio passes concurrently, then
// deduplicates and ranks their candidates. Per-frame and audio failures are
// logged and counted, never fatal; only context cancellation aborts the scan,
// and it is observed between frames.
func (a *Analyzer) Analyze(ctx context.Context, video media.VideoHandle, timeline notes.Timeline, opts Options) (Result, error) {
	if video == nil {
		return Result{}, errors.New("analyze: nil video")
	}
	started := time.Now()
	timeline = timeline.Sorted()
	skip := noteSpans(timeline, a.cfg.NoteBufferSeconds)

	var (
		noteCands, visualCands, motionCands, audioCands []Candidate
		noteStats, visualStats, motionStats             passStats
		confirmed                                       int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		noteCands, confirmed, noteStats, err = a.notePass(gctx, video, timeline)
		return err
	})
	if !opts.DisableVisual {
		g.Go(func() error {
			var err error
			visualCands, visualStats, err = a.visualPass(gctx, video, skip)
			return err
		})
	}
	if !opts.DisableMotion {
		g.Go(func() error {
			var err error
			motionCands, motionStats, err = a.motionPass(gctx, video, skip)
			return err
		})
	}
	if !opts.DisableAudio {
		g.Go(func() error {
			cands, err := a.audio.Analyze(gctx, video)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logging.WarnWithContext(a.logger, "audio pass failed; continuing without audio", "audio_pass_failed",
					logging.String("pass", a.audio.Name()),
					logging.Error(err),
					logging.String(logging.FieldImpact, "no audio-derived candidates"),
				)
				return nil
			}
			for _, c := range cands {
				if c.Valid() && !skip.contains(c.Peak) {
					c.Source = SourceAudio
					audioCands = append(audioCands, c)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var total passStats
	total.add(noteStats)
	total.add(visualStats)
	total.add(motionStats)
	hits, misses := a.cache.counters()

	raw := make([]Candidate, 0, len(noteCands)+len(visualCands)+len(motionCands)+len(audioCands))
	raw = append(raw, noteCands...)
	raw = append(raw, visualCands...)
	raw = append(raw, motionCands...)
	raw = append(raw, audioCands...)

	merged := Deduplicate(raw, a.cfg.MergeThresholdSeconds)
	ranked, discarded := Rank(merged, a.cfg.MinConfidence)
	maxClips := a.cfg.MaxClips
	if opts.MaxClips > 0 {
		maxClips = opts.MaxClips
	}
	final := LimitByPriority(ranked, maxClips)

	stats := Stats{
		VideoSeconds:     video.Duration(),
		FramesSampled:    total.sampled,
		FramesSkipped:    total.skipped,
		FramesFailed:     total.failed,
		DetectorErrors:   total.detectorErrors,
		CacheHits:        hits,
		CacheMisses:      misses,
		NoteCandidates:   len(noteCands),
		NotesConfirmed:   confirmed,
		VisualCandidates: len(visualCands),
		MotionCandidates: len(motionCands),
		AudioCandidates:  len(audioCands),
		RawCandidates:    len(raw),
		Merged:           len(raw) - len(merged),
		Discarded:        discarded,
		Trimmed:          len(ranked) - len(final),
		Highlights:       len(final),
		Strategy:         a.strategy,
		Elapsed:          time.Since(started),
	}
	a.logger.Info("scene analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("highlights", stats.Highlights),
		logging.Int("raw_candidates", stats.RawCandidates),
		logging.Int("notes_confirmed", stats.NotesConfirmed),
		logging.Int("frames_sampled", stats.FramesSampled),
		logging.Int("frames_failed", stats.FramesFailed),
		logging.Int("cache_hits", stats.CacheHits),
		logging.String("strategy", stats.Strategy),
		logging.Duration("elapsed", stats.Elapsed),
	)
	return Result{Highlights: final, Stats: stats}, nil
}
