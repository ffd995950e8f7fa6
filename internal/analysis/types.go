package analysis

import "time"

// Source tags the pass that produced a candidate.
type Source string

const (
	SourceMerged Source = "merged"
	SourceNote   Source = "note"
	SourceVisual Source = "visual"
	SourceMotion Source = "motion"
	SourceAudio  Source = "audio"
)

var sourcePriority = map[Source]int{
	SourceMerged: 0,
	SourceNote:   1,
	SourceVisual: 2,
	SourceMotion: 3,
	SourceAudio:  4,
}

func sourceRank(s Source) int {
	if rank, ok := sourcePriority[s]; ok {
		return rank
	}
	return len(sourcePriority)
}

// Candidate is a time window [Start, End) likely to contain notable action.
type Candidate struct {
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Source      Source   `json:"source"`
	Sources     []Source `json:"sources,omitempty"`
	Confidence  float64  `json:"confidence"`
	Label       string   `json:"label"`
	Peak        float64  `json:"peak"`
	Player      string   `json:"player,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Duration returns End-Start in seconds.
func (c Candidate) Duration() float64 {
	return c.End - c.Start
}

// Valid reports whether the window is non-empty and confidence is in [0,1].
func (c Candidate) Valid() bool {
	return c.End > c.Start && c.Confidence >= 0 && c.Confidence <= 1
}

// Stats summarises one Analyze run.
type Stats struct {
	VideoSeconds     float64       `json:"videoSeconds"`
	FramesSampled    int           `json:"framesSampled"`
	FramesSkipped    int           `json:"framesSkipped"`
	FramesFailed     int           `json:"framesFailed"`
	DetectorErrors   int           `json:"detectorErrors"`
	CacheHits        int           `json:"cacheHits"`
	CacheMisses      int           `json:"cacheMisses"`
	NoteCandidates   int           `json:"noteCandidates"`
	NotesConfirmed   int           `json:"notesConfirmed"`
	VisualCandidates int           `json:"visualCandidates"`
	MotionCandidates int           `json:"motionCandidates"`
	AudioCandidates  int           `json:"audioCandidates"`
	RawCandidates    int           `json:"rawCandidates"`
	Merged           int           `json:"merged"`
	Discarded        int           `json:"discarded"`
	Trimmed          int           `json:"trimmed"`
	Highlights       int           `json:"highlights"`
	Strategy         string        `json:"strategy"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Result is the output of Analyze.
type Result struct {
	Highlights []Candidate `json:"highlights"`
	Stats      Stats       `json:"stats"`
}

// Options adjusts a single Analyze call.
type Options struct {
	DisableVisual bool
	DisableMotion bool
	DisableAudio  bool
	// MaxClips overrides analysis.max_clips when positive.
	MaxClips int
}

type passStats struct {
	sampled        int
	skipped        int
	failed         int
	detectorErrors int
}

func (p *passStats) add(other passStats) {
	p.sampled += other.sampled
	p.skipped += other.skipped
	p.failed += other.failed
	p.detectorErrors += other.detectorErrors
}
