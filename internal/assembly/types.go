package assembly

import (
	"context"

	"matchreel/internal/analysis"
	"matchreel/internal/queue"
)

// ClipKind distinguishes team compilations from per-player reels.
type ClipKind string

const (
	KindTeam   ClipKind = "team"
	KindPlayer ClipKind = "player"
)

// Window is one segment to cut from the source video.
type Window struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Peak        float64 `json:"peak"`
	Label       string  `json:"label"`
	Player      string  `json:"player,omitempty"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	Manual      bool    `json:"manual,omitempty"`
}

// Duration returns End-Start in seconds.
func (w Window) Duration() float64 { return w.End - w.Start }

// Request is everything the assembler needs for one job.
type Request struct {
	JobID            string
	VideoPath        string
	VideoDuration    float64
	WorkDir          string
	Club             string
	Opponent         string
	Highlights       []analysis.Candidate
	ManualCuts       []queue.ManualCut
	PlayerHighlights bool
	MinClipSeconds   float64
	MaxClipSeconds   float64
}

// Clip is one assembled output file.
type Clip struct {
	Path      string   `json:"path"`
	Kind      ClipKind `json:"kind"`
	Player    string   `json:"player,omitempty"`
	Title     string   `json:"title"`
	Duration  float64  `json:"duration"`
	SizeBytes int64    `json:"sizeBytes"`
	Windows   []Window `json:"windows"`
}

// Output lists the clips produced for a job.
type Output struct {
	Clips []Clip `json:"clips"`
}

// Assembler produces team and player clip files from planned windows.
type Assembler interface {
	Assemble(ctx context.Context, req Request) (Output, error)
}
