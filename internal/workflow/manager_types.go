package workflow

import (
	"matchreel/internal/queue"
	"matchreel/internal/stage"
)

// Stage names used for timeouts, logging and failure messages.
const (
	StageDownload   = "download"
	StageParseNotes = "parse_notes"
	StageAnalyze    = "analyze"
	StageAssemble   = "assemble"
	StageUpload     = "upload"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Download   stage.Handler
	ParseNotes stage.Handler
	Analyze    stage.Handler
	Assemble   stage.Handler
	Upload     stage.Handler
}

type pipelineStage struct {
	name    string
	status  queue.Status
	handler stage.Handler
	// localStatus is used instead of status when the job's video is a local
	// file, so a local job never reports downloading.
	localStatus queue.Status
}

func (s StageSet) pipeline() []pipelineStage {
	return []pipelineStage{
		{name: StageDownload, status: queue.StatusDownloading, handler: s.Download, localStatus: queue.StatusInitializing},
		{name: StageParseNotes, status: queue.StatusParsingNotes, handler: s.ParseNotes},
		{name: StageAnalyze, status: queue.StatusAnalyzing, handler: s.Analyze},
		{name: StageAssemble, status: queue.StatusAssembling, handler: s.Assemble},
		{name: StageUpload, status: queue.StatusUploading, handler: s.Upload},
	}
}

func (p pipelineStage) statusFor(job *queue.Job) queue.Status {
	if p.localStatus != "" && !job.IsRemote() {
		return p.localStatus
	}
	return p.status
}
