package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a processing job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusInitializing Status = "initializing"
	StatusDownloading  Status = "downloading"
	StatusParsingNotes Status = "parsing_notes"
	StatusAnalyzing    Status = "analyzing"
	StatusAssembling   Status = "assembling"
	StatusUploading    Status = "uploading"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// CancelReason is recorded on jobs cancelled by the caller.
const CancelReason = "Cancelled by caller"

// ClaimLostReason is recorded when a stale claim exhausts its attempts.
const ClaimLostReason = "claim lost; attempts exhausted"

var allStatuses = []Status{
	StatusQueued,
	StatusInitializing,
	StatusDownloading,
	StatusParsingNotes,
	StatusAnalyzing,
	StatusAssembling,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusInitializing: {},
	StatusDownloading:  {},
	StatusParsingNotes: {},
	StatusAnalyzing:    {},
	StatusAssembling:   {},
	StatusUploading:    {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// progressFloors is the minimum progress reported once a job enters a status.
var progressFloors = map[Status]float64{
	StatusQueued:       0,
	StatusInitializing: 5,
	StatusDownloading:  10,
	StatusParsingNotes: 20,
	StatusAnalyzing:    30,
	StatusAssembling:   70,
	StatusUploading:    85,
	StatusCompleted:    100,
}

// AllStatuses returns every known status in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing reports whether a worker owns jobs in this status.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// ProgressFloor returns the progress a job reports on entering status.
func ProgressFloor(status Status) float64 {
	return progressFloors[status]
}

// ManualCut is a caller-supplied clip window that overrides automatic
// detection for the span it covers.
type ManualCut struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Description string  `json:"description,omitempty"`
}

// Submission is the caller request that creates a job.
type Submission struct {
	Club             string
	Opponent         string
	MatchDate        time.Time
	VideoRef         string
	NotesText        string
	ManualCuts       []ManualCut
	PlayerHighlights bool
	WebhookURL       string
}

// Validate checks the fields every job needs.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Club) == "" {
		return fmt.Errorf("club is required")
	}
	if strings.TrimSpace(s.VideoRef) == "" {
		return fmt.Errorf("video reference is required")
	}
	for i, cut := range s.ManualCuts {
		if cut.Start < 0 || !(cut.End > cut.Start) {
			return fmt.Errorf("manual cut %d: end must be after start", i)
		}
	}
	if url := strings.TrimSpace(s.WebhookURL); url != "" &&
		!strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("webhook url must be http(s)")
	}
	return nil
}

// Job is a processing job persisted in SQLite.
type Job struct {
	ID               int64
	PublicID         string
	Status           Status
	Progress         float64
	Message          string
	Club             string
	Opponent         string
	MatchDate        time.Time
	VideoRef         string
	NotesText        string
	ManualCutsJSON   string
	PlayerHighlights bool
	WebhookURL       string
	InputPath        string
	Downloaded       bool
	WorkDir          string
	NotesJSON        string
	HighlightsJSON   string
	ClipsJSON        string
	ResultJSON       string
	ErrorMessage     string
	ErrorKind        string
	Attempts         int
	NextAttemptAt    *time.Time
	ClaimedBy        string
	HeartbeatAt      *time.Time
	CancelRequested  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// ManualCuts decodes the stored manual cut overrides.
func (j *Job) ManualCuts() ([]ManualCut, error) {
	if j == nil || strings.TrimSpace(j.ManualCutsJSON) == "" {
		return nil, nil
	}
	var cuts []ManualCut
	if err := json.Unmarshal([]byte(j.ManualCutsJSON), &cuts); err != nil {
		return nil, fmt.Errorf("decode manual cuts: %w", err)
	}
	return cuts, nil
}

// IsRemote reports whether the video reference must be downloaded.
func (j *Job) IsRemote() bool {
	if j == nil {
		return false
	}
	ref := strings.ToLower(strings.TrimSpace(j.VideoRef))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ProcessingTime returns the elapsed time between start and completion.
func (j *Job) ProcessingTime() time.Duration {
	if j == nil || j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	if end.Before(*j.StartedAt) {
		return 0
	}
	return end.Sub(*j.StartedAt)
}

// DisplayName summarises the fixture for logs and tables.
func (j *Job) DisplayName() string {
	if j == nil {
		return ""
	}
	if strings.TrimSpace(j.Opponent) == "" {
		return j.Club
	}
	return fmt.Sprintf("%s vs %s", j.Club, j.Opponent)
}

// UploadRecord is one distributed clip.
type UploadRecord struct {
	ID               int64
	JobID            int64
	AssetID          string
	Kind             string
	Player           string
	Title            string
	ClipPath         string
	SizeBytes        int64
	HostID           string
	HostURL          string
	Privacy          string
	ArchiveKey       string
	DurationMillis   int64
	UploadedAt       time.Time
	PublishedAt      *time.Time
	ArchiveDeletedAt *time.Time
}

// Cleanup run kinds.
const (
	CleanupRetention = "retention"
	CleanupEmergency = "emergency"
	CleanupWorkDir   = "workdir"
)

// CleanupRun records one storage cleanup pass.
type CleanupRun struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	FilesDeleted int       `json:"filesDeleted"`
	BytesFreed   int64     `json:"bytesFreed"`
	Errors       int       `json:"errors"`
	Note         string    `json:"note,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// CleanupTotals aggregates every recorded cleanup run.
type CleanupTotals struct {
	Runs         int   `json:"runs"`
	FilesDeleted int   `json:"filesDeleted"`
	BytesFreed   int64 `json:"bytesFreed"`
}

// ReclaimResult reports what a stale-claim sweep did.
type ReclaimResult struct {
	Requeued int
	Failed   int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Failed     int
	Completed  int
	Cancelled  int
}
