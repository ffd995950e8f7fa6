package api

import (
	"encoding/json"

	"matchreel/internal/queue"
	"matchreel/internal/storage"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// matchDateFormat is the calendar date layout for match dates.
const matchDateFormat = "2006-01-02"

// SubmitRequest is the job submission payload accepted over HTTP and AMQP.
type SubmitRequest struct {
	Club             string            `json:"club"`
	Opponent         string            `json:"opponent"`
	MatchDate        string            `json:"matchDate"`
	VideoRef         string            `json:"videoRef"`
	VideoURL         string            `json:"videoUrl,omitempty"`
	VideoPath        string            `json:"videoPath,omitempty"`
	Notes            string            `json:"notes"`
	ManualCuts       []queue.ManualCut `json:"manualCuts,omitempty"`
	PlayerHighlights bool              `json:"playerHighlights"`
	WebhookURL       string            `json:"webhookUrl,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobID                      string `json:"jobId"`
	Status                     string `json:"status"`
	EstimatedCompletionSeconds int64  `json:"estimatedCompletionSeconds"`
}

// Job describes a processing job in a transport-friendly format.
type Job struct {
	ID               int64           `json:"id"`
	JobID            string          `json:"jobId"`
	Club             string          `json:"club"`
	Opponent         string          `json:"opponent,omitempty"`
	MatchDate        string          `json:"matchDate,omitempty"`
	VideoRef         string          `json:"videoRef"`
	Status           string          `json:"status"`
	Progress         JobProgress     `json:"progress"`
	PlayerHighlights bool            `json:"playerHighlights"`
	Attempts         int             `json:"attempts"`
	CancelRequested  bool            `json:"cancelRequested,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	ErrorKind        string          `json:"errorKind,omitempty"`
	CreatedAt        string          `json:"createdAt,omitempty"`
	UpdatedAt        string          `json:"updatedAt,omitempty"`
	StartedAt        string          `json:"startedAt,omitempty"`
	CompletedAt      string          `json:"completedAt,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs,omitempty"`
	Uploads          []Upload        `json:"uploads,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Upload is one distributed clip.
type Upload struct {
	AssetID          string `json:"assetId"`
	Kind             string `json:"kind"`
	Player           string `json:"player,omitempty"`
	Title            string `json:"title"`
	HostID           string `json:"hostId"`
	HostURL          string `json:"hostUrl"`
	Privacy          string `json:"privacy"`
	ArchiveKey       string `json:"archiveKey,omitempty"`
	SizeBytes        int64  `json:"sizeBytes"`
	UploadDurationMs int64  `json:"uploadDurationMs"`
	UploadedAt       string `json:"uploadedAt,omitempty"`
	PublishedAt      string `json:"publishedAt,omitempty"`
	ArchiveDeletedAt string `json:"archiveDeletedAt,omitempty"`
}

// WorkflowStatus summarizes worker pool state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	ActiveJobs  []string       `json:"activeJobs,omitempty"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Bind         string             `json:"bind"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Database     DatabaseHealth     `json:"database"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// DatabaseHealth reports queue database diagnostics.
type DatabaseHealth struct {
	Path          string `json:"path"`
	Exists        bool   `json:"exists"`
	Readable      bool   `json:"readable"`
	SchemaVersion int    `json:"schemaVersion"`
	Integrity     bool   `json:"integrity"`
	TotalJobs     int    `json:"totalJobs"`
	Error         string `json:"error,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PublishRequest flips clips to public visibility, either by host video id
// or for every unpublished clip of one job.
type PublishRequest struct {
	IDs   []string `json:"ids,omitempty"`
	JobID string   `json:"jobId,omitempty"`
}

// PublishResponse reports per-clip outcomes; failures never roll back
// successes.
type PublishResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RegisterEndpointRequest adds or replaces a monitored endpoint.
type RegisterEndpointRequest struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Critical       bool   `json:"critical"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// CleanupResponse lists the cleanup runs that changed something.
type CleanupResponse struct {
	Reports []storage.CleanupReport `json:"reports"`
	Error   string                  `json:"error,omitempty"`
}
