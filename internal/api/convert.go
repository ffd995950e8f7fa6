package api

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/stage"
)

// ToSubmission validates the request shape and converts it to a queue
// submission. An empty match date defaults to today (UTC).
func (r SubmitRequest) ToSubmission(now time.Time) (queue.Submission, error) {
	ref := firstNonEmpty(r.VideoRef, r.VideoURL, r.VideoPath)
	date := now.UTC().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(r.MatchDate); raw != "" {
		parsed, err := parseMatchDate(raw)
		if err != nil {
			return queue.Submission{}, services.Wrap(services.ErrValidation, "submit", "parse match date",
				"matchDate must be YYYY-MM-DD", err)
		}
		date = parsed
	}
	sub := queue.Submission{
		Club:             strings.TrimSpace(r.Club),
		Opponent:         strings.TrimSpace(r.Opponent),
		MatchDate:        date,
		VideoRef:         ref,
		NotesText:        r.Notes,
		ManualCuts:       r.ManualCuts,
		PlayerHighlights: r.PlayerHighlights,
		WebhookURL:       strings.TrimSpace(r.WebhookURL),
	}
	if err := sub.Validate(); err != nil {
		return queue.Submission{}, services.Wrap(services.ErrValidation, "submit", "validate", err.Error(), nil)
	}
	return sub, nil
}

func parseMatchDate(raw string) (time.Time, error) {
	if t, err := time.Parse(matchDateFormat, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(24 * time.Hour), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// FromJob converts a queue record and its uploads to the API representation.
func FromJob(job *queue.Job, uploads []queue.UploadRecord) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:       job.ID,
		JobID:    job.PublicID,
		Club:     job.Club,
		Opponent: job.Opponent,
		VideoRef: job.VideoRef,
		Status:   string(job.Status),
		Progress: JobProgress{
			Stage:   string(job.Status),
			Percent: job.Progress,
			Message: job.Message,
		},
		PlayerHighlights: job.PlayerHighlights,
		Attempts:         job.Attempts,
		CancelRequested:  job.CancelRequested,
		ErrorMessage:     job.ErrorMessage,
		ErrorKind:        job.ErrorKind,
		CreatedAt:        FormatTime(job.CreatedAt),
		UpdatedAt:        FormatTime(job.UpdatedAt),
		StartedAt:        formatTimePtr(job.StartedAt),
		CompletedAt:      formatTimePtr(job.CompletedAt),
		ProcessingTimeMs: job.ProcessingTime().Milliseconds(),
	}
	if !job.MatchDate.IsZero() {
		dto.MatchDate = job.MatchDate.UTC().Format(matchDateFormat)
	}
	if raw := strings.TrimSpace(job.ResultJSON); raw != "" && json.Valid([]byte(raw)) {
		dto.Result = json.RawMessage(raw)
	}
	for _, rec := range uploads {
		dto.Uploads = append(dto.Uploads, FromUpload(rec))
	}
	return dto
}

// FromJobs converts a slice of queue records into API DTOs without uploads.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job, nil))
	}
	return out
}

// FromUpload converts a stored upload record.
func FromUpload(rec queue.UploadRecord) Upload {
	return Upload{
		AssetID:          rec.AssetID,
		Kind:             rec.Kind,
		Player:           rec.Player,
		Title:            rec.Title,
		HostID:           rec.HostID,
		HostURL:          rec.HostURL,
		Privacy:          rec.Privacy,
		ArchiveKey:       rec.ArchiveKey,
		SizeBytes:        rec.SizeBytes,
		UploadDurationMs: rec.DurationMillis,
		UploadedAt:       FormatTime(rec.UploadedAt),
		PublishedAt:      formatTimePtr(rec.PublishedAt),
		ArchiveDeletedAt: formatTimePtr(rec.ArchiveDeletedAt),
	}
}

// FromDatabaseHealth converts queue database diagnostics.
func FromDatabaseHealth(h queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:          h.DBPath,
		Exists:        h.DatabaseExists,
		Readable:      h.DatabaseReadable,
		SchemaVersion: h.SchemaVersion,
		Integrity:     h.IntegrityCheck,
		TotalJobs:     h.TotalJobs,
		Error:         h.Error,
	}
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health list into a deterministic slice.
func StageHealthSlice(health []stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	slices.SortFunc(out, func(a, b StageHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
