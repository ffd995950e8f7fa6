package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, public_id, status, progress, message, club, opponent, match_date, video_ref, notes_text, manual_cuts_json, player_highlights, webhook_url, input_path, downloaded, work_dir, notes_json, highlights_json, clips_json, result_json, error_message, error_kind, attempts, next_attempt_at, claimed_by, heartbeat_at, cancel_requested, created_at, updated_at, started_at, completed_at"

const uploadColumns = "id, job_id, asset_id, kind, player, title, clip_path, size_bytes, host_id, host_url, privacy, archive_key, duration_ms, uploaded_at, published_at, archive_deleted_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job              Job
		status           string
		message          sql.NullString
		opponent         sql.NullString
		matchDate        sql.NullString
		notesText        sql.NullString
		manualCuts       sql.NullString
		playerHighlights int
		webhookURL       sql.NullString
		inputPath        sql.NullString
		downloaded       int
		workDir          sql.NullString
		notesJSON        sql.NullString
		highlightsJSON   sql.NullString
		clipsJSON        sql.NullString
		resultJSON       sql.NullString
		errorMessage     sql.NullString
		errorKind        sql.NullString
		nextAttemptRaw   sql.NullString
		claimedBy        sql.NullString
		heartbeatRaw     sql.NullString
		cancelRequested  int
		createdRaw       string
		updatedRaw       string
		startedRaw       sql.NullString
		completedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.PublicID,
		&status,
		&job.Progress,
		&message,
		&job.Club,
		&opponent,
		&matchDate,
		&job.VideoRef,
		&notesText,
		&manualCuts,
		&playerHighlights,
		&webhookURL,
		&inputPath,
		&downloaded,
		&workDir,
		&notesJSON,
		&highlightsJSON,
		&clipsJSON,
		&resultJSON,
		&errorMessage,
		&errorKind,
		&job.Attempts,
		&nextAttemptRaw,
		&claimedBy,
		&heartbeatRaw,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job.Status = Status(status)
	job.Message = message.String
	job.Opponent = opponent.String
	job.NotesText = notesText.String
	job.ManualCutsJSON = manualCuts.String
	job.PlayerHighlights = playerHighlights != 0
	job.WebhookURL = webhookURL.String
	job.InputPath = inputPath.String
	job.Downloaded = downloaded != 0
	job.WorkDir = workDir.String
	job.NotesJSON = notesJSON.String
	job.HighlightsJSON = highlightsJSON.String
	job.ClipsJSON = clipsJSON.String
	job.ResultJSON = resultJSON.String
	job.ErrorMessage = errorMessage.String
	job.ErrorKind = errorKind.String
	job.ClaimedBy = claimedBy.String
	job.CancelRequested = cancelRequested != 0

	if matchDate.Valid {
		if parsed, err := time.Parse(time.DateOnly, matchDate.String); err == nil {
			job.MatchDate = parsed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.NextAttemptAt = parseNullableTime(nextAttemptRaw)
	job.HeartbeatAt = parseNullableTime(heartbeatRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	return &job, nil
}

func scanUpload(scanner rowScanner) (*UploadRecord, error) {
	var (
		rec          UploadRecord
		player       sql.NullString
		title        sql.NullString
		clipPath     sql.NullString
		hostID       sql.NullString
		hostURL      sql.NullString
		privacy      sql.NullString
		archiveKey   sql.NullString
		uploadedRaw  string
		publishedRaw sql.NullString
		deletedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.AssetID,
		&rec.Kind,
		&player,
		&title,
		&clipPath,
		&rec.SizeBytes,
		&hostID,
		&hostURL,
		&privacy,
		&archiveKey,
		&rec.DurationMillis,
		&uploadedRaw,
		&publishedRaw,
		&deletedRaw,
	); err != nil {
		return nil, err
	}
	rec.Player = player.String
	rec.Title = title.String
	rec.ClipPath = clipPath.String
	rec.HostID = hostID.String
	rec.HostURL = hostURL.String
	rec.Privacy = privacy.String
	rec.ArchiveKey = archiveKey.String
	if uploaded, err := parseTimeString(uploadedRaw); err == nil {
		rec.UploadedAt = uploaded
	}
	rec.PublishedAt = parseNullableTime(publishedRaw)
	rec.ArchiveDeletedAt = parseNullableTime(deletedRaw)
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func nullableDate(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.Format(time.DateOnly)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}

func processingStatusList() []Status {
	out := make([]Status, 0, len(processingStatuses))
	for _, status := range allStatuses {
		if status.IsProcessing() {
			out = append(out, status)
		}
	}
	return out
}
