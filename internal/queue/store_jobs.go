package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"matchreel/internal/services"
)

// Enqueue inserts a queued job for a validated submission.
func (s *Store) Enqueue(ctx context.Context, sub Submission) (*Job, error) {
	if err := sub.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "invalid submission", err)
	}
	var cutsJSON string
	if len(sub.ManualCuts) > 0 {
		data, err := json.Marshal(sub.ManualCuts)
		if err != nil {
			return nil, fmt.Errorf("marshal manual cuts: %w", err)
		}
		cutsJSON = string(data)
	}

	now := formatTime(s.clock())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            public_id, status, progress, message, club, opponent, match_date, video_ref,
            notes_text, manual_cuts_json, player_highlights, webhook_url, created_at, updated_at
        ) VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		StatusQueued,
		"Queued",
		strings.TrimSpace(sub.Club),
		nullableString(strings.TrimSpace(sub.Opponent)),
		nullableDate(sub.MatchDate),
		strings.TrimSpace(sub.VideoRef),
		nullableString(sub.NotesText),
		nullableString(cutsJSON),
		boolToInt(sub.PlayerHighlights),
		nullableString(strings.TrimSpace(sub.WebhookURL)),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by numeric identifier. Missing jobs return nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByPublicID fetches a job by its opaque public identifier.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE public_id = ?`, strings.TrimSpace(publicID))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by public id: %w", err)
	}
	return job, nil
}

// Lookup resolves either a public identifier or a numeric id.
func (s *Store) Lookup(ctx context.Context, ref string) (*Job, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrJobNotFound
	}
	job, err := s.GetByPublicID(ctx, ref)
	if err != nil || job != nil {
		return job, err
	}
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		job, err = s.GetByID(ctx, id)
		if err != nil || job != nil {
			return job, err
		}
	}
	return nil, ErrJobNotFound
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically moves the oldest eligible queued job to initializing
// and assigns it to workerID. It returns nil, nil when nothing is eligible.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, errors.New("claim: worker id required")
	}
	ctx = ensureContext(ctx)
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		now := formatTime(s.clock())
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs
             WHERE status = ? AND cancel_requested = 0
               AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
             ORDER BY created_at, id LIMIT 1`,
			StatusQueued, now,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs
             SET status = ?, progress = MAX(progress, ?), message = ?, attempts = attempts + 1,
                 claimed_by = ?, heartbeat_at = ?, next_attempt_at = NULL,
                 started_at = COALESCE(started_at, ?), updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusInitializing, ProgressFloor(StatusInitializing), "Claimed by worker",
			workerID, now, now, now,
			id, StatusQueued,
		)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected != 1 {
			return nil
		}
		claimed, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// UpdateProgress records status, progress and message for a claimed job.
// Progress never decreases; the status floor is applied automatically.
func (s *Store) UpdateProgress(ctx context.Context, job *Job, status Status, progress float64, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	progress = math.Max(progress, ProgressFloor(status))
	progress = math.Min(progress, 100)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress = MAX(progress, ?), message = ?, updated_at = ?
         WHERE id = ? AND claimed_by = ?`,
		status, progress, nullableString(message), formatTime(s.clock()), job.ID, job.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	job.Status = status
	job.Progress = math.Max(job.Progress, progress)
	job.Message = message
	return nil
}

// SaveOutputs persists the stage outputs carried on job.
func (s *Store) SaveOutputs(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET input_path = ?, downloaded = ?, work_dir = ?, notes_json = ?, highlights_json = ?,
             clips_json = ?, result_json = ?, updated_at = ?
         WHERE id = ? AND claimed_by = ?`,
		nullableString(job.InputPath),
		boolToInt(job.Downloaded),
		nullableString(job.WorkDir),
		nullableString(job.NotesJSON),
		nullableString(job.HighlightsJSON),
		nullableString(job.ClipsJSON),
		nullableString(job.ResultJSON),
		formatTime(s.clock()),
		job.ID,
		job.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("save job outputs: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	return nil
}
