package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordUpload persists one distributed clip. AssetID must be unique.
func (s *Store) RecordUpload(ctx context.Context, rec *UploadRecord) error {
	if rec == nil {
		return errors.New("upload record is nil")
	}
	if rec.AssetID == "" {
		return errors.New("upload record requires an asset id")
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = s.clock()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO uploads (
            job_id, asset_id, kind, player, title, clip_path, size_bytes, host_id, host_url,
            privacy, archive_key, duration_ms, uploaded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.AssetID,
		rec.Kind,
		nullableString(rec.Player),
		nullableString(rec.Title),
		nullableString(rec.ClipPath),
		rec.SizeBytes,
		nullableString(rec.HostID),
		nullableString(rec.HostURL),
		nullableString(rec.Privacy),
		nullableString(rec.ArchiveKey),
		rec.DurationMillis,
		formatTime(rec.UploadedAt),
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (s *Store) queryUploads(ctx context.Context, where string, args ...any) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+uploadColumns+` FROM uploads `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()
	var out []UploadRecord
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// UploadsForJob returns the uploads recorded for a job in upload order.
func (s *Store) UploadsForJob(ctx context.Context, jobID int64) ([]UploadRecord, error) {
	return s.queryUploads(ctx, `WHERE job_id = ? ORDER BY id`, jobID)
}

// UploadByHostID returns the upload for a permanent-host identifier.
func (s *Store) UploadByHostID(ctx context.Context, hostID string) (*UploadRecord, error) {
	recs, err := s.queryUploads(ctx, `WHERE host_id = ? LIMIT 1`, hostID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// MarkPublished records a successful visibility change for hostID.
func (s *Store) MarkPublished(ctx context.Context, hostID, privacy string, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE uploads SET privacy = ?, published_at = ? WHERE host_id = ?`,
		privacy, formatTime(at), hostID,
	); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkArchiveDeleted records that the archive copy behind key was removed.
func (s *Store) MarkArchiveDeleted(ctx context.Context, key string, at time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE uploads SET archive_deleted_at = ? WHERE archive_key = ? AND archive_deleted_at IS NULL`,
		formatTime(at), key,
	); err != nil {
		return fmt.Errorf("mark archive deleted: %w", err)
	}
	return nil
}

// RecordCleanupRun stores the outcome of a cleanup pass.
func (s *Store) RecordCleanupRun(ctx context.Context, run *CleanupRun) error {
	if run == nil {
		return errors.New("cleanup run is nil")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.clock()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO cleanup_runs (kind, files_deleted, bytes_freed, errors, note, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Kind, run.FilesDeleted, run.BytesFreed, run.Errors, nullableString(run.Note),
		formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert cleanup run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// LastCleanupRun returns the most recent run, optionally filtered by kind.
func (s *Store) LastCleanupRun(ctx context.Context, kinds ...string) (*CleanupRun, error) {
	query := `SELECT id, kind, files_deleted, bytes_freed, errors, note, started_at, finished_at FROM cleanup_runs`
	args := make([]any, 0, len(kinds))
	if len(kinds) > 0 {
		query += ` WHERE kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	query += ` ORDER BY finished_at DESC, id DESC LIMIT 1`

	var (
		run         CleanupRun
		note        sql.NullString
		startedRaw  string
		finishedRaw string
	)
	err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(
		&run.ID, &run.Kind, &run.FilesDeleted, &run.BytesFreed, &run.Errors, &note, &startedRaw, &finishedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last cleanup run: %w", err)
	}
	run.Note = note.String
	run.StartedAt, _ = parseTimeString(startedRaw)
	run.FinishedAt, _ = parseTimeString(finishedRaw)
	return &run, nil
}

// CleanupTotals sums every recorded cleanup run.
func (s *Store) CleanupTotals(ctx context.Context) (CleanupTotals, error) {
	var totals CleanupTotals
	if err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1), COALESCE(SUM(files_deleted), 0), COALESCE(SUM(bytes_freed), 0) FROM cleanup_runs`,
	).Scan(&totals.Runs, &totals.FilesDeleted, &totals.BytesFreed); err != nil {
		return CleanupTotals{}, fmt.Errorf("cleanup totals: %w", err)
	}
	return totals, nil
}
