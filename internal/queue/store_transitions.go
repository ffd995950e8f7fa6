package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Heartbeat refreshes the claim timestamp for a job owned by workerID.
func (s *Store) Heartbeat(ctx context.Context, id int64, workerID string) error {
	now := formatTime(s.clock())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND claimed_by = ?`,
		now, now, id, workerID,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReclaimStale returns processing jobs whose heartbeat is older than cutoff
// to the queue. Jobs that already used maxAttempts claims fail instead. The
// next attempt is delayed by backoff(attempts).
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int, backoff func(attempts int) time.Duration) (ReclaimResult, error) {
	ctx = ensureContext(ctx)
	var result ReclaimResult
	processing := processingStatusList()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = ReclaimResult{}
		args := append(statusArgs(processing), formatTime(cutoff))
		rows, err := tx.QueryContext(ctx,
			`SELECT id, attempts FROM jobs
             WHERE status IN (`+makePlaceholders(len(processing))+`)
               AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
			args...,
		)
		if err != nil {
			return err
		}
		type stale struct {
			id       int64
			attempts int
		}
		var found []stale
		for rows.Next() {
			var item stale
			if err := rows.Scan(&item.id, &item.attempts); err != nil {
				rows.Close()
				return err
			}
			found = append(found, item)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := s.clock()
		for _, item := range found {
			if maxAttempts > 0 && item.attempts >= maxAttempts {
				if _, err := tx.ExecContext(ctx,
					`UPDATE jobs
                     SET status = ?, message = ?, error_message = ?, error_kind = ?, claimed_by = NULL,
                         heartbeat_at = NULL, completed_at = ?, updated_at = ?
                     WHERE id = ?`,
					StatusFailed, ClaimLostReason, ClaimLostReason, "claim_lost",
					formatTime(now), formatTime(now), item.id,
				); err != nil {
					return err
				}
				result.Failed++
				continue
			}
			var delay time.Duration
			if backoff != nil {
				delay = backoff(item.attempts)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs
                 SET status = ?, message = ?, claimed_by = NULL, heartbeat_at = NULL,
                     next_attempt_at = ?, updated_at = ?
                 WHERE id = ?`,
				StatusQueued, "Reclaimed after lost heartbeat",
				formatTime(now.Add(delay)), formatTime(now), item.id,
			); err != nil {
				return err
			}
			result.Requeued++
		}
		return nil
	})
	if err != nil {
		return ReclaimResult{}, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return result, nil
}

// RequestCancel cancels a queued job immediately. A claimed job is flagged
// and stops at its next stage boundary. The returned job reflects the change.
func (s *Store) RequestCancel(ctx context.Context, id int64) (*Job, error) {
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status Status
		if err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrJobNotFound
			}
			return err
		}
		now := formatTime(s.clock())
		switch {
		case status.IsTerminal():
			return ErrJobFinished
		case status == StatusQueued:
			_, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, message = ?, error_message = ?, error_kind = 'cancelled',
                     cancel_requested = 1, completed_at = ?, updated_at = ? WHERE id = ?`,
				StatusCancelled, CancelReason, CancelReason, now, now, id,
			)
			return err
		default:
			_, err := tx.ExecContext(ctx,
				`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?`, now, id,
			)
			return err
		}
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobFinished) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CancelRequested reports whether the caller asked to cancel the job.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	var flag int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrJobNotFound
		}
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// MarkCompleted finishes a claimed job with its serialized result.
func (s *Store) MarkCompleted(ctx context.Context, job *Job, resultJSON string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := s.clock()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, progress = 100, message = ?, result_json = ?, error_message = NULL, error_kind = NULL,
             claimed_by = NULL, heartbeat_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND claimed_by = ?`,
		StatusCompleted, "Completed", nullableString(resultJSON),
		formatTime(now), formatTime(now), job.ID, job.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.ResultJSON = resultJSON
	job.CompletedAt = &now
	return nil
}

// MarkFailed finishes a claimed job as failed (or cancelled) with an error.
func (s *Store) MarkFailed(ctx context.Context, job *Job, status Status, message, kind string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if status != StatusCancelled {
		status = StatusFailed
	}
	now := s.clock()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, message = ?, error_message = ?, error_kind = ?, claimed_by = NULL,
             heartbeat_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND claimed_by = ?`,
		status, nullableString(message), nullableString(message), nullableString(kind),
		formatTime(now), formatTime(now), job.ID, job.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	job.Status = status
	job.ErrorMessage = message
	job.ErrorKind = kind
	job.CompletedAt = &now
	return nil
}

// Release hands a claimed job back to the queue without consuming an
// attempt. Used when the daemon stops mid-job.
func (s *Store) Release(ctx context.Context, job *Job, reason string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, message = ?, attempts = MAX(attempts - 1, 0), claimed_by = NULL,
             heartbeat_at = NULL, updated_at = ?
         WHERE id = ? AND claimed_by = ?`,
		StatusQueued, nullableString(reason), formatTime(s.clock()), job.ID, job.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrClaimLost
	}
	job.Status = StatusQueued
	return nil
}

// Retry moves failed or cancelled jobs back to the queue with a fresh
// attempt budget. With no ids every failed job is retried.
func (s *Store) Retry(ctx context.Context, ids ...int64) (int64, error) {
	now := formatTime(s.clock())
	base := `UPDATE jobs
        SET status = ?, progress = 0, message = 'Retry requested', error_message = NULL, error_kind = NULL,
            attempts = 0, next_attempt_at = NULL, cancel_requested = 0, result_json = NULL,
            started_at = NULL, completed_at = NULL, updated_at = ?`
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx, base+` WHERE status = ?`, StatusQueued, now, StatusFailed)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed, StatusCancelled)
	res, err := s.execWithRetry(ctx,
		base+` WHERE id IN (`+makePlaceholders(len(ids))+`) AND status IN (?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}
