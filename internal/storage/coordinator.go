package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"matchreel/internal/assembly"
	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/queue"
	"matchreel/internal/services"
	"matchreel/internal/textutil"
)

// UploadStore persists distribution results.
type UploadStore interface {
	RecordUpload(ctx context.Context, rec *queue.UploadRecord) error
	UploadsForJob(ctx context.Context, jobID int64) ([]queue.UploadRecord, error)
	MarkPublished(ctx context.Context, hostID, privacy string, at time.Time) error
}

// JobMeta is the job context that drives naming.
type JobMeta struct {
	JobID     int64
	PublicID  string
	Club      string
	Opponent  string
	MatchDate time.Time
}

// MetaFromJob extracts naming inputs from a job.
func MetaFromJob(job *queue.Job) JobMeta {
	return JobMeta{
		JobID:     job.ID,
		PublicID:  job.PublicID,
		Club:      job.Club,
		Opponent:  job.Opponent,
		MatchDate: job.MatchDate,
	}
}

// UploadResult describes one distributed clip.
type UploadResult struct {
	AssetID          string    `json:"assetId"`
	Kind             string    `json:"kind"`
	Player           string    `json:"player,omitempty"`
	Title            string    `json:"title"`
	HostID           string    `json:"hostId"`
	HostURL          string    `json:"hostUrl"`
	Privacy          string    `json:"privacy"`
	Folder           string    `json:"folder"`
	PlaylistID       string    `json:"playlistId,omitempty"`
	ArchiveKey       string    `json:"archiveKey,omitempty"`
	SizeBytes        int64     `json:"sizeBytes"`
	UploadDurationMs int64     `json:"uploadDurationMs"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// UploadFailure records a clip that could not be published.
type UploadFailure struct {
	AssetID string `json:"assetId"`
	Title   string `json:"title"`
	Error   string `json:"error"`
}

// UploadBatch is the outcome of distributing a job's clips.
type UploadBatch struct {
	Uploads  []UploadResult  `json:"uploads"`
	Failures []UploadFailure `json:"failures,omitempty"`
}

// BatchReport lists per-asset outcomes of a visibility change.
type BatchReport struct {
	Succeeded []string
	Failed    map[string]error
}

// Errors renders Failed with string messages for JSON responses.
func (r BatchReport) Errors() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for id, err := range r.Failed {
		out[id] = err.Error()
	}
	return out
}

// ProgressFunc observes upload progress.
type ProgressFunc func(done, total int, title string)

// Coordinator publishes clips to the video host and archive.
type Coordinator struct {
	cfg     config.Storage
	host    VideoHost
	archive Archive
	store   UploadStore
	logger  *slog.Logger
	clock   func() time.Time
}

// NewCoordinator builds a Coordinator. archive may be nil when the temporary
// archive is disabled.
func NewCoordinator(cfg config.Storage, host VideoHost, archive Archive, store UploadStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		host:    host,
		archive: archive,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "storage"),
		clock:   time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Coordinator) SetClock(clock func() time.Time) {
	if clock != nil {
		c.clock = clock
	}
}

// AssetID is the stable identifier of a job's clip.
func AssetID(publicID string, clip assembly.Clip) string {
	id := publicID + "-" + string(kindOrTeam(clip.Kind))
	if clip.Kind == assembly.KindPlayer {
		id += "-" + textutil.Slug(clip.Player)
	}
	return id
}

// UploadClips distributes clips. Individual clip failures are collected in
// the batch; only cancellation aborts the call. Clips already recorded for
// the job are reported without being uploaded again.
func (c *Coordinator) UploadClips(ctx context.Context, meta JobMeta, clips []assembly.Clip, progress ProgressFunc) (UploadBatch, error) {
	if c.host == nil {
		return UploadBatch{}, services.Wrap(services.ErrConfiguration, "uploading", "upload clips", "no video host configured", nil)
	}
	existing := map[string]queue.UploadRecord{}
	if c.store != nil && meta.JobID > 0 {
		recs, err := c.store.UploadsForJob(ctx, meta.JobID)
		if err != nil {
			return UploadBatch{}, fmt.Errorf("load existing uploads: %w", err)
		}
		for _, rec := range recs {
			existing[rec.AssetID] = rec
		}
	}

	type outcome struct {
		result UploadResult
		err    error
	}
	outcomes := make([]outcome, len(clips))
	var (
		mu   sync.Mutex
		done int
	)
	run := func(i int) {
		clip := clips[i]
		if rec, ok := existing[AssetID(meta.PublicID, clip)]; ok {
			outcomes[i] = outcome{result: resultFromRecord(rec, FolderPath(meta.Club, Season(meta.MatchDate), clip.Kind))}
		} else {
			res, err := c.uploadOne(ctx, meta, clip)
			outcomes[i] = outcome{result: res, err: err}
		}
		if progress != nil {
			mu.Lock()
			done++
			progress(done, len(clips), clip.Title)
			mu.Unlock()
		}
	}

	if c.cfg.Parallel && len(clips) > 1 {
		limit := c.cfg.MaxParallelUploads
		if limit <= 0 {
			limit = 2
		}
		var g errgroup.Group
		g.SetLimit(limit)
		for i := range clips {
			g.Go(func() error {
				if ctx.Err() != nil {
					outcomes[i] = outcome{err: ctx.Err()}
					return nil
				}
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range clips {
			if ctx.Err() != nil {
				break
			}
			run(i)
		}
	}
	if err := ctx.Err(); err != nil {
		return UploadBatch{}, err
	}

	batch := UploadBatch{Uploads: []UploadResult{}}
	for i, o := range outcomes {
		if o.err != nil {
			batch.Failures = append(batch.Failures, UploadFailure{
				AssetID: AssetID(meta.PublicID, clips[i]),
				Title:   clips[i].Title,
				Error:   o.err.Error(),
			})
			continue
		}
		batch.Uploads = append(batch.Uploads, o.result)
	}
	return batch, nil
}

func (c *Coordinator) uploadOne(ctx context.Context, meta JobMeta, clip assembly.Clip) (UploadResult, error) {
	logger := logging.WithContext(ctx, c.logger).With(logging.String("clip", clip.Title))
	season := Season(meta.MatchDate)
	folder := FolderPath(meta.Club, season, clip.Kind)
	privacy := strings.TrimSpace(c.cfg.Host.DefaultPrivacy)
	if privacy == "" {
		privacy = PrivacyUnlisted
	}
	started := c.clock()

	video, err := c.host.Upload(ctx, clip.Path, VideoMeta{
		AssetID:     AssetID(meta.PublicID, clip),
		Title:       clip.Title,
		Description: describe(meta, clip),
		Folder:      folder,
		Privacy:     privacy,
	})
	if err != nil {
		logging.WarnWithContext(logger, "clip upload failed", "clip_upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage.host settings and quota"),
			logging.String(logging.FieldImpact, "clip missing from the host"),
		)
		return UploadResult{}, err
	}

	result := UploadResult{
		AssetID:   AssetID(meta.PublicID, clip),
		Kind:      string(kindOrTeam(clip.Kind)),
		Player:    clip.Player,
		Title:     clip.Title,
		HostID:    video.ID,
		HostURL:   video.URL,
		Privacy:   privacy,
		Folder:    folder,
		SizeBytes: clip.SizeBytes,
	}

	title := PlaylistTitle(meta.Club, season, clip.Kind)
	if playlistID, err := c.host.EnsurePlaylist(ctx, title, folder); err != nil {
		logging.WarnWithContext(logger, "playlist unavailable", "playlist_failed",
			logging.String("playlist", title),
			logging.Error(err),
			logging.String(logging.FieldImpact, "clip uploaded but not filed in a playlist"),
		)
	} else if err := c.host.AddToPlaylist(ctx, playlistID, video.ID); err != nil {
		logging.WarnWithContext(logger, "playlist insert failed", "playlist_failed",
			logging.String("playlist", title),
			logging.Error(err),
			logging.String(logging.FieldImpact, "clip uploaded but not filed in a playlist"),
		)
	} else {
		result.PlaylistID = playlistID
	}

	if c.archive != nil {
		key := ArchiveKey(c.cfg.Archive.Prefix, meta.Club, season, clip)
		if _, err := c.archive.Put(ctx, key, clip.Path); err != nil {
			logging.WarnWithContext(logger, "archive copy failed", "archive_put_failed",
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "no temporary copy for this clip"),
			)
		} else {
			result.ArchiveKey = key
		}
	}

	result.UploadedAt = c.clock()
	result.UploadDurationMs = result.UploadedAt.Sub(started).Milliseconds()

	if c.store != nil {
		rec := &queue.UploadRecord{
			JobID:          meta.JobID,
			AssetID:        result.AssetID,
			Kind:           result.Kind,
			Player:         result.Player,
			Title:          result.Title,
			ClipPath:       clip.Path,
			SizeBytes:      result.SizeBytes,
			HostID:         result.HostID,
			HostURL:        result.HostURL,
			Privacy:        result.Privacy,
			ArchiveKey:     result.ArchiveKey,
			DurationMillis: result.UploadDurationMs,
			UploadedAt:     result.UploadedAt,
		}
		if err := c.store.RecordUpload(ctx, rec); err != nil {
			logging.ErrorWithContext(logger, "record upload failed", "upload_record_failed",
				logging.String("host_id", video.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "retention and publish cannot find this clip"),
			)
		}
	}

	logger.Info("clip uploaded",
		logging.String(logging.FieldEventType, "clip_uploaded"),
		logging.String("host_id", video.ID),
		logging.String("folder", folder),
		logging.Int64("duration_ms", result.UploadDurationMs),
	)
	return result, nil
}

// MakePublic flips each hosted video to public. Failures are reported per
// id and never undo earlier successes.
func (c *Coordinator) MakePublic(ctx context.Context, hostIDs []string) BatchReport {
	report := BatchReport{Succeeded: []string{}, Failed: map[string]error{}}
	seen := make(map[string]struct{}, len(hostIDs))
	for _, raw := range hostIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			report.Failed[id] = err
			continue
		}
		if c.host == nil {
			report.Failed[id] = errors.New("no video host configured")
			continue
		}
		if err := c.host.SetPrivacy(ctx, id, PrivacyPublic); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Succeeded = append(report.Succeeded, id)
		if c.store != nil {
			if err := c.store.MarkPublished(ctx, id, PrivacyPublic, c.clock()); err != nil {
				logging.WarnWithContext(c.logger, "publish state not recorded", "publish_record_failed",
					logging.String("host_id", id),
					logging.Error(err),
				)
			}
		}
	}
	c.logger.Info("visibility batch finished",
		logging.String(logging.FieldEventType, "make_public"),
		logging.Int("succeeded", len(report.Succeeded)),
		logging.Int("failed", len(report.Failed)),
	)
	return report
}

// MakeJobPublic publishes every hosted clip recorded for a job.
func (c *Coordinator) MakeJobPublic(ctx context.Context, jobID int64) (BatchReport, error) {
	if c.store == nil {
		return BatchReport{}, errors.New("upload store unavailable")
	}
	recs, err := c.store.UploadsForJob(ctx, jobID)
	if err != nil {
		return BatchReport{}, err
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.HostID != "" && rec.Privacy != PrivacyPublic {
			ids = append(ids, rec.HostID)
		}
	}
	return c.MakePublic(ctx, ids), nil
}

func describe(meta JobMeta, clip assembly.Clip) string {
	match := fmt.Sprintf("%s vs %s", strings.TrimSpace(meta.Club), strings.TrimSpace(meta.Opponent))
	if !meta.MatchDate.IsZero() {
		match += ", " + meta.MatchDate.Format("2 January 2006")
	}
	if clip.Kind == assembly.KindPlayer && clip.Player != "" {
		return fmt.Sprintf("%s highlights from %s.", clip.Player, match)
	}
	return fmt.Sprintf("Team highlights from %s.", match)
}

func resultFromRecord(rec queue.UploadRecord, folder string) UploadResult {
	return UploadResult{
		AssetID:          rec.AssetID,
		Kind:             rec.Kind,
		Player:           rec.Player,
		Title:            rec.Title,
		HostID:           rec.HostID,
		HostURL:          rec.HostURL,
		Privacy:          rec.Privacy,
		Folder:           folder,
		ArchiveKey:       rec.ArchiveKey,
		SizeBytes:        rec.SizeBytes,
		UploadDurationMs: rec.DurationMillis,
		UploadedAt:       rec.UploadedAt,
	}
}
