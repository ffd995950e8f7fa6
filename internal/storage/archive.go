package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/services"
)

// ArchiveObject is one stored clip copy.
type ArchiveObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Usage is the archive's footprint against its configured capacity.
type Usage struct {
	UsedBytes     int64
	CapacityBytes int64
	Objects       int
}

// Utilization returns UsedBytes/CapacityBytes, or 0 when capacity is unknown.
func (u Usage) Utilization() float64 {
	if u.CapacityBytes <= 0 {
		return 0
	}
	return float64(u.UsedBytes) / float64(u.CapacityBytes)
}

// Archive is the temporary clip store that cleanup prunes.
type Archive interface {
	Put(ctx context.Context, key, path string) (ArchiveObject, error)
	List(ctx context.Context) ([]ArchiveObject, error)
	Delete(ctx context.Context, key string) error
	Usage(ctx context.Context) (Usage, error)
}

// MinioArchive stores clip copies in an S3-compatible bucket.
type MinioArchive struct {
	client   *minio.Client
	bucket   string
	prefix   string
	capacity int64
	logger   *slog.Logger
}

// NewMinioArchive connects to the configured endpoint. The bucket is created
// on first use by EnsureBucket.
func NewMinioArchive(cfg config.Archive, logger *slog.Logger) (*MinioArchive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "archive", "storage.archive.endpoint is not set", nil)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "archive", "create object storage client", err)
	}
	return &MinioArchive{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		capacity: cfg.CapacityBytes,
		logger:   logging.NewComponentLogger(logger, "archive"),
	}, nil
}

// EnsureBucket creates the archive bucket when it does not exist.
func (a *MinioArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "uploading", "check bucket", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return services.Wrap(services.ErrExternalTool, "uploading", "create bucket", a.bucket, err)
	}
	a.logger.Info("created archive bucket",
		logging.String("bucket", a.bucket),
		logging.String(logging.FieldEventType, "archive_bucket_created"),
	)
	return nil
}

// Put uploads the file at path under key.
func (a *MinioArchive) Put(ctx context.Context, key, path string) (ArchiveObject, error) {
	info, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType(path),
	})
	if err != nil {
		return ArchiveObject{}, services.Wrap(services.ErrTransient, "uploading", "archive put", key, err)
	}
	return ArchiveObject{Key: info.Key, Size: info.Size, LastModified: info.LastModified}, nil
}

// List returns every object under the archive prefix, oldest first.
func (a *MinioArchive) List(ctx context.Context) ([]ArchiveObject, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if a.prefix != "" {
		opts.Prefix = a.prefix + "/"
	}
	var out []ArchiveObject
	for obj := range a.client.ListObjects(ctx, a.bucket, opts) {
		if obj.Err != nil {
			return nil, services.Wrap(services.ErrTransient, "cleanup", "archive list", a.bucket, obj.Err)
		}
		out = append(out, ArchiveObject{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	SortOldestFirst(out)
	return out, nil
}

// Delete removes key from the bucket.
func (a *MinioArchive) Delete(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, "cleanup", "archive delete", key, err)
	}
	return nil
}

// Usage sums object sizes against the configured capacity.
func (a *MinioArchive) Usage(ctx context.Context) (Usage, error) {
	objects, err := a.List(ctx)
	if err != nil {
		return Usage{}, err
	}
	return usageOf(objects, a.capacity), nil
}

// String identifies the archive in logs and status output.
func (a *MinioArchive) String() string {
	return fmt.Sprintf("%s/%s", a.client.EndpointURL().Host, a.bucket)
}

// SortOldestFirst orders objects by modification time, then key.
func SortOldestFirst(objects []ArchiveObject) {
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].Key < objects[j].Key
		}
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
}

func usageOf(objects []ArchiveObject, capacity int64) Usage {
	u := Usage{CapacityBytes: capacity, Objects: len(objects)}
	for _, obj := range objects {
		u.UsedBytes += obj.Size
	}
	return u
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".ts":   "video/mp2t",
	".json": "application/json",
}

func contentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
