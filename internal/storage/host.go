package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"matchreel/internal/config"
	"matchreel/internal/logging"
	"matchreel/internal/retry"
	"matchreel/internal/services"
)

// Visibility values understood by the video host.
const (
	PrivacyUnlisted = "unlisted"
	PrivacyPublic   = "public"
	PrivacyPrivate  = "private"
)

const hostUserAgent = "matchreel/0.1.0"

// VideoMeta describes a clip being published. AssetID, when set, is sent as
// the registration's Idempotency-Key so a retried request cannot create a
// second video.
type VideoMeta struct {
	AssetID     string `json:"asset_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Folder      string `json:"folder"`
	Privacy     string `json:"privacy"`
}

// HostedVideo identifies an uploaded video on the permanent host.
type HostedVideo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// VideoHost is the permanent home of published clips.
type VideoHost interface {
	Upload(ctx context.Context, path string, meta VideoMeta) (HostedVideo, error)
	SetPrivacy(ctx context.Context, id, privacy string) error
	EnsurePlaylist(ctx context.Context, title, folder string) (string, error)
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// HTTPHost talks to the video host's JSON API. Uploads are two-step: the
// metadata is registered first and the file is then PUT to the returned
// upload URL.
type HTTPHost struct {
	base   *url.URL
	token  string
	http   *http.Client
	retry  *retry.Executor
	logger *slog.Logger
}

// HostOption customises an HTTPHost.
type HostOption func(*HTTPHost)

// WithHostHTTPClient swaps the HTTP client, mainly for tests.
func WithHostHTTPClient(client *http.Client) HostOption {
	return func(h *HTTPHost) {
		if client != nil {
			h.http = client
		}
	}
}

// NewHTTPHost validates the [storage.host] settings and builds a client.
func NewHTTPHost(cfg config.Host, policy retry.Policy, logger *slog.Logger, opts ...HostOption) (*HTTPHost, error) {
	logger = logging.NewComponentLogger(logger, "video-host")
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "video host", "storage.host.base_url is not set", nil)
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "video host", "storage.host.base_url is invalid", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	h := &HTTPHost{
		base:   base,
		token:  strings.TrimSpace(cfg.Token),
		http:   &http.Client{Timeout: timeout},
		retry:  retry.New(policy, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type uploadSession struct {
	HostedVideo
	UploadURL string `json:"upload_url"`
}

// Upload registers meta and sends the file at path.
func (h *HTTPHost) Upload(ctx context.Context, path string, meta VideoMeta) (HostedVideo, error) {
	if meta.Privacy == "" {
		meta.Privacy = PrivacyUnlisted
	}
	var session uploadSession
	var opts []requestOption
	if key := strings.TrimSpace(meta.AssetID); key != "" {
		opts = append(opts, withHeader("Idempotency-Key", key))
	}
	if err := h.doJSON(ctx, "register video", http.MethodPost, "videos", meta, &session, opts...); err != nil {
		return HostedVideo{}, err
	}
	if session.ID == "" {
		return HostedVideo{}, services.Wrap(services.ErrExternalTool, "uploading", "register video", "host returned no video id", nil)
	}
	target := session.UploadURL
	if target == "" {
		target = "videos/" + url.PathEscape(session.ID) + "/content"
	}
	err := h.retry.Do(ctx, "upload video", func(ctx context.Context) error {
		file, err := os.Open(path)
		if err != nil {
			return retry.Permanent(services.Wrap(services.ErrNotFound, "uploading", "open clip", path, err))
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			return retry.Permanent(err)
		}
		req, err := h.newRequest(ctx, http.MethodPut, target, file)
		if err != nil {
			return retry.Permanent(err)
		}
		req.ContentLength = info.Size()
		req.Header.Set("Content-Type", contentType(path))
		return h.send(req, nil)
	})
	if err != nil {
		return HostedVideo{}, hostError("upload video", err)
	}
	return session.HostedVideo, nil
}

// SetPrivacy changes the visibility of a hosted video.
func (h *HTTPHost) SetPrivacy(ctx context.Context, id, privacy string) error {
	body := map[string]string{"privacy": privacy}
	return h.doJSON(ctx, "set privacy", http.MethodPatch, "videos/"+url.PathEscape(id), body, nil)
}

type playlist struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// EnsurePlaylist returns the id of the playlist named title, creating it
// when the host has none.
func (h *HTTPHost) EnsurePlaylist(ctx context.Context, title, folder string) (string, error) {
	var listing struct {
		Playlists []playlist `json:"playlists"`
	}
	if err := h.doJSON(ctx, "find playlist", http.MethodGet, "playlists?title="+url.QueryEscape(title), nil, &listing); err != nil {
		return "", err
	}
	for _, p := range listing.Playlists {
		if p.Title == title && p.ID != "" {
			return p.ID, nil
		}
	}
	var created playlist
	body := map[string]string{"title": title, "folder": folder, "privacy": PrivacyUnlisted}
	if err := h.doJSON(ctx, "create playlist", http.MethodPost, "playlists", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", services.Wrap(services.ErrExternalTool, "uploading", "create playlist", "host returned no playlist id", nil)
	}
	return created.ID, nil
}

// AddToPlaylist appends a video to a playlist.
func (h *HTTPHost) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	body := map[string]string{"video_id": videoID}
	return h.doJSON(ctx, "add to playlist", http.MethodPost, "playlists/"+url.PathEscape(playlistID)+"/items", body, nil)
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(req *http.Request) { req.Header.Set(key, value) }
}

func (h *HTTPHost) doJSON(ctx context.Context, op, method, ref string, body, out any, opts ...requestOption) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = data
	}
	err := h.retry.Do(ctx, op, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := h.newRequest(ctx, method, ref, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for _, opt := range opts {
			opt(req)
		}
		return h.send(req, out)
	})
	if err != nil {
		return hostError(op, err)
	}
	return nil
}

func (h *HTTPHost) newRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	target, err := h.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", ref, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", hostUserAgent)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	return req, nil
}

func (h *HTTPHost) send(req *http.Request, out any) error {
	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := retry.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func hostError(op string, err error) error {
	if err == nil {
		return nil
	}
	if services.FailureKind(err) != "unknown" {
		return err
	}
	if retry.IsRetryable(err) {
		return services.Wrap(services.ErrTransient, "uploading", op, "video host unavailable", err)
	}
	return services.Wrap(services.ErrExternalTool, "uploading", op, "video host rejected request", err)
}
