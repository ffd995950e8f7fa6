package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"matchreel/internal/notifications"
)

type fakeHost struct {
	mu          sync.Mutex
	uploads     []VideoMeta
	failTitles  map[string]error
	failPrivacy map[string]error
	privacy     map[string]string
	playlists   map[string]string
	items       map[string][]string
	next        int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		failTitles:  map[string]error{},
		failPrivacy: map[string]error{},
		privacy:     map[string]string{},
		playlists:   map[string]string{},
		items:       map[string][]string{},
	}
}

func (h *fakeHost) Upload(_ context.Context, path string, meta VideoMeta) (HostedVideo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failTitles[meta.Title]; err != nil {
		return HostedVideo{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return HostedVideo{}, err
	}
	h.next++
	id := fmt.Sprintf("vid-%d", h.next)
	h.uploads = append(h.uploads, meta)
	h.privacy[id] = meta.Privacy
	return HostedVideo{ID: id, URL: "https://videos.example.com/" + id}, nil
}

func (h *fakeHost) SetPrivacy(_ context.Context, id, privacy string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failPrivacy[id]; err != nil {
		return err
	}
	if _, ok := h.privacy[id]; !ok {
		return errors.New("unknown video")
	}
	h.privacy[id] = privacy
	return nil
}

func (h *fakeHost) EnsurePlaylist(_ context.Context, title, _ string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.playlists[title]; ok {
		return id, nil
	}
	id := fmt.Sprintf("pl-%d", len(h.playlists)+1)
	h.playlists[title] = id
	return id, nil
}

func (h *fakeHost) AddToPlaylist(_ context.Context, playlistID, videoID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[playlistID] = append(h.items[playlistID], videoID)
	return nil
}

func (h *fakeHost) uploadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uploads)
}

type memArchive struct {
	mu         sync.Mutex
	objects    map[string]ArchiveObject
	capacity   int64
	failDelete map[string]bool
	clock      func() time.Time
}

func newMemArchive(capacity int64, clock func() time.Time) *memArchive {
	return &memArchive{objects: map[string]ArchiveObject{}, capacity: capacity, failDelete: map[string]bool{}, clock: clock}
}

func (a *memArchive) add(key string, size int64, modified time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = ArchiveObject{Key: key, Size: size, LastModified: modified}
}

func (a *memArchive) Put(_ context.Context, key, path string) (ArchiveObject, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ArchiveObject{}, err
	}
	obj := ArchiveObject{Key: key, Size: info.Size(), LastModified: a.clock()}
	a.mu.Lock()
	a.objects[key] = obj
	a.mu.Unlock()
	return obj, nil
}

func (a *memArchive) List(context.Context) ([]ArchiveObject, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArchiveObject, 0, len(a.objects))
	for _, obj := range a.objects {
		out = append(out, obj)
	}
	SortOldestFirst(out)
	return out, nil
}

func (a *memArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failDelete[key] {
		return errors.New("access denied")
	}
	delete(a.objects, key)
	return nil
}

func (a *memArchive) Usage(ctx context.Context) (Usage, error) {
	objects, _ := a.List(ctx)
	return usageOf(objects, a.capacity), nil
}

func (a *memArchive) keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.objects))
	for k := range a.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = payload
	return nil
}

func (n *recordingNotifier) snapshot() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(250 * time.Millisecond)
		return now
	}
}
