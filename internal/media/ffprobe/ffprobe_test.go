package ffprobe

import "testing"

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Width: 1920, Height: 1080, AvgFrameRate: "30000/1001", Duration: "5400.2"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "5400.5", Size: "1048576"},
	}
	if video, ok := result.VideoStream(); !ok || video.Width != 1920 {
		t.Fatalf("expected video stream, got %+v", video)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if got := result.DurationSeconds(); got != 5400.5 {
		t.Fatalf("unexpected duration %v", got)
	}
	if got := result.SizeBytes(); got != 1048576 {
		t.Fatalf("unexpected size %d", got)
	}
	if got := result.FrameRate(); got < 29.96 || got > 29.98 {
		t.Fatalf("unexpected frame rate %v", got)
	}
}

func TestResultFallbacks(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", RFrameRate: "25/1", AvgFrameRate: "0/0", Duration: "90"}},
		Format:  Format{Duration: "N/A", Size: "-1"},
	}
	if got := result.DurationSeconds(); got != 90 {
		t.Fatalf("expected stream duration fallback, got %v", got)
	}
	if got := result.FrameRate(); got != 25 {
		t.Fatalf("expected r_frame_rate fallback, got %v", got)
	}
	if result.SizeBytes() != 0 {
		t.Fatal("expected negative size to clamp to zero")
	}
	if result.HasAudio() {
		t.Fatal("expected no audio")
	}
}
