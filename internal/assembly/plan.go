package assembly

import (
	"math"
	"sort"
	"strings"

	"matchreel/internal/analysis"
	"matchreel/internal/queue"
)

// manualLabel marks caller-supplied windows.
const manualLabel = "manual"

// PlanWindows merges manual cuts with automatic highlights and returns the
// windows to cut in chronological order.
func PlanWindows(req Request) []Window {
	manual := make([]Window, 0, len(req.ManualCuts))
	for _, cut := range req.ManualCuts {
		if !(cut.End > cut.Start) {
			continue
		}
		manual = append(manual, Window{
			Start:       cut.Start,
			End:         cut.End,
			Peak:        (cut.Start + cut.End) / 2,
			Label:       manualLabel,
			Description: cut.Description,
			Confidence:  1,
			Manual:      true,
		})
	}

	windows := append([]Window(nil), manual...)
	for _, h := range req.Highlights {
		if !h.Valid() || overlapsAny(h, req.ManualCuts) {
			continue
		}
		w := fromCandidate(h)
		w = LimitDuration(w, req.MinClipSeconds, req.MaxClipSeconds, req.VideoDuration)
		if w.End > w.Start {
			windows = append(windows, w)
		}
	}
	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].Start != windows[j].Start {
			return windows[i].Start < windows[j].Start
		}
		return windows[i].End < windows[j].End
	})
	return windows
}

func fromCandidate(c analysis.Candidate) Window {
	peak := c.Peak
	if peak < c.Start || peak > c.End {
		peak = (c.Start + c.End) / 2
	}
	return Window{
		Start:       c.Start,
		End:         c.End,
		Peak:        peak,
		Label:       c.Label,
		Player:      c.Player,
		Description: c.Description,
		Confidence:  c.Confidence,
	}
}

func overlapsAny(c analysis.Candidate, cuts []queue.ManualCut) bool {
	for _, cut := range cuts {
		if c.Start < cut.End && cut.Start < c.End {
			return true
		}
	}
	return false
}

// LimitDuration extends windows shorter than minSeconds (end first, then
// start when the end hits the video length) and shrinks windows longer than
// maxSeconds symmetrically around the peak. Non-positive limits are ignored
// and the result always keeps End > Start.
func LimitDuration(w Window, minSeconds, maxSeconds, videoDuration float64) Window {
	if videoDuration <= 0 {
		videoDuration = math.Inf(1)
	}
	if maxSeconds > 0 && minSeconds > maxSeconds {
		minSeconds = maxSeconds
	}
	if minSeconds > 0 && w.Duration() < minSeconds {
		w.End = math.Min(videoDuration, w.Start+minSeconds)
		if w.Duration() < minSeconds {
			w.Start = math.Max(0, w.End-minSeconds)
		}
	}
	if maxSeconds > 0 && w.Duration() > maxSeconds {
		start := w.Peak - maxSeconds/2
		start = math.Max(start, w.Start)
		start = math.Min(start, w.End-maxSeconds)
		w.Start = start
		w.End = start + maxSeconds
	}
	return w
}

// PlayerGroups returns windows grouped by player name, players sorted.
func PlayerGroups(windows []Window) ([]string, map[string][]Window) {
	groups := make(map[string][]Window)
	canonical := make(map[string]string)
	for _, w := range windows {
		name := strings.TrimSpace(w.Player)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := canonical[key]; !ok {
			canonical[key] = name
		}
		groups[canonical[key]] = append(groups[canonical[key]], w)
	}
	players := make([]string, 0, len(groups))
	for name := range groups {
		players = append(players, name)
	}
	sort.Strings(players)
	return players, groups
}

func totalDuration(windows []Window) float64 {
	var total float64
	for _, w := range windows {
		total += w.Duration()
	}
	return total
}
