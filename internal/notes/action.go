package notes

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a note action.
type Kind string

const (
	KindGoal         Kind = "goal"
	KindPenalty      Kind = "penalty"
	KindSave         Kind = "save"
	KindCard         Kind = "card"
	KindChance       Kind = "chance"
	KindFoul         Kind = "foul"
	KindCorner       Kind = "corner"
	KindSubstitution Kind = "substitution"
	KindCelebration  Kind = "celebration"
	KindOther        Kind = "other"
)

// Action is a single parsed match event.
type Action struct {
	Timestamp   float64 `json:"timestamp"`
	Kind        Kind    `json:"kind"`
	Description string  `json:"description"`
	Player      string  `json:"player,omitempty"`
	Line        int     `json:"line,omitempty"`
}

// Clock renders the action timestamp as match clock text (MM:SS).
func (a Action) Clock() string {
	return FormatClock(a.Timestamp)
}

// Timeline is an ordered list of note actions.
type Timeline []Action

// Sorted returns a copy ordered by timestamp; ties keep input order.
func (t Timeline) Sorted() Timeline {
	out := make(Timeline, len(t))
	copy(out, t)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Timestamps returns the timestamps of every action.
func (t Timeline) Timestamps() []float64 {
	out := make([]float64, 0, len(t))
	for _, action := range t {
		out = append(out, action.Timestamp)
	}
	return out
}

// Players returns the distinct player names in first-seen order.
func (t Timeline) Players() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, action := range t {
		name := strings.TrimSpace(action.Player)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

// FormatClock renders seconds as MM:SS (minutes may exceed 59).
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
