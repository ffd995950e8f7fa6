package analysis

import "matchreel/internal/notes"

// Label describes a visual action class: the detectors that must be
// significant, the fused confidence it needs, and the clip window around the
// peak frame.
type Label struct {
	Name          string
	Requires      []string
	MinConfidence float64
	Before        float64
	After         float64
}

// Window is the clip padding around a note timestamp.
type Window struct {
	Before float64
	After  float64
}

// LabelCatalogue is checked in order; the first match wins.
var LabelCatalogue = []Label{
	{Name: "goal", Requires: []string{DetectorGoalArea, DetectorCrowd, DetectorBall}, MinConfidence: 0.75, Before: 10, After: 15},
	{Name: "shot", Requires: []string{DetectorGoalArea, DetectorBall}, MinConfidence: 0.65, Before: 6, After: 8},
	{Name: "save", Requires: []string{DetectorGoalArea, DetectorPlayerActivity}, MinConfidence: 0.65, Before: 6, After: 8},
	{Name: "celebration", Requires: []string{DetectorCrowd, DetectorPlayerActivity}, MinConfidence: 0.6, Before: 4, After: 12},
	{Name: "attack", Requires: []string{DetectorPlayerActivity, DetectorBall}, MinConfidence: 0.6, Before: 5, After: 7},
}

// FallbackLabel applies to highlight frames that match no catalogue entry.
var FallbackLabel = Label{Name: "action", MinConfidence: 0.6, Before: 5, After: 5}

// motionWindow pads sustained motion runs.
var motionWindow = Window{Before: 3, After: 5}

// NoteWindows maps note kinds to clip padding.
var NoteWindows = map[notes.Kind]Window{
	notes.KindGoal:         {Before: 8, After: 18},
	notes.KindPenalty:      {Before: 10, After: 20},
	notes.KindSave:         {Before: 6, After: 10},
	notes.KindCard:         {Before: 6, After: 10},
	notes.KindChance:       {Before: 6, After: 10},
	notes.KindFoul:         {Before: 5, After: 8},
	notes.KindCorner:       {Before: 5, After: 12},
	notes.KindSubstitution: {Before: 3, After: 6},
	notes.KindCelebration:  {Before: 4, After: 12},
	notes.KindOther:        {Before: 5, After: 10},
}

// NoteWindow returns the padding for kind, defaulting to the "other" window.
func NoteWindow(kind notes.Kind) Window {
	if w, ok := NoteWindows[kind]; ok {
		return w
	}
	return NoteWindows[notes.KindOther]
}

// Classify picks the catalogue label for a highlight frame.
func Classify(score FrameScore) Label {
	for _, label := range LabelCatalogue {
		if score.Confidence < label.MinConfidence {
			continue
		}
		matched := true
		for _, required := range label.Requires {
			if !score.IsSignificant(required) {
				matched = false
				break
			}
		}
		if matched {
			return label
		}
	}
	return FallbackLabel
}
