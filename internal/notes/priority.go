package notes

var priorityScores = map[string]int{
	string(KindGoal):         10,
	string(KindPenalty):      9,
	"big_save":               8,
	string(KindSave):         7,
	string(KindChance):       6,
	"shot":                   6,
	string(KindCard):         5,
	string(KindFoul):         4,
	string(KindCelebration):  3,
	string(KindCorner):       3,
	"attack":                 2,
	string(KindSubstitution): 1,
	"action":                 1,
	string(KindOther):        1,
}

var relatedLabels = [][]string{
	{string(KindGoal), string(KindPenalty), string(KindCelebration)},
	{string(KindSave), "big_save"},
	{string(KindChance), "shot", string(KindGoal)},
	{string(KindFoul), string(KindCard)},
}

// Priority ranks an event label by importance for clip selection. Unknown
// labels score zero.
func Priority(label string) int {
	return priorityScores[label]
}

// Related reports whether two event labels describe the same kind of moment.
func Related(a, b string) bool {
	if a == b {
		return true
	}
	for _, group := range relatedLabels {
		var hasA, hasB bool
		for _, label := range group {
			if label == a {
				hasA = true
			}
			if label == b {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}
