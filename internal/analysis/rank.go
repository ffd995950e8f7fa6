package analysis

import (
	"sort"

	"matchreel/internal/notes"
)

// Rank drops candidates below minConfidence and orders the rest by
// confidence, then source priority (merged, note, visual, motion, audio),
// then start time. It returns the ranked list and the number discarded.
func Rank(candidates []Candidate, minConfidence float64) ([]Candidate, int) {
	ranked := make([]Candidate, 0, len(candidates))
	discarded := 0
	for _, c := range candidates {
		if c.Confidence < minConfidence {
			discarded++
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankLess(ranked[i], ranked[j])
	})
	return ranked, discarded
}

func rankLess(a, b Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if ra, rb := sourceRank(a.Source), sourceRank(b.Source); ra != rb {
		return ra < rb
	}
	return a.Start < b.Start
}

// LimitByPriority keeps at most max candidates, preferring higher event
// priority (goal over save over chance, and so on) and then rank order. The
// survivors keep their rank order. max <= 0 keeps everything.
func LimitByPriority(ranked []Candidate, max int) []Candidate {
	if max <= 0 || len(ranked) <= max {
		return ranked
	}
	idx := make([]int, len(ranked))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		pi, pj := notes.Priority(ranked[idx[i]].Label), notes.Priority(ranked[idx[j]].Label)
		if pi != pj {
			return pi > pj
		}
		return idx[i] < idx[j]
	})
	keep := make(map[int]struct{}, max)
	for _, i := range idx[:max] {
		keep[i] = struct{}{}
	}
	out := make([]Candidate, 0, max)
	for i, c := range ranked {
		if _, ok := keep[i]; ok {
			out = append(out, c)
		}
	}
	return out
}
