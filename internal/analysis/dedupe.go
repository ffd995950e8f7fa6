package analysis

import "sort"

// Deduplicate sorts candidates by start and folds every candidate starting
// within threshold seconds of the current window's end into it. The window
// end is extended, and label, confidence, peak and player follow the higher
// confidence candidate. Windows fed by more than one source become
// SourceMerged. Invalid windows (End <= Start) are dropped. Running
// Deduplicate on its own output is a no-op.
func Deduplicate(candidates []Candidate, threshold float64) []Candidate {
	if threshold < 0 {
		threshold = 0
	}
	sorted := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !(c.End > c.Start) {
			continue
		}
		sorted = append(sorted, normalizeSources(c))
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var out []Candidate
	for _, next := range sorted {
		if len(out) == 0 {
			out = append(out, next)
			continue
		}
		acc := &out[len(out)-1]
		if next.Start > acc.End+threshold {
			out = append(out, next)
			continue
		}
		if next.End > acc.End {
			acc.End = next.End
		}
		if next.Confidence > acc.Confidence {
			acc.Confidence = next.Confidence
			acc.Label = next.Label
			acc.Peak = next.Peak
			if next.Player != "" {
				acc.Player = next.Player
			}
			if next.Description != "" {
				acc.Description = next.Description
			}
		}
		if acc.Player == "" {
			acc.Player = next.Player
		}
		acc.Sources = unionSources(acc.Sources, next.Sources)
		if len(acc.Sources) > 1 {
			acc.Source = SourceMerged
		}
	}
	return out
}

func normalizeSources(c Candidate) Candidate {
	if len(c.Sources) == 0 {
		c.Sources = []Source{c.Source}
	} else {
		c.Sources = unionSources(nil, c.Sources)
	}
	if len(c.Sources) > 1 {
		c.Source = SourceMerged
	}
	return c
}

func unionSources(a, b []Source) []Source {
	seen := make(map[Source]struct{}, len(a)+len(b))
	out := make([]Source, 0, len(a)+len(b))
	for _, list := range [][]Source{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return sourceRank(out[i]) < sourceRank(out[j]) })
	return out
}
