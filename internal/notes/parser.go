package notes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Parser normalises raw note text into a Timeline.
type Parser interface {
	Parse(text string) (Timeline, Report)
}

// Report summarises a parse run.
type Report struct {
	Lines   int   `json:"lines"`
	Parsed  int   `json:"parsed"`
	Skipped []int `json:"skipped,omitempty"`
}

// LineParser reads one action per line: "MM:SS - text", "MM:SS text" or
// "H:MM:SS - text". Lines without a leading clock are skipped.
type LineParser struct{}

var lineRE = regexp.MustCompile(`^\s*(\d{1,3}(?::\d{1,2}){1,2})\s*['’]?\s*(?:[-–—:|]\s*)?(.*)$`)

type kindKeyword struct {
	kind     Kind
	keywords []string
}

var kindKeywords = []kindKeyword{
	{KindPenalty, []string{"penalty", "pen"}},
	{KindGoal, []string{"goal", "scores", "scored"}},
	{KindSave, []string{"save", "saves", "saved"}},
	{KindCard, []string{"card", "booking", "booked", "red", "yellow"}},
	{KindSubstitution, []string{"substitution", "sub", "subbed"}},
	{KindCorner, []string{"corner"}},
	{KindFoul, []string{"foul", "fouled"}},
	{KindChance, []string{"chance", "shot", "miss", "missed", "header", "woodwork", "post", "crossbar"}},
	{KindCelebration, []string{"celebration", "celebrates"}},
}

var nonPlayerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "great": {}, "big": {}, "huge": {}, "first": {},
	"second": {}, "own": {}, "late": {}, "early": {}, "home": {}, "away": {},
}

// Parse implements Parser.
func (LineParser) Parse(text string) (Timeline, Report) {
	var (
		timeline Timeline
		report   Report
	)
	for idx, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		report.Lines++
		action, ok := parseLine(line)
		if !ok {
			report.Skipped = append(report.Skipped, idx+1)
			continue
		}
		action.Line = idx + 1
		timeline = append(timeline, action)
		report.Parsed++
	}
	return timeline.Sorted(), report
}

// Parse is a convenience wrapper around LineParser.
func Parse(text string) (Timeline, Report) {
	return LineParser{}.Parse(text)
}

func parseLine(line string) (Action, bool) {
	match := lineRE.FindStringSubmatch(line)
	if match == nil {
		return Action{}, false
	}
	ts, err := ParseClock(match[1])
	if err != nil {
		return Action{}, false
	}
	description := strings.TrimSpace(match[2])
	words := splitWords(description)
	kind, keywordIdx := inferKind(words)
	return Action{
		Timestamp:   ts,
		Kind:        kind,
		Description: description,
		Player:      inferPlayer(words, keywordIdx),
	}, true
}

// ParseClock converts "MM:SS" or "H:MM:SS" into seconds.
func ParseClock(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("clock %q: expected MM:SS or H:MM:SS", value)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("clock %q: invalid component %q", value, part)
		}
		nums[i] = n
	}
	if nums[len(nums)-1] > 59 {
		return 0, fmt.Errorf("clock %q: seconds out of range", value)
	}
	if len(nums) == 2 {
		return float64(nums[0]*60 + nums[1]), nil
	}
	if nums[1] > 59 {
		return 0, fmt.Errorf("clock %q: minutes out of range", value)
	}
	return float64(nums[0]*3600 + nums[1]*60 + nums[2]), nil
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' || r == '.')
	})
}

func inferKind(words []string) (Kind, int) {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(strings.Trim(w, ".-'"))
	}
	for _, candidate := range kindKeywords {
		for i, w := range lowered {
			for _, keyword := range candidate.keywords {
				if w == keyword {
					return candidate.kind, i
				}
			}
		}
	}
	return KindOther, -1
}

// inferPlayer picks the capitalised words directly before the keyword, or
// after "by" when the note reads "Goal by Smith".
func inferPlayer(words []string, keywordIdx int) string {
	if keywordIdx > 0 {
		var name []string
		for i := keywordIdx - 1; i >= 0 && len(name) < 3; i-- {
			if !isNameWord(words[i]) {
				break
			}
			name = append([]string{strings.Trim(words[i], "-'")}, name...)
		}
		if len(name) > 0 {
			return strings.TrimSuffix(strings.Join(name, " "), "'s")
		}
	}
	for i, w := range words {
		if strings.EqualFold(w, "by") && i+1 < len(words) && isNameWord(words[i+1]) {
			name := []string{words[i+1]}
			if i+2 < len(words) && isNameWord(words[i+2]) {
				name = append(name, words[i+2])
			}
			return strings.Join(name, " ")
		}
	}
	return ""
}

func isNameWord(word string) bool {
	word = strings.Trim(word, "-'")
	if word == "" {
		return false
	}
	if _, skip := nonPlayerWords[strings.ToLower(word)]; skip {
		return false
	}
	first := []rune(word)[0]
	return unicode.IsUpper(first)
}
