package notes_test

import (
	"testing"

	"matchreel/internal/notes"
)

func TestParseNotesExtractsActions(t *testing.T) {
	text := `
15:30 - Smith goal
70:05 Yellow card for Jones
1:02:10 - Great save by Keeper
half time chat
03:12 | Brown shot wide
`
	timeline, report := notes.Parse(text)
	if report.Lines != 5 || report.Parsed != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != 5 {
		t.Fatalf("expected line 5 skipped, got %v", report.Skipped)
	}

	want := []struct {
		ts     float64
		kind   notes.Kind
		player string
	}{
		{192, notes.KindChance, "Brown"},
		{930, notes.KindGoal, "Smith"},
		{3730, notes.KindSave, "Keeper"},
		{4205, notes.KindCard, ""},
	}
	if len(timeline) != len(want) {
		t.Fatalf("expected %d actions, got %d: %+v", len(want), len(timeline), timeline)
	}
	for i, w := range want {
		got := timeline[i]
		if got.Timestamp != w.ts || got.Kind != w.kind || got.Player != w.player {
			t.Fatalf("action %d = %+v, want ts=%v kind=%s player=%q", i, got, w.ts, w.kind, w.player)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "15:30", want: 930},
		{in: "95:00", want: 5700},
		{in: "1:02:03", want: 3723},
		{in: "10:75", wantErr: true},
		{in: "1:75:00", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := notes.ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestTimelinePlayersDistinct(t *testing.T) {
	timeline := notes.Timeline{
		{Timestamp: 10, Player: "Smith"},
		{Timestamp: 20, Player: "smith"},
		{Timestamp: 30, Player: "Jones"},
		{Timestamp: 40},
	}
	players := timeline.Players()
	if len(players) != 2 || players[0] != "Smith" || players[1] != "Jones" {
		t.Fatalf("unexpected players %v", players)
	}
}

func TestPriorityAndRelated(t *testing.T) {
	if notes.Priority("goal") <= notes.Priority("save") {
		t.Fatal("goal should outrank save")
	}
	if notes.Priority("unknown") != 0 {
		t.Fatal("unknown labels should score zero")
	}
	if !notes.Related("foul", "card") || !notes.Related("shot", "goal") {
		t.Fatal("expected related labels")
	}
	if notes.Related("save", "foul") {
		t.Fatal("save and foul should not be related")
	}
}

func TestFormatClock(t *testing.T) {
	if got := notes.FormatClock(930); got != "15:30" {
		t.Fatalf("FormatClock = %q", got)
	}
}
