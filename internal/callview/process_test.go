package callview

import (
	"testing"
	"time"

	"github.com/carefollow/callboard/internal/structs"
)

func view(id string, status structs.Status, date time.Time, clock string) structs.CallView {
	d := date
	return structs.CallView{
		ID:                 id,
		Status:             status,
		Direction:          structs.DirectionOutbound,
		TemplateTitle:      "Post-op",
		FullDate:           &d,
		FormattedTimestamp: clock,
	}
}

func ids(calls []structs.CallView) []string {
	res := make([]string, len(calls))
	for idx, c := range calls {
		res[idx] = c.ID
	}

	return res
}

func TestProcessEmptyFilterExcludesAll(t *testing.T) {
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	views := []structs.CallView{
		view("a", structs.StatusComplete, day, "10:00"),
		view("b", structs.StatusFailed, day, "11:00"),
	}

	full := DefaultFilters(views)

	cases := []struct {
		Name string
		F    Filters
	}{
		{"no status", Filters{Direction: full.Direction, TemplateTitle: full.TemplateTitle}},
		{"no direction", Filters{Status: full.Status, TemplateTitle: full.TemplateTitle}},
		{"no template", Filters{Status: full.Status, Direction: full.Direction}},
		{"nothing", Filters{}},
	}

	for _, c := range cases {
		if res := Process(views, c.F, "en"); len(res) != 0 {
			t.Errorf("%s: expected no groups, got %d", c.Name, len(res))
		}
	}

	if res := Process(views, full, "en"); len(res) != 1 || len(res[0].Calls) != 2 {
		t.Errorf("expected default filters to select everything, got %+v", res)
	}
}

func TestProcessFilters(t *testing.T) {
	day := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

	inbound := view("in", structs.StatusComplete, day, "10:00")
	inbound.Direction = structs.DirectionInbound

	other := view("other", structs.StatusComplete, day, "09:00")
	other.TemplateTitle = "Diabetes"

	views := []structs.CallView{
		view("complete", structs.StatusComplete, day, "11:00"),
		view("failed", structs.StatusFailed, day, "12:00"),
		inbound,
		other,
	}

	f := Filters{
		Status:        []structs.Status{structs.StatusComplete},
		Direction:     []string{structs.DirectionOutbound},
		TemplateTitle: []string{"Post-op"},
	}

	res := Process(views, f, "en")
	if len(res) != 1 {
		t.Fatalf("expected one group, got %d", len(res))
	}

	if got := ids(res[0].Calls); len(got) != 1 || got[0] != "complete" {
		t.Errorf("unexpected calls %v", got)
	}

	from := day.Add(time.Hour)
	f = DefaultFilters(views)
	f.From = &from

	if res := Process(views, f, "en"); len(res) != 0 {
		t.Errorf("expected date range to exclude all calls, got %+v", res)
	}
}

func TestProcessGroupsAndSorts(t *testing.T) {
	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan2 := jan1.AddDate(0, 0, 1)

	noDate := view("nodate", structs.StatusComplete, jan1, "23:00")
	noDate.FullDate = nil

	views := []structs.CallView{
		view("jan1-early", structs.StatusComplete, jan1, "08:00"),
		view("jan1-late", structs.StatusComplete, jan1, "17:45"),
		view("jan2-unparsable", structs.StatusComplete, jan2, ""),
		view("jan2-noon", structs.StatusComplete, jan2, "12:00"),
		noDate,
	}

	res := Process(views, DefaultFilters(views), "en")
	if len(res) != 2 {
		t.Fatalf("expected two groups, got %d", len(res))
	}

	if res[0].Label != "Tuesday, January 2, 2024" || res[1].Label != "Monday, January 1, 2024" {
		t.Errorf("expected groups newest first, got %q, %q", res[0].Label, res[1].Label)
	}

	if got := ids(res[0].Calls); got[0] != "jan2-noon" || got[1] != "jan2-unparsable" {
		t.Errorf("unexpected order in first group: %v", got)
	}

	if got := ids(res[1].Calls); got[0] != "jan1-late" || got[1] != "jan1-early" {
		t.Errorf("unexpected order in second group: %v", got)
	}
}

func TestLongDate(t *testing.T) {
	d := time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		Lang string
		E    string
	}{
		{"en", "Wednesday, March 6, 2024"},
		{"", "Wednesday, March 6, 2024"},
		{"es", "miércoles, 6 de marzo de 2024"},
		{"es-ES", "miércoles, 6 de marzo de 2024"},
	}

	for _, c := range cases {
		if res := LongDate(d, c.Lang); res != c.E {
			t.Errorf("%q: unexpected label %q != %q", c.Lang, res, c.E)
		}
	}
}

func TestBuild(t *testing.T) {
	n := testNormalizer()

	board := Board{
		Queued: []*structs.QueuedCall{
			{ID: "q", ScheduledFor: structs.Schedule{Date: "2024-01-02", Time: "09:00"}},
		},
		Conversations: []*structs.Conversation{
			processed(structs.Outcome{ID: "c", RecordingURL: "x", CompletedExperience: true, CreatedAt: "2024-01-01T10:00:00Z"}),
		},
	}

	res := n.Build(board, nil, "en")
	if len(res) != 2 || res[0].Calls[0].ID != "q" || res[1].Calls[0].ID != "c" {
		t.Fatalf("unexpected result %+v", res)
	}

	res = n.Build(board, &Filters{}, "en")
	if len(res) != 0 {
		t.Errorf("expected explicit empty filters to hide everything")
	}

	clone := board.Clone()
	clone.Queued[0].Viewed = true
	if board.Queued[0].Viewed {
		t.Errorf("expected clone to be independent")
	}

	if r := board.Find(structs.KindProcessed, "c"); r == nil {
		t.Errorf("expected to find conversation")
	}
}
