package callview

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/carefollow/callboard/internal/structs"
)

// Filters selects which calls are shown. A call is shown only if its
// status, direction and template title are all selected. An empty selection
// hides every call.
type Filters struct {
	Status        []structs.Status `json:"status"`
	Direction     []string         `json:"direction"`
	TemplateTitle []string         `json:"templateTitle"`

	// From and To optionally restrict the date of the call. Both bounds
	// are inclusive.
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// DefaultFilters returns filters that select every status, both directions
// and every template title used by views.
func DefaultFilters(views []structs.CallView) Filters {
	f := Filters{
		Status:    slices.Clone(structs.AllStatuses),
		Direction: []string{structs.DirectionInbound, structs.DirectionOutbound},
	}

	seen := make(map[string]struct{})
	for _, v := range views {
		if _, ok := seen[v.TemplateTitle]; ok {
			continue
		}

		seen[v.TemplateTitle] = struct{}{}
		f.TemplateTitle = append(f.TemplateTitle, v.TemplateTitle)
	}

	sort.Strings(f.TemplateTitle)

	return f
}

// Match reports whether v passes the filters.
func (f Filters) Match(v structs.CallView) bool {
	if !slices.Contains(f.Status, v.Status) {
		return false
	}

	if !slices.Contains(f.Direction, v.Direction) {
		return false
	}

	if !slices.Contains(f.TemplateTitle, v.TemplateTitle) {
		return false
	}

	if f.From != nil || f.To != nil {
		if v.FullDate == nil {
			return false
		}

		if f.From != nil && v.FullDate.Before(*f.From) {
			return false
		}

		if f.To != nil && v.FullDate.After(*f.To) {
			return false
		}
	}

	return true
}

// Process filters views, groups them by calendar day and sorts them for
// display. Groups are ordered by date, newest first. Calls within a group are
// ordered by their formatted time, latest first. Views without a date cannot
// be placed and are dropped.
func Process(views []structs.CallView, f Filters, lang string) []structs.DateGroup {
	var (
		groups []structs.DateGroup
		index  = make(map[string]int)
	)

	for _, v := range views {
		if !f.Match(v) || v.FullDate == nil {
			continue
		}

		d := *v.FullDate
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		key := day.Format("2006-01-02")

		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, structs.DateGroup{
				Label: LongDate(day, lang),
				Date:  day,
			})
		}

		groups[idx].Calls = append(groups[idx].Calls, v)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date.After(groups[j].Date)
	})

	for _, g := range groups {
		sort.SliceStable(g.Calls, func(i, j int) bool {
			return clockMinutes(g.Calls[i].FormattedTimestamp) > clockMinutes(g.Calls[j].FormattedTimestamp)
		})
	}

	return groups
}

// clockMinutes returns the minutes since midnight of an HH:MM value or zero
// if it cannot be parsed.
func clockMinutes(s string) int {
	h, m, ok := ParseClock(s)
	if !ok {
		return 0
	}

	return h*60 + m
}

var (
	weekdaysEN = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthsEN   = [...]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"}
	monthsES   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// NormalizeLanguage maps a language tag to one of the supported UI
// languages, "en" or "es".
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "es" || strings.HasPrefix(lang, "es-") || strings.HasPrefix(lang, "es_") {
		return "es"
	}

	return "en"
}

// LongDate formats t as a long date label, using es-ES conventions for
// Spanish and en-US conventions otherwise.
func LongDate(t time.Time, lang string) string {
	if NormalizeLanguage(lang) == "es" {
		return fmt.Sprintf("%s, %d de %s de %d", weekdaysES[t.Weekday()], t.Day(), monthsES[t.Month()-1], t.Year())
	}

	return fmt.Sprintf("%s, %s %d, %d", weekdaysEN[t.Weekday()], monthsEN[t.Month()-1], t.Day(), t.Year())
}
