package callview

import (
	"math"
	"strings"
	"time"

	"github.com/carefollow/callboard/internal/structs"
)

// Profile configures which experience arguments feed the canonical view
// fields. Different dashboards store the template under different keys.
type Profile struct {
	Name            string
	TemplateKey     string
	PatientNameKey  string
	UnknownPatient  string
	DefaultTemplate string
	QueuedDirection string
}

var (
	// CallsProfile is used by the follow-up calls dashboard.
	CallsProfile = Profile{
		Name:            "calls",
		TemplateKey:     "template_title",
		PatientNameKey:  "patient_name",
		UnknownPatient:  "Unknown",
		QueuedDirection: structs.DirectionOutbound,
	}

	// RemoteMonitoringProfile is used by the remote monitoring dashboard,
	// where the template is the monitoring program the patient is enrolled in.
	RemoteMonitoringProfile = Profile{
		Name:            "remote-monitoring",
		TemplateKey:     "monitoring_program",
		PatientNameKey:  "patient_name",
		UnknownPatient:  "Unknown",
		DefaultTemplate: "Remote monitoring",
		QueuedDirection: structs.DirectionOutbound,
	}
)

// ProfileByName returns the profile with the given name. An empty name
// selects CallsProfile.
func ProfileByName(name string) (Profile, bool) {
	switch name {
	case "", CallsProfile.Name:
		return CallsProfile, true
	case RemoteMonitoringProfile.Name:
		return RemoteMonitoringProfile, true
	}

	return Profile{}, false
}

// Normalizer converts raw call records into CallViews.
type Normalizer struct {
	Profile    Profile
	Classifier Classifier
	// Location is used for the formatted timestamp and for zone-less
	// timestamps. Defaults to time.Local.
	Location *time.Location
}

func (n Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}

	return time.Local
}

func (n Normalizer) coerce(v any) (time.Time, bool) {
	return CoerceTimeIn(v, n.location())
}

// Normalize assembles the CallView for raw. The patient roster is only used
// to enrich the patient name and number.
func (n Normalizer) Normalize(raw structs.RawCall, roster []structs.Patient) structs.CallView {
	status, inferred := n.Classifier.classify(raw)

	view := structs.CallView{
		Status:         status,
		StatusInferred: inferred,
		Objectives:     []string{},
	}

	switch v := raw.(type) {
	case *structs.QueuedCall:
		if v != nil {
			n.queued(&view, v, roster)
		}
	case *structs.ActiveCall:
		if v != nil {
			n.active(&view, v, roster)
		}
	case *structs.ProcessedCall:
		if v != nil {
			n.outcome(&view, &v.Outcome, roster)
		}
	case *structs.Conversation:
		if v != nil {
			n.outcome(&view, &v.Outcome, roster)
			n.conversation(&view, v)
		}
	}

	if raw != nil {
		view.Kind = raw.Kind()
	}

	return view
}

func (n Normalizer) common(view *structs.CallView, id, sid string, args structs.ExperienceArgs) {
	view.ID = id
	view.CallSID = sid
	view.TemplateTitle = firstOf(args.Get(n.Profile.TemplateKey), n.Profile.DefaultTemplate)

	if len(args.Objectives) > 0 {
		view.Objectives = append([]string(nil), args.Objectives...)
	}
}

func (n Normalizer) setTime(view *structs.CallView, t time.Time, ok bool) {
	if !ok {
		return
	}

	t = t.In(n.location())
	view.FullDate = &t
	view.FormattedTimestamp = t.Format("15:04")
}

func (n Normalizer) queued(view *structs.CallView, c *structs.QueuedCall, roster []structs.Patient) {
	n.common(view, c.ID, c.CallSID, c.ExperienceArgs)

	patient := ResolvePatient(c.PatientID, roster)
	view.PatientID = c.PatientID
	view.PatientName = n.Profile.patientName(patient, "", c.ExperienceArgs)
	view.UserNumber = n.Profile.patientPhone(patient, c.PhoneNumber, c.ExperienceArgs)
	view.Viewed = c.Viewed
	view.Direction = firstOf(n.Profile.QueuedDirection, structs.DirectionOutbound)

	scheduled, ok := ScheduledTime(c.ScheduledFor, n.location())
	n.setTime(view, scheduled, ok)

	// keep the entered time even if the date could not be parsed.
	if !ok {
		if h, m, valid := ParseClock(c.ScheduledFor.Time); valid {
			view.FormattedTimestamp = time.Date(0, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
		}
	}

	if enqueued, valid := n.coerce(c.EnqueuedAt); valid && ok {
		view.Duration = FormatDuration(scheduled.Sub(enqueued))
	}
}

func (n Normalizer) active(view *structs.CallView, c *structs.ActiveCall, roster []structs.Patient) {
	n.common(view, c.ID, c.CallSID, c.ExperienceArgs)

	patient := ResolvePatient(c.PatientID, roster)
	view.PatientID = c.PatientID
	view.PatientName = n.Profile.patientName(patient, "", c.ExperienceArgs)
	view.UserNumber = n.Profile.patientPhone(patient, c.PhoneNumber, c.ExperienceArgs)
	view.Direction = direction(c.Direction)

	started, ok := n.coerce(c.StartedAt)
	n.setTime(view, started, ok)

	if ok {
		view.Duration = FormatDuration(n.Classifier.now().Sub(started))
	}
}

func (n Normalizer) outcome(view *structs.CallView, c *structs.Outcome, roster []structs.Patient) {
	n.common(view, c.ID, c.CallSID, c.ExperienceArgs)

	patient := ResolvePatient(c.PatientID, roster)
	view.PatientID = c.PatientID
	view.PatientName = n.Profile.patientName(patient, c.PatientName, c.ExperienceArgs)
	view.UserNumber = n.Profile.patientPhone(patient, c.PhoneNumber, c.ExperienceArgs)
	view.Direction = direction(c.Direction)
	view.Viewed = c.Viewed
	view.RecordingURL = c.RecordingURL
	view.SummaryURL = c.SummaryURL
	view.FollowUpSummary = c.FollowUpSummary
	view.DeductedCredits = c.DeductedCredits

	created, ok := n.coerce(c.CreatedAt)
	n.setTime(view, created, ok)

	if finished, valid := n.coerce(c.FinishedAt); valid && ok {
		view.Duration = FormatDuration(finished.Sub(created))
	}
}

func (n Normalizer) conversation(view *structs.CallView, c *structs.Conversation) {
	view.Summary = c.Summary
	view.Completion = Completion(len(c.CompletedGoals), c.Settings)

	if len(view.Objectives) == 0 && len(c.Settings.InitialGoals) > 0 {
		view.Objectives = append([]string(nil), c.Settings.InitialGoals...)
	}
}

// TotalGoals returns the number of goals a conversation could complete.
// The last final goal is the closing statement and does not count.
func TotalGoals(s structs.ConversationSettings) int {
	return len(s.InitialGoals) + max(len(s.FinalGoals)-1, 0) + max(s.MaxGoalsToGenerate, 0)
}

// Completion returns the percentage of completed goals, between 0 and 100.
// A conversation without any goals has a completion of 0.
func Completion(completed int, s structs.ConversationSettings) int {
	total := TotalGoals(s)
	if total == 0 {
		return 0
	}

	pct := math.Min(100, float64(completed)/float64(total)*100)
	if pct < 0 {
		return 0
	}

	return int(math.Round(pct))
}

func direction(d string) string {
	if strings.EqualFold(d, structs.DirectionInbound) {
		return structs.DirectionInbound
	}

	return structs.DirectionOutbound
}
