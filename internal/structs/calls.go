package structs

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies the origin of a raw call record.
type Kind string

const (
	KindQueued     Kind = "queued"
	KindInProgress Kind = "in_progress"
	KindFailed     Kind = "failed"
	KindProcessed  Kind = "processed"
)

// Valid reports whether k is one of the four known record kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindQueued, KindInProgress, KindFailed, KindProcessed:
		return true
	}

	return false
}

// RawCall is a call record as received from the call backend. Each origin
// has its own concrete type and the kind is carried explicitly.
type RawCall interface {
	Kind() Kind
	RecordID() string
	Organisation() string
}

// ExperienceArgs holds the arguments the call experience has been started
// with. They are encoded as a flat object; keys not known to callboard are
// kept in Extra.
type ExperienceArgs struct {
	PatientName   string
	Objectives    []string
	TemplateTitle string
	Extra         map[string]any
}

// Get returns the string value stored under key. The well-known keys map to
// their struct fields, everything else is looked up in Extra.
func (args ExperienceArgs) Get(key string) string {
	switch key {
	case "patient_name":
		return args.PatientName
	case "template_title":
		return args.TemplateTitle
	}

	if v, ok := args.Extra[key].(string); ok {
		return v
	}

	return ""
}

func (args ExperienceArgs) toMap() map[string]any {
	m := make(map[string]any, len(args.Extra)+3)
	for k, v := range args.Extra {
		m[k] = v
	}

	if args.PatientName != "" {
		m["patient_name"] = args.PatientName
	}

	if len(args.Objectives) > 0 {
		m["objectives"] = args.Objectives
	}

	if args.TemplateTitle != "" {
		m["template_title"] = args.TemplateTitle
	}

	return m
}

func (args *ExperienceArgs) fromMap(m map[string]any) {
	*args = ExperienceArgs{}

	for k, v := range m {
		switch k {
		case "patient_name":
			args.PatientName, _ = v.(string)
		case "template_title":
			args.TemplateTitle, _ = v.(string)
		case "objectives":
			args.Objectives = stringList(v)
		default:
			if args.Extra == nil {
				args.Extra = make(map[string]any)
			}
			args.Extra[k] = v
		}
	}
}

// stringList converts a decoded JSON or BSON array to a string slice.
// Non-string items are skipped.
func stringList(v any) []string {
	var items []any

	switch l := v.(type) {
	case []string:
		return l
	case []any:
		items = l
	case primitive.A:
		items = l
	default:
		return nil
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}

	return result
}

func (args ExperienceArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(args.toMap())
}

func (args *ExperienceArgs) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	args.fromMap(m)

	return nil
}

func (args ExperienceArgs) MarshalBSON() ([]byte, error) {
	return bson.Marshal(args.toMap())
}

func (args *ExperienceArgs) UnmarshalBSON(data []byte) error {
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return err
	}

	args.fromMap(m)

	return nil
}

// Schedule is the date and time a queued call is scheduled for, as entered
// by the clinic staff.
type Schedule struct {
	Date string `json:"date" bson:"date"`
	Time string `json:"time" bson:"time"`
}

// QueuedCall is a call that waits for its scheduled time.
type QueuedCall struct {
	ID             string         `json:"id" bson:"_id"`
	OrganisationID string         `json:"organisationId" bson:"organisationId"`
	CallSID        string         `json:"call_sid,omitempty" bson:"call_sid,omitempty"`
	ExperienceArgs ExperienceArgs `json:"experience_custom_args" bson:"experience_custom_args"`
	ScheduledFor   Schedule       `json:"scheduled_for" bson:"scheduled_for"`
	EnqueuedAt     any            `json:"enqueued_at,omitempty" bson:"enqueued_at,omitempty"`
	PatientID      string         `json:"patient_id,omitempty" bson:"patient_id,omitempty"`
	PhoneNumber    string         `json:"phone_number,omitempty" bson:"phone_number,omitempty"`
	Viewed         bool           `json:"viewed" bson:"viewed"`

	// Date is derived from ScheduledFor when the record is stored and only
	// used for range queries.
	Date time.Time `json:"-" bson:"date,omitempty"`
}

func (c *QueuedCall) Kind() Kind           { return KindQueued }
func (c *QueuedCall) RecordID() string     { return c.ID }
func (c *QueuedCall) Organisation() string { return c.OrganisationID }

// ActiveCall is a call that is currently in progress.
type ActiveCall struct {
	ID             string         `json:"id" bson:"_id"`
	OrganisationID string         `json:"organisationId" bson:"organisationId"`
	CallSID        string         `json:"call_sid,omitempty" bson:"call_sid,omitempty"`
	ExperienceArgs ExperienceArgs `json:"experience_custom_args" bson:"experience_custom_args"`
	StartedAt      any            `json:"started_at,omitempty" bson:"started_at,omitempty"`
	PatientID      string         `json:"patient_id,omitempty" bson:"patient_id,omitempty"`
	PhoneNumber    string         `json:"phone_number,omitempty" bson:"phone_number,omitempty"`
	Direction      string         `json:"direction,omitempty" bson:"direction,omitempty"`

	Date time.Time `json:"-" bson:"date,omitempty"`
}

func (c *ActiveCall) Kind() Kind           { return KindInProgress }
func (c *ActiveCall) RecordID() string     { return c.ID }
func (c *ActiveCall) Organisation() string { return c.OrganisationID }

// Outcome holds the fields shared by finished calls, successful or not.
type Outcome struct {
	ID                  string           `json:"id" bson:"_id"`
	OrganisationID      string           `json:"organisationId" bson:"organisationId"`
	CallSID             string           `json:"call_sid,omitempty" bson:"call_sid,omitempty"`
	ExperienceArgs      ExperienceArgs   `json:"experience_custom_args" bson:"experience_custom_args"`
	AnsweredBy          string           `json:"answeredBy,omitempty" bson:"answeredBy,omitempty"`
	Direction           string           `json:"direction,omitempty" bson:"direction,omitempty"`
	RecordingURL        string           `json:"recordingURL,omitempty" bson:"recordingURL,omitempty"`
	SummaryURL          string           `json:"summaryURL,omitempty" bson:"summaryURL,omitempty"`
	CreatedAt           any              `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
	FinishedAt          any              `json:"finishedAt,omitempty" bson:"finishedAt,omitempty"`
	CompletedExperience bool             `json:"completedExperience" bson:"completedExperience"`
	FollowUpSummary     string           `json:"followUpSummary,omitempty" bson:"followUpSummary,omitempty"`
	PatientID           string           `json:"patientId,omitempty" bson:"patientId,omitempty"`
	PatientName         string           `json:"patientName,omitempty" bson:"patientName,omitempty"`
	PhoneNumber         string           `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	Viewed              bool             `json:"viewed" bson:"viewed"`
	DeductedCredits     float64          `json:"deductedCredits,omitempty" bson:"deductedCredits,omitempty"`
	Transcript          string           `json:"transcript,omitempty" bson:"transcript,omitempty"`
	ConversationHistory []map[string]any `json:"conversationHistory,omitempty" bson:"conversationHistory,omitempty"`

	Date time.Time `json:"-" bson:"date,omitempty"`
}

// ProcessedCall is a finished call that failed or reached a voicemail box.
type ProcessedCall struct {
	Outcome `bson:",inline"`
}

func (c *ProcessedCall) Kind() Kind           { return KindFailed }
func (c *ProcessedCall) RecordID() string     { return c.ID }
func (c *ProcessedCall) Organisation() string { return c.OrganisationID }

// ConversationSettings are the goal settings the conversation was run with.
type ConversationSettings struct {
	InitialGoals       []string `json:"initial_goals,omitempty" bson:"initial_goals,omitempty"`
	FinalGoals         []string `json:"final_goals,omitempty" bson:"final_goals,omitempty"`
	MaxGoalsToGenerate int      `json:"max_goals_to_generate,omitempty" bson:"max_goals_to_generate,omitempty"`
}

// Conversation is a completed call with a summary and goal progress.
type Conversation struct {
	Outcome `bson:",inline"`

	Summary        string               `json:"summary,omitempty" bson:"summary,omitempty"`
	CompletedGoals []string             `json:"CompletedGoals,omitempty" bson:"CompletedGoals,omitempty"`
	Settings       ConversationSettings `json:"settings" bson:"settings"`
}

func (c *Conversation) Kind() Kind           { return KindProcessed }
func (c *Conversation) RecordID() string     { return c.ID }
func (c *Conversation) Organisation() string { return c.OrganisationID }
