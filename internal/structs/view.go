package structs

import "time"

// Status is the display status of a call.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
	StatusVoicemail  Status = "voicemail"
)

// AllStatuses lists every status a call can be classified as.
var AllStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusComplete,
	StatusIncomplete,
	StatusFailed,
	StatusVoicemail,
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallView is the normalized, display-ready representation of a call record.
type CallView struct {
	ID                 string     `json:"id"`
	Kind               Kind       `json:"kind"`
	CallSID            string     `json:"call_sid,omitempty"`
	PatientName        string     `json:"patientName"`
	UserNumber         string     `json:"userNumber"`
	PatientID          string     `json:"patientId,omitempty"`
	Objectives         []string   `json:"objectives"`
	TemplateTitle      string     `json:"templateTitle"`
	FormattedTimestamp string     `json:"formattedTimestamp"`
	FullDate           *time.Time `json:"fullDate"`
	Status             Status     `json:"status"`
	// StatusInferred is set if the status has been derived from the inbound
	// liveness window instead of a signal sent by the call backend.
	StatusInferred  bool    `json:"statusInferred,omitempty"`
	Viewed          bool    `json:"viewed"`
	Direction       string  `json:"direction"`
	Duration        string  `json:"duration"`
	RecordingURL    string  `json:"recordingURL,omitempty"`
	SummaryURL      string  `json:"summaryURL,omitempty"`
	Summary         string  `json:"summary,omitempty"`
	FollowUpSummary string  `json:"followUpSummary,omitempty"`
	Completion      int     `json:"completion"`
	DeductedCredits float64 `json:"deductedCredits,omitempty"`
}

// DateGroup holds all calls of a single calendar day.
type DateGroup struct {
	Label string     `json:"label"`
	Date  time.Time  `json:"date"`
	Calls []CallView `json:"calls"`
}
