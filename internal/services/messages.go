package services

import (
	"time"

	"github.com/carefollow/callboard/internal/structs"
)

// FilterSet selects the calls shown on the board. A nil slice selects every
// value, an empty slice selects nothing.
type FilterSet struct {
	Status        []structs.Status `json:"status"`
	Direction     []string         `json:"direction"`
	TemplateTitle []string         `json:"templateTitle"`
}

type ListCallsRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	// Profile selects the dashboard, either "calls" or "remote-monitoring".
	Profile  string     `json:"profile,omitempty" validate:"omitempty,oneof=calls remote-monitoring"`
	Language string     `json:"language,omitempty" validate:"omitempty,oneof=en es"`
	Filters  *FilterSet `json:"filters,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

type ListCallsResponse struct {
	Groups   []structs.DateGroup `json:"groups"`
	Language string              `json:"language"`
	Version  uint64              `json:"version"`
}

type MarkViewedRequest struct {
	OrganisationID string       `json:"organisationId,omitempty"`
	Kind           structs.Kind `json:"kind" validate:"required,oneof=queued failed processed"`
	ID             string       `json:"id" validate:"required"`
	Viewed         bool         `json:"viewed"`
}

type MarkViewedResponse struct{}

type ScheduleCallRequest struct {
	OrganisationID string   `json:"organisationId,omitempty"`
	PatientID      string   `json:"patientId,omitempty" validate:"required_without=PhoneNumber"`
	PatientName    string   `json:"patientName,omitempty"`
	PhoneNumber    string   `json:"phoneNumber,omitempty"`
	Objectives     []string `json:"objectives" validate:"required,min=1,dive,required"`
	TemplateTitle  string   `json:"templateTitle,omitempty"`
	Date           string   `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time           string   `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
}

type ScheduleCallResponse struct {
	CallID string `json:"callId"`
}

type CallRef struct {
	OrganisationID string `json:"organisationId,omitempty"`
	ID             string `json:"id" validate:"required"`
}

type Empty struct{}

type CallResult struct {
	Call                structs.CallView              `json:"call"`
	Transcript          string                        `json:"transcript,omitempty"`
	ConversationHistory []map[string]any              `json:"conversationHistory,omitempty"`
	CompletedGoals      []string                      `json:"completedGoals,omitempty"`
	Settings            *structs.ConversationSettings `json:"settings,omitempty"`
}

type OrganisationRef struct {
	OrganisationID string `json:"organisationId,omitempty"`
}

type ListPatientsRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	// Search restricts the result to patients whose name or phone number
	// contains the value.
	Search string `json:"search,omitempty"`
}

type ListPatientsResponse struct {
	Patients []structs.Patient `json:"patients"`
}

type PatientRequest struct {
	OrganisationID string          `json:"organisationId,omitempty"`
	Patient        structs.Patient `json:"patient"`
}

type PatientResponse struct {
	Patient structs.Patient `json:"patient"`
}

type DeletePatientRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	ID             string `json:"id" validate:"required"`
}

type ImportPatientsRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	Filename       string `json:"filename" validate:"required"`
	// Data is the raw file content, base64 encoded on the wire.
	Data []byte `json:"data" validate:"required"`
}

type ImportPatientsResponse struct {
	Imported int64    `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type ListPresetsResponse struct {
	Presets []structs.Preset `json:"presets"`
}

type SavePresetRequest struct {
	OrganisationID string         `json:"organisationId,omitempty"`
	Preset         structs.Preset `json:"preset"`
}

type SavePresetResponse struct {
	Preset structs.Preset `json:"preset"`
}

type DeleteRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	ID             string `json:"id" validate:"required"`
}

type ListTreePresetsResponse struct {
	Presets []structs.TreePreset `json:"presets"`
}

type SaveTreePresetRequest struct {
	OrganisationID string             `json:"organisationId,omitempty"`
	Preset         structs.TreePreset `json:"preset"`
}

type SaveTreePresetResponse struct {
	Preset structs.TreePreset `json:"preset"`
}

type GenerateObjectivesRequest struct {
	OrganisationID string `json:"organisationId,omitempty"`
	Instructions   string `json:"instructions" validate:"required"`
}

type GenerateObjectivesResponse struct {
	Objectives []string `json:"objectives"`
}

type OrganisationRequest struct {
	Organisation structs.Organisation `json:"organisation"`
}

type OrganisationResponse struct {
	Organisation structs.Organisation `json:"organisation"`
}
