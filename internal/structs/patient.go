package structs

// Patient is an entry of an organisation's patient roster.
type Patient struct {
	ID             string `json:"id" bson:"_id"`
	OrganisationID string `json:"organisationId" bson:"organisationId"`
	CustomerName   string `json:"customerName" bson:"customerName"`
	DateOfBirth    string `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	// PhoneNumber is stored in E.164 format.
	PhoneNumber string `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	// Custom holds free-form fields, usually originating from a roster import.
	Custom map[string]any `json:"custom,omitempty" bson:"custom,omitempty"`
}
