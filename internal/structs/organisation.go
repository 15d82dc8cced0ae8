package structs

import "time"

// Organisation is a clinic using callboard.
type Organisation struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
	// Country is the ISO 3166 region used to parse local phone numbers.
	Country string `json:"country,omitempty" bson:"country,omitempty"`
	// Language selects the locale of date labels, either "en" or "es".
	Language      string    `json:"language,omitempty" bson:"language,omitempty"`
	Timezone      string    `json:"timezone,omitempty" bson:"timezone,omitempty"`
	InboundNumber string    `json:"inboundNumber,omitempty" bson:"inboundNumber,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	CreatedBy     string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
}
