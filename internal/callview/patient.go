package callview

import "github.com/carefollow/callboard/internal/structs"

// ResolvePatient searches the roster for the patient with the given id.
// The first match wins.
func ResolvePatient(id string, roster []structs.Patient) *structs.Patient {
	if id == "" || len(roster) == 0 {
		return nil
	}

	for idx := range roster {
		if roster[idx].ID == id {
			return &roster[idx]
		}
	}

	return nil
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// patientName walks the display-name fallback chain: resolved patient,
// the name embedded in the call and finally the experience arguments.
func (p Profile) patientName(patient *structs.Patient, embedded string, args structs.ExperienceArgs) string {
	var resolved string
	if patient != nil {
		resolved = patient.CustomerName
	}

	return firstOf(resolved, embedded, args.Get(p.PatientNameKey), p.UnknownPatient)
}

func (p Profile) patientPhone(patient *structs.Patient, embedded string, args structs.ExperienceArgs) string {
	var resolved string
	if patient != nil {
		resolved = patient.PhoneNumber
	}

	return firstOf(resolved, embedded, args.Get("phone_number"), p.UnknownPatient)
}
