package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/carefollow/callboard/internal/structs"
)

type fakeCalls struct {
	// numbers maps organisation ids to their unmatched numbers
	numbers map[string][]string
	updates map[string]string
	fail    string
}

func (f *fakeCalls) FindUnmatchedNumbers(ctx context.Context, orgID string) ([]string, error) {
	return f.numbers[orgID], nil
}

func (f *fakeCalls) UpdateUnmatchedNumber(ctx context.Context, orgID, number, patientID string) (int64, error) {
	if number == f.fail {
		return 0, errors.New("write failed")
	}

	f.updates[orgID+"/"+number] = patientID

	return 1, nil
}

type fakeRoster map[string][]structs.Patient

func (f fakeRoster) ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error) {
	return f[orgID], nil
}

type fakeOrgs []structs.Organisation

func (f fakeOrgs) ListOrganisations(ctx context.Context) ([]structs.Organisation, error) {
	return f, nil
}

type fakeBoards struct {
	invalidated []string
}

func (f *fakeBoards) Invalidate(ctx context.Context, orgID string) error {
	f.invalidated = append(f.invalidated, orgID)

	return nil
}

func TestPatientMatcher(t *testing.T) {
	calls := &fakeCalls{
		numbers: map[string][]string{
			"org-1": {"+436641234567", "+436640000000", "+34612345678"},
			"org-2": {"+436641234567"},
			"org-3": nil,
		},
		updates: make(map[string]string),
	}

	roster := fakeRoster{
		"org-1": {
			{ID: "alice", PhoneNumber: "+436641234567"},
			{ID: "alice-dup", PhoneNumber: "+436641234567"},
			{ID: "carlos", PhoneNumber: "+34612345678"},
			{ID: "no-phone"},
		},
		"org-3": {
			{ID: "dora", PhoneNumber: "+436641234567"},
		},
	}

	boards := &fakeBoards{}

	m := &PatientMatcher{
		Calls:         calls,
		Roster:        roster,
		Organisations: fakeOrgs{{ID: "org-1"}, {ID: "org-2"}, {ID: "org-3"}},
		Boards:        boards,
	}

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	expected := map[string]string{
		"org-1/+436641234567": "alice",
		"org-1/+34612345678":  "carlos",
	}

	if len(calls.updates) != len(expected) {
		t.Fatalf("expected %d updates, got %v", len(expected), calls.updates)
	}

	for key, want := range expected {
		if got := calls.updates[key]; got != want {
			t.Errorf("%s: expected patient %q, got %q", key, want, got)
		}
	}

	if len(boards.invalidated) != 1 || boards.invalidated[0] != "org-1" {
		t.Errorf("expected only org-1 to be refreshed, got %v", boards.invalidated)
	}
}

func TestPatientMatcherReportsErrors(t *testing.T) {
	calls := &fakeCalls{
		numbers: map[string][]string{
			"org-1": {"+436641234567", "+34612345678"},
		},
		updates: make(map[string]string),
		fail:    "+436641234567",
	}

	boards := &fakeBoards{}

	m := &PatientMatcher{
		Calls: calls,
		Roster: fakeRoster{
			"org-1": {
				{ID: "alice", PhoneNumber: "+436641234567"},
				{ID: "carlos", PhoneNumber: "+34612345678"},
			},
		},
		Organisations: fakeOrgs{{ID: "org-1"}},
		Boards:        boards,
	}

	if err := m.Run(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}

	if calls.updates["org-1/+34612345678"] != "carlos" {
		t.Errorf("expected the remaining numbers to be matched")
	}

	if len(boards.invalidated) != 1 {
		t.Errorf("expected the board to be refreshed after partial success")
	}
}
