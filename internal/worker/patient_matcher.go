package worker

import (
	"context"
	"time"

	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/hashicorp/go-multierror"
)

type (
	UnmatchedCallStore interface {
		FindUnmatchedNumbers(ctx context.Context, orgID string) ([]string, error)
		UpdateUnmatchedNumber(ctx context.Context, orgID, number, patientID string) (int64, error)
	}

	RosterStore interface {
		ListPatients(ctx context.Context, orgID string) ([]structs.Patient, error)
	}

	OrganisationLister interface {
		ListOrganisations(ctx context.Context) ([]structs.Organisation, error)
	}

	BoardInvalidator interface {
		Invalidate(ctx context.Context, orgID string) error
	}
)

// PatientMatcher associates finished calls from numbers that were unknown
// at the time of the call with patients added to the roster later on.
type PatientMatcher struct {
	Calls         UnmatchedCallStore
	Roster        RosterStore
	Organisations OrganisationLister
	Boards        BoardInvalidator
}

func NewPatientMatcher(providers *config.Providers) *PatientMatcher {
	return &PatientMatcher{
		Calls:         providers.Calls,
		Roster:        providers.Patients,
		Organisations: providers.Organisations,
		Boards:        providers.Hub,
	}
}

// Run performs a single matching pass over all organisations.
func (m *PatientMatcher) Run(ctx context.Context) error {
	orgs, err := m.Organisations.ListOrganisations(ctx)
	if err != nil {
		return err
	}

	merr := new(multierror.Error)
	for _, org := range orgs {
		if err := m.matchOrganisation(ctx, org.ID); err != nil {
			merr.Errors = append(merr.Errors, err)
		}
	}

	return merr.ErrorOrNil()
}

func (m *PatientMatcher) matchOrganisation(ctx context.Context, orgID string) error {
	l := log.L(ctx).WithField("organisationId", orgID)

	numbers, err := m.Calls.FindUnmatchedNumbers(ctx, orgID)
	if err != nil {
		l.Errorf("failed to find distinct, unidentified numbers: %s", err)

		return err
	}

	if len(numbers) == 0 {
		return nil
	}

	l.Infof("found %d distinct numbers that are not associated with a patient", len(numbers))

	patients, err := m.Roster.ListPatients(ctx, orgID)
	if err != nil {
		l.Errorf("failed to load roster: %s", err)

		return err
	}

	byNumber := make(map[string]string, len(patients))
	for _, p := range patients {
		if p.PhoneNumber == "" {
			continue
		}

		// the roster is sorted by name, the first patient wins
		if _, ok := byNumber[p.PhoneNumber]; !ok {
			byNumber[p.PhoneNumber] = p.ID
		}
	}

	var (
		updated int64
		merr    = new(multierror.Error)
	)

	for _, number := range numbers {
		patientID, ok := byNumber[number]
		if !ok {
			continue
		}

		count, err := m.Calls.UpdateUnmatchedNumber(ctx, orgID, number, patientID)
		if err != nil {
			l.Errorf("failed to update unmatched calls of %s (patient %s): %s", number, patientID, err)
			merr.Errors = append(merr.Errors, err)

			continue
		}

		updated += count
	}

	if updated > 0 {
		l.Infof("associated %d calls with patients", updated)

		if err := m.Boards.Invalidate(ctx, orgID); err != nil {
			l.Errorf("failed to refresh board: %s", err)
		}
	}

	return merr.ErrorOrNil()
}

// StartPatientMatcher runs the matcher every interval until ctx is
// cancelled.
func StartPatientMatcher(ctx context.Context, providers *config.Providers) {
	interval := time.Duration(providers.Config.MatchInterval)
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	m := NewPatientMatcher(providers)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			func() {
				runCtx, cancel := context.WithTimeout(ctx, interval/2)
				defer cancel()

				if err := m.Run(runCtx); err != nil {
					log.L(ctx).Errorf("patient matching finished with errors: %s", err)
				}
			}()

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}
