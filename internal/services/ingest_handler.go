package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/structs"
)

const (
	IngestPath        = "/api/external/v1/calls"
	ingestTokenHeader = "X-Ingest-Token"

	// maximum accepted request body, transcripts can be large
	maxIngestBody = 8 << 20
)

const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// IngestEvent is sent by the call backend whenever a call record changes.
type IngestEvent struct {
	Kind           structs.Kind    `json:"kind"`
	OrganisationID string          `json:"organisationId"`
	// Action is either upsert (default) or delete.
	Action string          `json:"action,omitempty"`
	Record json.RawMessage `json:"record"`
}

// IngestHandler receives call lifecycle events from the call backend.
type IngestHandler struct {
	*config.Providers
}

func NewIngestHandler(p *config.Providers) *IngestHandler {
	return &IngestHandler{
		Providers: p,
	}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	token := req.Header.Get(ingestTokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Config.IngestToken)) != 1 {
		log.L(ctx).Warnf("rejecting ingest request from %s: invalid token", req.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	var evt IngestEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxIngestBody))
	if err := dec.Decode(&evt); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %s", err), http.StatusBadRequest)

		return
	}

	if err := h.Ingest(ctx, evt); err != nil {
		var invalid invalidEventError
		if errors.As(err, &invalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)

			return
		}

		log.L(ctx).Errorf("failed to ingest %s record: %s", evt.Kind, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type invalidEventError struct {
	reason string
}

func (e invalidEventError) Error() string { return "invalid event: " + e.reason }

func decodeRecord[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, invalidEventError{"missing record"}
	}

	record := new(T)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, invalidEventError{fmt.Sprintf("failed to decode record: %s", err)}
	}

	return record, nil
}

// Ingest stores the record of evt, moves the call along its lifecycle and
// refreshes the board of the organisation.
func (h *IngestHandler) Ingest(ctx context.Context, evt IngestEvent) error {
	if evt.OrganisationID == "" {
		return invalidEventError{"missing organisationId"}
	}

	if !evt.Kind.Valid() {
		return invalidEventError{fmt.Sprintf("unknown kind %q", evt.Kind)}
	}

	if evt.Action == "" {
		evt.Action = ActionUpsert
	}

	l := log.L(ctx).WithField("organisationId", evt.OrganisationID).WithField("kind", evt.Kind)
	ctx = log.WithLogger(ctx, l)

	var err error
	switch evt.Action {
	case ActionUpsert:
		err = h.upsert(ctx, evt)
	case ActionDelete:
		err = h.delete(ctx, evt)
	default:
		return invalidEventError{fmt.Sprintf("unknown action %q", evt.Action)}
	}

	if err != nil {
		return err
	}

	if err := h.Hub.Invalidate(ctx, evt.OrganisationID); err != nil {
		l.Errorf("failed to refresh board: %s", err)
	}

	return nil
}

func (h *IngestHandler) delete(ctx context.Context, evt IngestEvent) error {
	ref, err := decodeRecord[struct {
		ID string `json:"id"`
	}](evt.Record)
	if err != nil {
		return err
	}

	if ref.ID == "" {
		return invalidEventError{"missing record id"}
	}

	switch evt.Kind {
	case structs.KindQueued:
		return h.Calls.DeleteQueued(ctx, evt.OrganisationID, ref.ID)
	case structs.KindInProgress:
		return h.Calls.DeleteActive(ctx, evt.OrganisationID, ref.ID)
	}

	return invalidEventError{fmt.Sprintf("%s records cannot be deleted", evt.Kind)}
}

// ignoreNotFound drops ErrNotFound from lifecycle cleanups, the previous
// stage may never have been reported.
func ignoreNotFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}

	return err
}

func (h *IngestHandler) upsert(ctx context.Context, evt IngestEvent) error {
	orgID := evt.OrganisationID

	switch evt.Kind {
	case structs.KindQueued:
		call, err := decodeRecord[structs.QueuedCall](evt.Record)
		if err != nil {
			return err
		}
		if call.ID == "" {
			return invalidEventError{"missing record id"}
		}
		call.OrganisationID = orgID

		return h.Calls.UpsertQueued(ctx, call)

	case structs.KindInProgress:
		call, err := decodeRecord[structs.ActiveCall](evt.Record)
		if err != nil {
			return err
		}
		if call.ID == "" {
			return invalidEventError{"missing record id"}
		}
		call.OrganisationID = orgID

		if err := h.Calls.UpsertActive(ctx, call); err != nil {
			return err
		}

		return ignoreNotFound(h.Calls.DeleteQueued(ctx, orgID, call.ID))

	case structs.KindFailed:
		call, err := decodeRecord[structs.ProcessedCall](evt.Record)
		if err != nil {
			return err
		}
		if call.ID == "" {
			return invalidEventError{"missing record id"}
		}
		call.OrganisationID = orgID
		h.identify(ctx, &call.Outcome)

		if err := h.Calls.UpsertProcessed(ctx, call); err != nil {
			return err
		}

		return ignoreNotFound(h.Calls.DeleteActive(ctx, orgID, call.ID))

	case structs.KindProcessed:
		call, err := decodeRecord[structs.Conversation](evt.Record)
		if err != nil {
			return err
		}
		if call.ID == "" {
			return invalidEventError{"missing record id"}
		}
		call.OrganisationID = orgID
		h.identify(ctx, &call.Outcome)

		if err := h.Calls.UpsertConversation(ctx, call); err != nil {
			return err
		}

		return ignoreNotFound(h.Calls.DeleteActive(ctx, orgID, call.ID))
	}

	return invalidEventError{fmt.Sprintf("unknown kind %q", evt.Kind)}
}

// identify associates a finished call with a patient from the roster based
// on the phone number.
func (h *IngestHandler) identify(ctx context.Context, outcome *structs.Outcome) {
	if outcome.PatientID != "" || outcome.PhoneNumber == "" {
		return
	}

	settings := settingsFor(ctx, h.Providers, outcome.OrganisationID)

	number, err := database.NormalizeNumber(outcome.PhoneNumber, settings.Country)
	if err != nil || number == database.Anonymous {
		log.L(ctx).Infof("unspecified caller, not searching for patients: %q", outcome.PhoneNumber)

		return
	}

	patients, err := h.Patients.ListPatients(ctx, outcome.OrganisationID)
	if err != nil {
		log.L(ctx).Errorf("failed to load roster: %s", err)

		return
	}

	if p := matchNumber(patients, number); p != nil {
		log.L(ctx).Infof("identified caller %s as patient %s", number, p.ID)
		outcome.PatientID = p.ID
	}
}

// matchNumber returns the first patient with the given E.164 number.
func matchNumber(patients []structs.Patient, number string) *structs.Patient {
	for idx := range patients {
		if patients[idx].PhoneNumber == number {
			return &patients[idx]
		}
	}

	return nil
}
