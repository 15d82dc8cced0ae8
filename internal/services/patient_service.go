package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/roster"
	"github.com/carefollow/callboard/internal/rpc"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/hashicorp/go-multierror"
)

const PatientServiceName = "callboard.v1.PatientService"

type PatientService struct {
	*config.Providers
}

func NewPatientService(p *config.Providers) *PatientService {
	return &PatientService{
		Providers: p,
	}
}

func (svc *PatientService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	s := rpc.NewService(PatientServiceName)

	rpc.Unary(s, "ListPatients", svc.ListPatients, opts...)
	rpc.Unary(s, "CreatePatient", svc.CreatePatient, opts...)
	rpc.Unary(s, "UpdatePatient", svc.UpdatePatient, opts...)
	rpc.Unary(s, "DeletePatient", svc.DeletePatient, opts...)
	rpc.Unary(s, "ImportPatients", svc.ImportPatients, opts...)

	return s.Handler()
}

func (svc *PatientService) ListPatients(ctx context.Context, req *connect.Request[ListPatientsRequest]) (*connect.Response[ListPatientsResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	patients, err := svc.Patients.ListPatients(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if search := strings.ToLower(strings.TrimSpace(req.Msg.Search)); search != "" {
		filtered := make([]structs.Patient, 0, len(patients))

		for _, p := range patients {
			if strings.Contains(strings.ToLower(p.CustomerName), search) || strings.Contains(p.PhoneNumber, search) {
				filtered = append(filtered, p)
			}
		}

		patients = filtered
	}

	return connect.NewResponse(&ListPatientsResponse{Patients: patients}), nil
}

func validatePatient(p structs.Patient) error {
	if strings.TrimSpace(p.CustomerName) == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("customerName is required"))
	}

	return nil
}

func (svc *PatientService) CreatePatient(ctx context.Context, req *connect.Request[PatientRequest]) (*connect.Response[PatientResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	patient := req.Msg.Patient
	patient.OrganisationID = orgID

	if err := validatePatient(patient); err != nil {
		return nil, err
	}

	if err := svc.Patients.CreatePatient(ctx, &patient); err != nil {
		return nil, toConnectError(err)
	}

	svc.invalidate(ctx, orgID)

	return connect.NewResponse(&PatientResponse{Patient: patient}), nil
}

func (svc *PatientService) UpdatePatient(ctx context.Context, req *connect.Request[PatientRequest]) (*connect.Response[PatientResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	patient := req.Msg.Patient
	patient.OrganisationID = orgID

	if patient.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("patient id is required"))
	}

	if err := validatePatient(patient); err != nil {
		return nil, err
	}

	if err := svc.Patients.UpdatePatient(ctx, &patient); err != nil {
		return nil, toConnectError(err)
	}

	svc.invalidate(ctx, orgID)

	return connect.NewResponse(&PatientResponse{Patient: patient}), nil
}

func (svc *PatientService) DeletePatient(ctx context.Context, req *connect.Request[DeletePatientRequest]) (*connect.Response[Empty], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	cmd := &deletePatient{
		providers: svc.Providers,
		orgID:     orgID,
		id:        req.Msg.ID,
	}

	if err := runCommand(ctx, svc.Providers, orgID, cmd); err != nil {
		return nil, err
	}

	return connect.NewResponse(&Empty{}), nil
}

func (svc *PatientService) ImportPatients(ctx context.Context, req *connect.Request[ImportPatientsRequest]) (*connect.Response[ImportPatientsResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	settings := settingsFor(ctx, svc.Providers, orgID)

	result, parseErr := roster.Parse(req.Msg.Filename, req.Msg.Data, settings.Country)
	if result == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, parseErr)
	}

	res := &ImportPatientsResponse{
		Skipped: result.Skipped,
	}

	var merr *multierror.Error
	if errors.As(parseErr, &merr) {
		for _, e := range merr.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
	}

	imported, err := svc.Patients.BulkUpsert(ctx, orgID, result.Patients)
	if err != nil {
		return nil, toConnectError(err)
	}
	res.Imported = imported

	log.L(ctx).Infof("imported %d patients from %s, skipped %d rows", imported, req.Msg.Filename, res.Skipped)

	svc.invalidate(ctx, orgID)

	return connect.NewResponse(res), nil
}

func (svc *PatientService) invalidate(ctx context.Context, orgID string) {
	if err := svc.Hub.Invalidate(ctx, orgID); err != nil {
		log.L(ctx).Errorf("failed to refresh board of %s: %s", orgID, err)
	}
}
