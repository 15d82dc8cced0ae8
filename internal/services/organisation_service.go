package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/rpc"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/nyaruka/phonenumbers"
)

const OrganisationServiceName = "callboard.v1.OrganisationService"

type OrganisationService struct {
	*config.Providers
}

func NewOrganisationService(p *config.Providers) *OrganisationService {
	return &OrganisationService{
		Providers: p,
	}
}

func (svc *OrganisationService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	s := rpc.NewService(OrganisationServiceName)

	rpc.Unary(s, "GetOrganisation", svc.GetOrganisation, opts...)
	rpc.Unary(s, "CreateOrganisation", svc.CreateOrganisation, opts...)
	rpc.Unary(s, "UpdateOrganisation", svc.UpdateOrganisation, opts...)

	return s.Handler()
}

// validateOrganisation applies defaults to org and checks its settings.
func (svc *OrganisationService) validateOrganisation(ctx context.Context, org *structs.Organisation) error {
	if org.Name == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("name is required"))
	}

	if org.Country == "" {
		org.Country = svc.Config.Country
	}

	if phonenumbers.GetCountryCodeForRegion(org.Country) == 0 {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unsupported country %q", org.Country))
	}

	if org.Language == "" {
		org.Language = svc.Config.DefaultLanguage
	}

	if callview.NormalizeLanguage(org.Language) != org.Language {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unsupported language %q", org.Language))
	}

	if org.Timezone != "" {
		if _, err := time.LoadLocation(org.Timezone); err != nil {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid timezone %q", org.Timezone))
		}
	}

	if org.InboundNumber != "" {
		number, err := database.NormalizeNumber(org.InboundNumber, org.Country)
		if err != nil {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
		org.InboundNumber = number
	}

	return nil
}

func (svc *OrganisationService) GetOrganisation(ctx context.Context, req *connect.Request[OrganisationRef]) (*connect.Response[OrganisationResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	org, err := svc.Organisations.GetOrganisation(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&OrganisationResponse{Organisation: *org}), nil
}

// CreateOrganisation registers a new organisation. Only administrators or
// users whose token is bound to the new organisation may do so.
func (svc *OrganisationService) CreateOrganisation(ctx context.Context, req *connect.Request[OrganisationRequest]) (*connect.Response[OrganisationResponse], error) {
	user, ok := auth.From(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing authentication"))
	}

	org := req.Msg.Organisation
	if !user.IsAdmin() {
		if org.ID != "" && org.ID != user.OrganisationID {
			return nil, connect.NewError(connect.CodePermissionDenied, errors.New("not allowed to create a foreign organisation"))
		}

		org.ID = user.OrganisationID
	}

	if err := svc.validateOrganisation(ctx, &org); err != nil {
		return nil, err
	}

	org.CreatedBy = user.ID

	if err := svc.Organisations.CreateOrganisation(ctx, &org); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&OrganisationResponse{Organisation: org}), nil
}

func (svc *OrganisationService) UpdateOrganisation(ctx context.Context, req *connect.Request[OrganisationRequest]) (*connect.Response[OrganisationResponse], error) {
	org := req.Msg.Organisation

	orgID, err := auth.Organisation(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	org.ID = orgID

	if err := svc.validateOrganisation(ctx, &org); err != nil {
		return nil, err
	}

	if err := svc.Organisations.UpdateOrganisation(ctx, &org); err != nil {
		return nil, toConnectError(err)
	}

	updated, err := svc.Organisations.GetOrganisation(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&OrganisationResponse{Organisation: *updated}), nil
}
