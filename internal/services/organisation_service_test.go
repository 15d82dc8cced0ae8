package services

import (
	"context"
	"testing"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/structs"
)

func TestCreateOrganisation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrganisationService(env.providers)

	admin := auth.WithUser(context.Background(), auth.User{ID: "admin", Role: auth.RoleAdmin})

	cases := []struct {
		name string
		ctx  context.Context
		org  structs.Organisation
		code connect.Code
	}{
		{
			name: "admin creates any organisation",
			ctx:  admin,
			org:  structs.Organisation{ID: "org-es", Name: "Clinica", Country: "ES", Language: "es", InboundNumber: "612 345 678"},
		},
		{
			name: "user creates its own organisation",
			ctx:  userContext("org-new"),
			org:  structs.Organisation{Name: "New clinic"},
		},
		{
			name: "user creates a foreign organisation",
			ctx:  userContext("org-new"),
			org:  structs.Organisation{ID: "org-x", Name: "Foreign"},
			code: connect.CodePermissionDenied,
		},
		{
			name: "duplicate",
			ctx:  admin,
			org:  structs.Organisation{ID: testOrg, Name: "Clinic"},
			code: connect.CodeAlreadyExists,
		},
		{
			name: "missing name",
			ctx:  admin,
			org:  structs.Organisation{ID: "org-y"},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "unknown country",
			ctx:  admin,
			org:  structs.Organisation{ID: "org-z", Name: "Z", Country: "XX"},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "unsupported language",
			ctx:  admin,
			org:  structs.Organisation{ID: "org-fr", Name: "F", Language: "fr"},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "invalid timezone",
			ctx:  admin,
			org:  structs.Organisation{ID: "org-tz", Name: "T", Timezone: "Nowhere/Land"},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "anonymous",
			ctx:  context.Background(),
			org:  structs.Organisation{ID: "org-a", Name: "A"},
			code: connect.CodeUnauthenticated,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := svc.CreateOrganisation(c.ctx, connect.NewRequest(&OrganisationRequest{Organisation: c.org}))

			if c.code != 0 {
				if connect.CodeOf(err) != c.code {
					t.Fatalf("expected %s, got %v", c.code, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}

			if res.Msg.Organisation.ID == "" || res.Msg.Organisation.Country == "" || res.Msg.Organisation.Language == "" {
				t.Errorf("expected defaults to be applied: %+v", res.Msg.Organisation)
			}
		})
	}

	stored := env.orgs.orgs["org-es"]
	if stored.InboundNumber != "+34612345678" {
		t.Errorf("expected a normalized inbound number, got %q", stored.InboundNumber)
	}

	if _, ok := env.orgs.orgs["org-new"]; !ok {
		t.Errorf("expected the user's organisation to be created")
	}
}

func TestUpdateOrganisation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOrganisationService(env.providers)
	ctx := userContext(testOrg)

	res, err := svc.UpdateOrganisation(ctx, connect.NewRequest(&OrganisationRequest{
		Organisation: structs.Organisation{Name: "Renamed", Timezone: "Europe/Vienna"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if res.Msg.Organisation.ID != testOrg || res.Msg.Organisation.Name != "Renamed" {
		t.Errorf("unexpected organisation: %+v", res.Msg.Organisation)
	}

	get, err := svc.GetOrganisation(ctx, connect.NewRequest(&OrganisationRef{}))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if get.Msg.Organisation.Timezone != "Europe/Vienna" {
		t.Errorf("expected the timezone to be stored, got %q", get.Msg.Organisation.Timezone)
	}
}
