package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/backend"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/roster"
	"github.com/carefollow/callboard/internal/structs"
)

func TestToConnectError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"not found", fmt.Errorf("patient: %w", database.ErrNotFound), connect.CodeNotFound},
		{"exists", database.ErrAlreadyExists, connect.CodeAlreadyExists},
		{"invalid number", fmt.Errorf("%w: abc", database.ErrInvalidNumber), connect.CodeInvalidArgument},
		{"unsupported roster", roster.ErrUnsupportedFormat, connect.CodeInvalidArgument},
		{"backend rejected", &backend.Error{StatusCode: 400, Message: "bad"}, connect.CodeFailedPrecondition},
		{"backend down", &backend.Error{StatusCode: 502, Temporary: true}, connect.CodeUnavailable},
		{"canceled", context.Canceled, connect.CodeCanceled},
		{"deadline", fmt.Errorf("load: %w", context.DeadlineExceeded), connect.CodeDeadlineExceeded},
		{"connect error kept", connect.NewError(connect.CodePermissionDenied, errors.New("no")), connect.CodePermissionDenied},
		{"anything else", errors.New("boom"), connect.CodeInternal},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := connect.CodeOf(toConnectError(c.err)); got != c.want {
				t.Errorf("expected %s, got %s", c.want, got)
			}
		})
	}

	if toConnectError(nil) != nil {
		t.Errorf("expected nil for a nil error")
	}
}

func TestSettingsFor(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.orgs["org-es"] = structs.Organisation{
		ID:       "org-es",
		Country:  "ES",
		Language: "es",
		Timezone: "Europe/Madrid",
	}
	env.orgs.orgs["org-broken"] = structs.Organisation{
		ID:       "org-broken",
		Timezone: "Mars/Olympus",
	}

	ctx := context.Background()

	s := settingsFor(ctx, env.providers, "org-es")
	if s.Country != "ES" || s.Language != "es" || s.Location.String() != "Europe/Madrid" {
		t.Errorf("unexpected settings: %+v", s)
	}

	s = settingsFor(ctx, env.providers, "org-broken")
	if s.Country != "AT" || s.Language != "en" || s.Location != time.UTC {
		t.Errorf("expected defaults, got %+v", s)
	}

	s = settingsFor(ctx, env.providers, "unknown")
	if s.Country != "AT" || s.Location != time.UTC {
		t.Errorf("expected defaults, got %+v", s)
	}
}

func TestFiltersFrom(t *testing.T) {
	views := []structs.CallView{
		{TemplateTitle: "b"},
		{TemplateTitle: "a"},
	}

	f := filtersFrom(nil, nil, nil, views)
	if len(f.Status) != len(structs.AllStatuses) || len(f.TemplateTitle) != 2 {
		t.Errorf("expected all values to be selected, got %+v", f)
	}

	f = filtersFrom(&FilterSet{Direction: []string{}}, nil, nil, views)
	if f.Direction == nil || len(f.Direction) != 0 {
		t.Errorf("expected an empty direction selection, got %v", f.Direction)
	}

	if len(f.Status) != len(structs.AllStatuses) {
		t.Errorf("expected missing selections to default to all, got %v", f.Status)
	}
}
