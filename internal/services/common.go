package services

import (
	"context"
	"errors"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/backend"
	"github.com/carefollow/callboard/internal/callview"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/database"
	"github.com/carefollow/callboard/internal/log"
	"github.com/carefollow/callboard/internal/roster"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/go-playground/validator/v10"
)

// toConnectError maps errors of the lower layers to connect error codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return err
	}

	var berr *backend.Error
	var verrs validator.ValidationErrors

	switch {
	case errors.Is(err, database.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)

	case errors.Is(err, database.ErrAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)

	case errors.Is(err, database.ErrInvalidNumber):
		return connect.NewError(connect.CodeInvalidArgument, err)

	case errors.As(err, &berr):
		if berr.Temporary {
			return connect.NewError(connect.CodeUnavailable, err)
		}

		return connect.NewError(connect.CodeFailedPrecondition, err)

	case errors.As(err, &verrs), errors.Is(err, roster.ErrUnsupportedFormat):
		return connect.NewError(connect.CodeInvalidArgument, err)

	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)

	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	return connect.NewError(connect.CodeInternal, err)
}

// orgSettings are the per-organisation settings with configuration
// defaults applied.
type orgSettings struct {
	Country  string
	Language string
	Location *time.Location
}

func settingsFor(ctx context.Context, p *config.Providers, orgID string) orgSettings {
	s := orgSettings{
		Country:  p.Config.Country,
		Language: p.Config.DefaultLanguage,
		Location: p.Location,
	}

	org, err := p.Organisations.GetOrganisation(ctx, orgID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.L(ctx).Warnf("failed to load organisation %s, using defaults: %s", orgID, err)
		}

		return s
	}

	if org.Country != "" {
		s.Country = org.Country
	}

	if org.Language != "" {
		s.Language = org.Language
	}

	if org.Timezone != "" {
		loc, err := time.LoadLocation(org.Timezone)
		if err != nil {
			log.L(ctx).Warnf("organisation %s has an invalid timezone %q: %s", orgID, org.Timezone, err)
		} else {
			s.Location = loc
		}
	}

	return s
}

func newNormalizer(p *config.Providers, profile callview.Profile, loc *time.Location) callview.Normalizer {
	return callview.Normalizer{
		Profile: profile,
		Classifier: callview.Classifier{
			InboundLiveness: time.Duration(p.Config.InboundLivenessWindow),
			Now:             p.Now,
		},
		Location: loc,
	}
}

func filtersFrom(f *FilterSet, from, to *time.Time, views []structs.CallView) callview.Filters {
	var result callview.Filters

	if f == nil {
		result = callview.DefaultFilters(views)
	} else {
		defaults := callview.DefaultFilters(views)

		result.Status = f.Status
		if result.Status == nil {
			result.Status = defaults.Status
		}

		result.Direction = f.Direction
		if result.Direction == nil {
			result.Direction = defaults.Direction
		}

		result.TemplateTitle = f.TemplateTitle
		if result.TemplateTitle == nil {
			result.TemplateTitle = defaults.TemplateTitle
		}
	}

	result.From = from
	result.To = to

	return result
}
