package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/bufbuild/connect-go"
)

type contextKey struct{}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// From returns the authenticated user of ctx.
func From(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)

	return u, ok
}

// Organisation returns the organisation a request operates on. An empty
// requested ID selects the organisation of the caller. Requesting a
// foreign organisation is only permitted for administrators.
func Organisation(ctx context.Context, requested string) (string, error) {
	user, ok := From(ctx)
	if !ok {
		return "", connect.NewError(connect.CodeUnauthenticated, errors.New("missing authentication"))
	}

	if requested == "" {
		requested = user.OrganisationID
	}

	if requested == "" {
		return "", connect.NewError(connect.CodeInvalidArgument, errors.New("no organisation selected"))
	}

	if !user.CanAccess(requested) {
		return "", connect.NewError(connect.CodePermissionDenied, fmt.Errorf("not allowed to access organisation %q", requested))
	}

	return requested, nil
}
