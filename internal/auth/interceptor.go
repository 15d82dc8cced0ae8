package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/log"
)

const bearerPrefix = "Bearer "

func bearerToken(h http.Header) (string, error) {
	raw := strings.TrimSpace(h.Get("Authorization"))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return "", errors.New("missing bearer token")
	}

	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix)), nil
}

// Interceptor authenticates every RPC and stores the User on the
// request context.
type Interceptor struct {
	verifier *Verifier
}

func NewInterceptor(v *Verifier) *Interceptor {
	return &Interceptor{verifier: v}
}

func (i *Interceptor) authenticate(ctx context.Context, h http.Header) (context.Context, error) {
	token, err := bearerToken(h)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	user, err := i.verifier.Verify(token)
	if err != nil {
		log.L(ctx).Infof("rejecting invalid token: %s", err)

		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid token"))
	}

	ctx = WithUser(ctx, user)
	ctx = log.WithLogger(ctx, log.L(ctx).WithField("user", user.ID))

	return ctx, nil
}

func (i *Interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		ctx, err := i.authenticate(ctx, req.Header())
		if err != nil {
			return nil, err
		}

		return next(ctx, req)
	}
}

func (i *Interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *Interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}

		return next(ctx, conn)
	}
}

// ClientInterceptor adds a bearer token to outgoing requests.
type ClientInterceptor struct {
	token string
}

func NewClientInterceptor(token string) *ClientInterceptor {
	return &ClientInterceptor{token: token}
}

func (c *ClientInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient && c.token != "" {
			req.Header().Set("Authorization", bearerPrefix+c.token)
		}

		return next(ctx, req)
	}
}

func (c *ClientInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if c.token != "" {
			conn.RequestHeader().Set("Authorization", bearerPrefix+c.token)
		}

		return conn
	}
}

func (c *ClientInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

var (
	_ connect.Interceptor = (*Interceptor)(nil)
	_ connect.Interceptor = (*ClientInterceptor)(nil)
)
