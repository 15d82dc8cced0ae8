package rpc

import (
	"context"
	"errors"
	"reflect"

	"github.com/bufbuild/connect-go"
	"github.com/go-playground/validator/v10"
)

// ValidationInterceptor validates request messages using their validate
// struct tags.
type ValidationInterceptor struct {
	validate *validator.Validate
}

func NewValidationInterceptor(v *validator.Validate) *ValidationInterceptor {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}

	return &ValidationInterceptor{validate: v}
}

func (i *ValidationInterceptor) check(msg any) error {
	rv := reflect.ValueOf(msg)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil
	}

	if err := i.validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}

		return connect.NewError(connect.CodeInternal, err)
	}

	return nil
}

func (i *ValidationInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if !req.Spec().IsClient {
			if err := i.check(req.Any()); err != nil {
				return nil, err
			}
		}

		return next(ctx, req)
	}
}

func (i *ValidationInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *ValidationInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return next(ctx, &validatingConn{StreamingHandlerConn: conn, check: i.check})
	}
}

type validatingConn struct {
	connect.StreamingHandlerConn
	check func(any) error
}

func (c *validatingConn) Receive(msg any) error {
	if err := c.StreamingHandlerConn.Receive(msg); err != nil {
		return err
	}

	return c.check(msg)
}

var _ connect.Interceptor = (*ValidationInterceptor)(nil)
