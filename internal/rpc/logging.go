package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-Id"

// LoggingInterceptor attaches a request scoped logger to the context and
// logs the result of every RPC.
type LoggingInterceptor struct{}

func NewLoggingInterceptor() *LoggingInterceptor {
	return &LoggingInterceptor{}
}

func (*LoggingInterceptor) prepare(ctx context.Context, procedure, requestID string) (context.Context, *logrus.Entry) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	l := log.L(ctx).WithFields(logrus.Fields{
		"procedure": procedure,
		"requestId": requestID,
	})

	return log.WithLogger(ctx, l), l
}

func finish(ctx context.Context, start time.Time, err error) {
	// the auth interceptor enriches the logger with the user
	l := log.L(ctx).WithField("duration", time.Since(start).String())

	if err == nil {
		l.Info("request handled")

		return
	}

	code := connect.CodeOf(err)
	l = l.WithField("code", code.String())

	var cerr *connect.Error
	if code == connect.CodeInternal || code == connect.CodeUnknown || !errors.As(err, &cerr) {
		l.Errorf("request failed: %s", err)
	} else {
		l.Infof("request failed: %s", err)
	}
}

func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		start := time.Now()
		ctx, _ = i.prepare(ctx, req.Spec().Procedure, req.Header().Get(requestIDHeader))

		res, err := next(ctx, req)
		finish(ctx, start, err)

		return res, err
	}
}

func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()

		ctx, l := i.prepare(ctx, conn.Spec().Procedure, conn.RequestHeader().Get(requestIDHeader))
		l.Info("stream opened")

		err := next(ctx, conn)
		finish(ctx, start, err)

		return err
	}
}

var _ connect.Interceptor = (*LoggingInterceptor)(nil)
