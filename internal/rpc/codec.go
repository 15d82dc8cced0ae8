// Package rpc contains the connect plumbing shared by the callboard
// services and clients.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bufbuild/connect-go"
)

// Codec encodes messages as plain JSON. Messages are ordinary Go structs
// instead of generated protobuf types.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, msg)
}

// HandlerOptions returns the options every callboard handler is created
// with.
func HandlerOptions(interceptors ...connect.Interceptor) []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(Codec{}),
		connect.WithInterceptors(interceptors...),
	}
}

// ClientOptions returns the options for a callboard client.
func ClientOptions(interceptors ...connect.Interceptor) []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(Codec{}),
		connect.WithInterceptors(interceptors...),
	}
}

// Service collects the procedures of a single connect service.
type Service struct {
	name string
	mux  *http.ServeMux
}

func NewService(name string) *Service {
	return &Service{
		name: name,
		mux:  http.NewServeMux(),
	}
}

// Procedure returns the full procedure path of method.
func (s *Service) Procedure(method string) string {
	return "/" + s.name + "/" + method
}

// Handle mounts the handler returned by build for method.
func (s *Service) Handle(method string, build func(procedure string) http.Handler) {
	procedure := s.Procedure(method)
	s.mux.Handle(procedure, build(procedure))
}

// Handler returns the mount path and handler of the service.
func (s *Service) Handler() (string, http.Handler) {
	return "/" + s.name + "/", s.mux
}

// Unary registers a unary method.
func Unary[Req, Res any](s *Service, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error), opts ...connect.HandlerOption) {
	s.Handle(method, func(procedure string) http.Handler {
		return connect.NewUnaryHandler(procedure, fn, opts...)
	})
}

// ServerStream registers a server streaming method.
func ServerStream[Req, Res any](s *Service, method string, fn func(context.Context, *connect.Request[Req], *connect.ServerStream[Res]) error, opts ...connect.HandlerOption) {
	s.Handle(method, func(procedure string) http.Handler {
		return connect.NewServerStreamHandler(procedure, fn, opts...)
	})
}
