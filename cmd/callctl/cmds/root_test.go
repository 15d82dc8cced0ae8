package cmds

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/rpc"
)

type echoRequest struct {
	Value string `json:"value"`
}

type echoResponse struct {
	Value         string `json:"value"`
	Authorization string `json:"authorization"`
}

func newEchoServer(t *testing.T) *Root {
	t.Helper()

	s := rpc.NewService("test.v1.EchoService")
	rpc.Unary(s, "Echo", func(ctx context.Context, req *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
		return connect.NewResponse(&echoResponse{
			Value:         req.Msg.Value,
			Authorization: req.Header().Get("Authorization"),
		}), nil
	}, rpc.HandlerOptions()...)

	rpc.ServerStream(s, "Count", func(ctx context.Context, req *connect.Request[echoRequest], stream *connect.ServerStream[echoResponse]) error {
		if req.Msg.Value == "fail" {
			return connect.NewError(connect.CodeInvalidArgument, errors.New("fail"))
		}

		for _, v := range []string{"1", "2", "3"} {
			if err := stream.Send(&echoResponse{Value: v}); err != nil {
				return err
			}
		}

		return nil
	}, rpc.HandlerOptions()...)

	path, handler := s.Handler()

	mux := httptest.NewServer(handler)
	t.Cleanup(mux.Close)

	root := New("callctl")
	root.Server = mux.URL + "/"
	root.Token = "secret"
	root.httpClient = mux.Client()

	if path != "/test.v1.EchoService/" {
		t.Fatalf("unexpected mount path %q", path)
	}

	return root
}

func TestCall(t *testing.T) {
	root := newEchoServer(t)

	res := call[echoRequest, echoResponse](root, "test.v1.EchoService", "Echo", &echoRequest{Value: "hello"})

	if res.Value != "hello" {
		t.Errorf("expected hello, got %q", res.Value)
	}

	if res.Authorization != "Bearer secret" {
		t.Errorf("expected the token to be sent, got %q", res.Authorization)
	}
}

func TestStream(t *testing.T) {
	root := newEchoServer(t)

	var got []string
	err := stream(context.Background(), root, "test.v1.EchoService", "Count", &echoRequest{}, func(res *echoResponse) {
		got = append(got, res.Value)
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if len(got) != 3 || got[0] != "1" || got[2] != "3" {
		t.Errorf("unexpected messages: %v", got)
	}

	err = stream(context.Background(), root, "test.v1.EchoService", "Count", &echoRequest{Value: "fail"}, func(res *echoResponse) {})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestPersistentFlagValidation(t *testing.T) {
	cases := []struct {
		output string
		server string
		ok     bool
	}{
		{"yaml", "http://localhost", true},
		{"json", "http://localhost", true},
		{"table", "http://localhost", false},
		{"yaml", "", false},
	}

	for _, c := range cases {
		root := New("callctl")
		root.Output = c.output
		root.Server = c.server

		err := root.PersistentPreRunE(root.Command, nil)
		if (err == nil) != c.ok {
			t.Errorf("output=%q server=%q: unexpected result %v", c.output, c.server, err)
		}
	}
}
