package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/rpc"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Root is the root command of callctl and holds the connection settings
// shared by all sub-commands.
type Root struct {
	*cobra.Command

	Server       string
	Token        string
	Organisation string
	Output       string

	httpClient *http.Client
}

func New(name string) *Root {
	root := &Root{
		httpClient: http.DefaultClient,
	}

	root.Command = &cobra.Command{
		Use:          name,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch root.Output {
			case "json", "yaml":
			default:
				return fmt.Errorf("unsupported output format %q", root.Output)
			}

			if root.Server == "" {
				return fmt.Errorf("--server or CALLBOARD_SERVER must be set")
			}

			return nil
		},
	}

	f := root.PersistentFlags()
	{
		f.StringVarP(&root.Server, "server", "s", os.Getenv("CALLBOARD_SERVER"), "The base URL of the callboard server")
		f.StringVar(&root.Token, "token", os.Getenv("CALLBOARD_TOKEN"), "The access token used to authenticate")
		f.StringVar(&root.Organisation, "org", os.Getenv("CALLBOARD_ORGANISATION"), "The organisation to operate on, defaults to the one of the token")
		f.StringVarP(&root.Output, "output", "o", "yaml", "The output format, either json or yaml")
	}

	return root
}

func (root *Root) url(service, method string) string {
	return strings.TrimSuffix(root.Server, "/") + "/" + service + "/" + method
}

func (root *Root) clientOptions() []connect.ClientOption {
	return rpc.ClientOptions(auth.NewClientInterceptor(root.Token))
}

// Print writes msg to stdout in the selected output format.
func (root *Root) Print(msg any) {
	blob, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		logrus.Fatalf("failed to encode result: %s", err)
	}

	if root.Output == "yaml" {
		blob, err = yaml.JSONToYAML(blob)
		if err != nil {
			logrus.Fatalf("failed to convert result to YAML: %s", err)
		}
	}

	fmt.Println(strings.TrimSpace(string(blob)))
}

// call invokes a unary method of service.
func call[Req, Res any](root *Root, service, method string, req *Req) *Res {
	cli := connect.NewClient[Req, Res](root.httpClient, root.url(service, method), root.clientOptions()...)

	res, err := cli.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		logrus.Fatal(err)
	}

	return res.Msg
}

// stream invokes a server streaming method of service and calls fn for
// every received message until the stream ends or ctx is cancelled.
func stream[Req, Res any](ctx context.Context, root *Root, service, method string, req *Req, fn func(*Res)) error {
	cli := connect.NewClient[Req, Res](root.httpClient, root.url(service, method), root.clientOptions()...)

	s, err := cli.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return err
	}
	defer s.Close()

	for s.Receive() {
		fn(s.Msg())
	}

	if err := s.Err(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}
