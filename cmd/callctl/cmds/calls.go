package cmds

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/carefollow/callboard/internal/services"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func GetCallsCommand(root *Root) *cobra.Command {
	var (
		profile   string
		language  string
		statuses  []string
		direction []string
		templates []string
		fromStr   string
		toStr     string
	)

	request := func(cmd *cobra.Command) *services.ListCallsRequest {
		req := &services.ListCallsRequest{
			OrganisationID: root.Organisation,
			Profile:        profile,
			Language:       language,
		}

		f := cmd.Flags()
		if f.Changed("status") || f.Changed("direction") || f.Changed("template") {
			req.Filters = new(services.FilterSet)

			if f.Changed("status") {
				req.Filters.Status = make([]structs.Status, 0, len(statuses))
				for _, s := range statuses {
					req.Filters.Status = append(req.Filters.Status, structs.Status(s))
				}
			}

			if f.Changed("direction") {
				req.Filters.Direction = direction
			}

			if f.Changed("template") {
				req.Filters.TemplateTitle = templates
			}
		}

		if fromStr != "" {
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				logrus.Fatal("invalid value for --from")
			}
			req.From = &from
		}

		if toStr != "" {
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				logrus.Fatal("invalid value for --to")
			}
			req.To = &to
		}

		return req
	}

	cmd := &cobra.Command{
		Use:     "calls",
		Aliases: []string{"board"},
		Short:   "Show the call board grouped by day",
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.ListCallsRequest, services.ListCallsResponse](root, services.CallServiceName, "ListCalls", request(cmd))

			root.Print(res)
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print the call board whenever it changes",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			err := stream(ctx, root, services.CallServiceName, "WatchCalls", request(cmd), func(res *services.ListCallsResponse) {
				root.Print(res)
			})
			if err != nil {
				logrus.Fatal(err)
			}
		},
	}

	for _, c := range []*cobra.Command{cmd, watch} {
		f := c.Flags()

		f.StringVar(&profile, "profile", "", "The dashboard profile, either calls or remote-monitoring")
		f.StringVar(&language, "lang", "", "The language of the date labels")
		f.StringSliceVar(&statuses, "status", nil, "Only show calls with the given status")
		f.StringSliceVar(&direction, "direction", nil, "Only show inbound or outbound calls")
		f.StringSliceVar(&templates, "template", nil, "Only show calls with the given template title")
		f.StringVar(&fromStr, "from", "", "Only show calls after this time. Format: "+time.RFC3339)
		f.StringVar(&toStr, "to", "", "Only show calls before this time. Format: "+time.RFC3339)
	}

	cmd.AddCommand(
		watch,
		getMarkViewedCommand(root),
		getRetryCommand(root),
		getResultCommand(root),
	)

	return cmd
}

func getMarkViewedCommand(root *Root) *cobra.Command {
	var unviewed bool

	cmd := &cobra.Command{
		Use:   "mark-viewed <kind> <id>",
		Short: "Mark a queued, failed or processed call as viewed",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.MarkViewedRequest, services.MarkViewedResponse](root, services.CallServiceName, "MarkViewed", &services.MarkViewedRequest{
				OrganisationID: root.Organisation,
				Kind:           structs.Kind(args[0]),
				ID:             args[1],
				Viewed:         !unviewed,
			})

			root.Print(res)
		},
	}

	cmd.Flags().BoolVar(&unviewed, "unviewed", false, "Clear the viewed flag instead")

	return cmd
}

func getRetryCommand(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Place a finished call again",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			call[services.CallRef, services.Empty](root, services.CallServiceName, "RetryCall", &services.CallRef{
				OrganisationID: root.Organisation,
				ID:             args[0],
			})
		},
	}
}

func getResultCommand(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "result <id>",
		Short: "Show the transcript and goals of a finished call",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.CallRef, services.CallResult](root, services.CallServiceName, "GetCallResult", &services.CallRef{
				OrganisationID: root.Organisation,
				ID:             args[0],
			})

			root.Print(res)
		},
	}
}
