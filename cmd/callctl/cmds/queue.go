package cmds

import (
	"github.com/carefollow/callboard/internal/services"
	"github.com/spf13/cobra"
)

func GetQueueCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage scheduled follow-up calls",
	}

	cmd.AddCommand(
		getScheduleCommand(root),
		getDeleteQueuedCommand(root),
	)

	return cmd
}

func getScheduleCommand(root *Root) *cobra.Command {
	req := &services.ScheduleCallRequest{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a follow-up call",
		Run: func(cmd *cobra.Command, args []string) {
			req.OrganisationID = root.Organisation

			res := call[services.ScheduleCallRequest, services.ScheduleCallResponse](root, services.CallServiceName, "ScheduleCall", req)

			root.Print(res)
		},
	}

	f := cmd.Flags()
	{
		f.StringVar(&req.PatientID, "patient-id", "", "The roster entry to call")
		f.StringVar(&req.PatientName, "name", "", "The name of the patient, defaults to the roster entry")
		f.StringVar(&req.PhoneNumber, "phone", "", "The number to call, defaults to the roster entry")
		f.StringArrayVar(&req.Objectives, "objective", nil, "An objective of the call, may be repeated")
		f.StringVar(&req.TemplateTitle, "template", "", "The template title of the call")
		f.StringVar(&req.Date, "date", "", "The local date of the call (2006-01-02), defaults to today")
		f.StringVar(&req.Time, "time", "", "The local time of the call (15:04)")
	}

	return cmd
}

func getDeleteQueuedCommand(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a queued call",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			call[services.CallRef, services.Empty](root, services.CallServiceName, "DeleteQueuedCall", &services.CallRef{
				OrganisationID: root.Organisation,
				ID:             args[0],
			})
		},
	}
}
