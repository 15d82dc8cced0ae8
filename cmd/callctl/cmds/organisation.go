package cmds

import (
	"github.com/carefollow/callboard/internal/services"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/spf13/cobra"
)

func GetOrganisationCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "organisation",
		Aliases: []string{"org"},
		Short:   "Show the settings of the organisation",
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.OrganisationRef, services.OrganisationResponse](root, services.OrganisationServiceName, "GetOrganisation", &services.OrganisationRef{
				OrganisationID: root.Organisation,
			})

			root.Print(res.Organisation)
		},
	}

	cmd.AddCommand(getSaveOrganisationCommand(root, "create", "CreateOrganisation"))
	cmd.AddCommand(getSaveOrganisationCommand(root, "update", "UpdateOrganisation"))

	return cmd
}

func getSaveOrganisationCommand(root *Root, use, method string) *cobra.Command {
	var org structs.Organisation

	cmd := &cobra.Command{
		Use:   use,
		Short: "Save the settings of an organisation",
		Run: func(cmd *cobra.Command, args []string) {
			if org.ID == "" {
				org.ID = root.Organisation
			}

			res := call[services.OrganisationRequest, services.OrganisationResponse](root, services.OrganisationServiceName, method, &services.OrganisationRequest{
				Organisation: org,
			})

			root.Print(res.Organisation)
		},
	}

	f := cmd.Flags()
	{
		f.StringVar(&org.ID, "id", "", "The organisation id, defaults to --org")
		f.StringVar(&org.Name, "name", "", "The display name")
		f.StringVar(&org.Country, "country", "", "The ISO 3166 region used for local phone numbers")
		f.StringVar(&org.Language, "language", "", "The language of date labels, en or es")
		f.StringVar(&org.Timezone, "timezone", "", "The IANA time zone of the organisation")
		f.StringVar(&org.InboundNumber, "inbound-number", "", "The number patients call in on")
	}

	return cmd
}
