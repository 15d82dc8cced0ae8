package cmds

import (
	"strings"

	"github.com/carefollow/callboard/internal/services"
	"github.com/spf13/cobra"
)

func GetPresetsCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the objective presets of the organisation",
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.OrganisationRef, services.ListPresetsResponse](root, services.PresetServiceName, "ListPresets", &services.OrganisationRef{
				OrganisationID: root.Organisation,
			})

			root.Print(res.Presets)
		},
	}

	trees := &cobra.Command{
		Use:   "trees",
		Short: "List the conversation tree presets",
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.OrganisationRef, services.ListTreePresetsResponse](root, services.PresetServiceName, "ListTreePresets", &services.OrganisationRef{
				OrganisationID: root.Organisation,
			})

			root.Print(res.Presets)
		},
	}

	remove := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an objective preset",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			call[services.DeleteRequest, services.Empty](root, services.PresetServiceName, "DeletePreset", &services.DeleteRequest{
				OrganisationID: root.Organisation,
				ID:             args[0],
			})
		},
	}

	cmd.AddCommand(trees, remove)

	return cmd
}

func GetObjectivesCommand(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objectives",
		Short: "Work with call objectives",
	}

	generate := &cobra.Command{
		Use:   "generate <instructions>",
		Short: "Turn free-text instructions into call objectives",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.GenerateObjectivesRequest, services.GenerateObjectivesResponse](root, services.PresetServiceName, "GenerateObjectives", &services.GenerateObjectivesRequest{
				OrganisationID: root.Organisation,
				Instructions:   strings.Join(args, " "),
			})

			root.Print(res.Objectives)
		},
	}

	cmd.AddCommand(generate)

	return cmd
}
