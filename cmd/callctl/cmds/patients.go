package cmds

import (
	"os"
	"path/filepath"

	"github.com/carefollow/callboard/internal/services"
	"github.com/carefollow/callboard/internal/structs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func GetPatientsCommand(root *Root) *cobra.Command {
	var search string

	list := func(cmd *cobra.Command, args []string) {
		res := call[services.ListPatientsRequest, services.ListPatientsResponse](root, services.PatientServiceName, "ListPatients", &services.ListPatientsRequest{
			OrganisationID: root.Organisation,
			Search:         search,
		})

		root.Print(res.Patients)
	}

	cmd := &cobra.Command{
		Use:     "patients",
		Aliases: []string{"roster"},
		Short:   "List the patient roster",
		Run:     list,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the patient roster",
		Run:     list,
	}

	for _, c := range []*cobra.Command{cmd, listCmd} {
		c.Flags().StringVar(&search, "search", "", "Only show patients whose name or number contains the value")
	}

	cmd.AddCommand(
		listCmd,
		getCreatePatientCommand(root),
		getImportPatientsCommand(root),
		getDeletePatientCommand(root),
	)

	return cmd
}

func getCreatePatientCommand(root *Root) *cobra.Command {
	var patient structs.Patient

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a patient to the roster",
		Run: func(cmd *cobra.Command, args []string) {
			res := call[services.PatientRequest, services.PatientResponse](root, services.PatientServiceName, "CreatePatient", &services.PatientRequest{
				OrganisationID: root.Organisation,
				Patient:        patient,
			})

			root.Print(res.Patient)
		},
	}

	f := cmd.Flags()
	{
		f.StringVar(&patient.CustomerName, "name", "", "The name of the patient")
		f.StringVar(&patient.PhoneNumber, "phone", "", "The phone number of the patient")
		f.StringVar(&patient.DateOfBirth, "dob", "", "The date of birth of the patient")
	}

	return cmd
}

func getImportPatientsCommand(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv|file.xlsx>",
		Short: "Import a roster spreadsheet",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				logrus.Fatal(err)
			}

			res := call[services.ImportPatientsRequest, services.ImportPatientsResponse](root, services.PatientServiceName, "ImportPatients", &services.ImportPatientsRequest{
				OrganisationID: root.Organisation,
				Filename:       filepath.Base(args[0]),
				Data:           data,
			})

			root.Print(res)
		},
	}
}

func getDeletePatientCommand(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a patient from the roster",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			call[services.DeletePatientRequest, services.Empty](root, services.PatientServiceName, "DeletePatient", &services.DeletePatientRequest{
				OrganisationID: root.Organisation,
				ID:             args[0],
			})
		},
	}
}
