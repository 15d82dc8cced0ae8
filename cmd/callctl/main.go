package main

import (
	"errors"
	"os"

	"github.com/carefollow/callboard/cmd/callctl/cmds"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("failed to load .env file: %s", err)
	}

	root := cmds.New("callctl")

	root.AddCommand(
		cmds.GetCallsCommand(root),
		cmds.GetQueueCommand(root),
		cmds.GetPatientsCommand(root),
		cmds.GetPresetsCommand(root),
		cmds.GetObjectivesCommand(root),
		cmds.GetOrganisationCommand(root),
	)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
