package main

import (
	"database/sql"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/trezcool/coachdesk/core"
	"github.com/trezcool/coachdesk/core/alert"
	"github.com/trezcool/coachdesk/core/appointment"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf     *core.Config
	db       *sql.DB
	apptSvc  *appointment.Service
	alertSvc *alert.Service
	out      io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Coachdesk administration.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	cmd.SetOut(cli.out)
	cmd.SetErr(cli.out)

	cli.addMigrate(cmd)
	cli.addRemind(cmd)
	cli.addNotify(cmd)
	cli.addToken(cmd)
	cli.addSchedule(cmd)
	return cmd
}

// run executes the command line, args[0] being the program name.
func (cli *commandLine) run(args []string) error {
	if cli.out == nil {
		cli.out = os.Stdout
	}
	cmd := cli.rootCmd()
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

// usageArgs prints the usage instead of cobra's error when fewer than n args are given.
func usageArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			_ = cmd.Usage()
			return errHelp
		}
		return nil
	}
}
