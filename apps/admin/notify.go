package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (cli *commandLine) addNotify(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "notify COACH_ID MESSAGE...",
		Short:   "Push an alert to a coach's dashboards.",
		Example: `admin notify 42 "Room 4 is closed today"`,
		Args:    usageArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := cli.alertSvc.Notify(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ev.ID)
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}
