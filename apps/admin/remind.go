package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (cli *commandLine) addRemind(topLevel *cobra.Command) {
	var at string

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send the due appointment reminders now.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return errors.Wrap(err, "parsing --at")
				}
				now = t.UTC()
			}
			n, err := cli.apptSvc.SendReminders(cmd.Context(), now)
			fmt.Fprintf(cmd.OutOrStdout(), "%d reminder(s) sent\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "pretend it is this RFC3339 time")
	topLevel.AddCommand(cmd)
}
