package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/coachdesk/core/appointment"
)

func (cli *commandLine) addSchedule(topLevel *cobra.Command) {
	var (
		appt appointment.Appointment
		at   string
	)

	cmd := &cobra.Command{
		Use:     "schedule COACH_ID",
		Short:   "Book an appointment.",
		Example: `admin schedule 42 --at 2026-10-20T09:00:00Z --participant "Amani" --email amani@example.com`,
		Args:    usageArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return errors.Wrap(err, "parsing --at")
			}
			appt.CoachID = args[0]
			appt.ScheduledAt = t

			created, err := cli.apptSvc.Schedule(cmd.Context(), appt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 start time (required)")
	cmd.Flags().StringVar(&appt.ParticipantName, "participant", "", "participant name")
	cmd.Flags().StringVar(&appt.ParticipantEmail, "email", "", "participant email, reminders go there")
	cmd.Flags().StringVar(&appt.Location, "location", "", "where the session takes place")
	_ = cmd.MarkFlagRequired("at")
	topLevel.AddCommand(cmd)
}
