package main

import (
	"fmt"

	"github.com/spf13/cobra"

	echoapi "github.com/trezcool/coachdesk/apps/api/echo"
	"github.com/trezcool/coachdesk/core"
)

func (cli *commandLine) addToken(topLevel *cobra.Command) {
	coach := core.Coach{}

	cmd := &cobra.Command{
		Use:   "token COACH_ID",
		Short: "Issue an API token for a coach.",
		Args:  usageArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coach.ID = args[0]
			token, err := echoapi.GenerateToken(cli.conf, echoapi.GetCoachClaims(cli.conf, coach))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&coach.Name, "name", "", "coach name")
	cmd.Flags().StringVar(&coach.Email, "email", "", "coach email")
	topLevel.AddCommand(cmd)
}
