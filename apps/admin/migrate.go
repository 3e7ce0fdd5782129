package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/coachdesk/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) addMigrate(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run database migrations.",
		Long:  "Run database migrations. COMMAND is any goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix.",
		Example: `
admin migrate up
admin migrate down-to 1
admin migrate create add_rooms sql
`,
		Args: usageArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
	topLevel.AddCommand(cmd)
}
