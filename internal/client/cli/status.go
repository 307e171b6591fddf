package cli

import (
	"github.com/spf13/cobra"
)

func newStatusCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status UPLOAD_ID",
		Short: "Show the validation status of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			st, err := a.api.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printStatus(st)
			return nil
		},
	}
}
