package cli

import "github.com/spf13/cobra"

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <sku>",
		Short: "Force-reconcile local state against the server and flush any queued mutations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]
			svc := app.Replica(sku)

			result, err := svc.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.FlushOutbound(cmd.Context()); err != nil {
				return err
			}
			app.IO.Printf(
				"incidents applied=%d pushed=%d, scratchpads applied=%d\n",
				result.IncidentsApplied, result.IncidentsPushed, result.ScratchpadsApplied,
			)
			return nil
		},
	}
}
