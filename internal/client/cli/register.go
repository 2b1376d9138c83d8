package cli

import "github.com/spf13/cobra"

func newRegisterCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Announce this device's display name to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			if err := app.Client.RegisterUser(cmd.Context(), name); err != nil {
				return err
			}
			app.IO.Printf("registered %q, peer id %s\n", name, app.Key.PeerID())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name shown to other referees")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
