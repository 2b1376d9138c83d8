// Package cli builds the referee command-line tree: device identity
// bootstrap, event instance membership, incident/scratchpad
// mutations, reconciliation against the server, and exports.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldref/syncore/internal/client/iocli"
)

type appContextKey struct{}

func appFromContext(ctx context.Context) *App {
	return ctx.Value(appContextKey{}).(*App)
}

// NewRootCommand builds the full command tree for cmd/client.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("syncore")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "syncore-client",
		Short:         "Collaborative incident-log client for a field referee device",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().String("server", "http://localhost:8080", "Sync server base URL")
	root.PersistentFlags().String("db", "syncore-client.db", "Path to the local replica database")
	root.PersistentFlags().String("key", "syncore-identity.json", "Path to this device's identity keystore file")
	bindFlag(v, root, "server")
	bindFlag(v, root, "db")
	bindFlag(v, root, "key")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context(), v.GetString("server"), v.GetString("db"), v.GetString("key"), iocli.NewStdio())
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appContextKey{}, app))
		return nil
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return appFromContext(cmd.Context()).Close()
	}

	root.AddCommand(
		newRegisterCmd(),
		newInstanceCmd(),
		newIncidentCmd(),
		newScratchpadCmd(),
		newSyncCmd(),
		newExportCmd(),
		newWatchCmd(),
	)
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}
