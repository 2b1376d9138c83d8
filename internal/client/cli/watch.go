package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldref/syncore/internal/client/transport"
	"github.com/fieldref/syncore/pkg/api"
)

func newWatchCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "watch <sku>",
		Short: "Join the live session for an event and print incoming frames until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]

			sock, err := transport.Dial(cmd.Context(), app.ServerURL, sku, app.Key, name)
			if err != nil {
				return fmt.Errorf("join session: %w", err)
			}
			defer sock.Close()

			app.IO.Printf("joined %s as %s, watching for frames (ctrl-c to stop)\n", sku, app.Key.PeerID())
			for frame := range sock.Frames {
				printFrame(app, frame)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name announced on the join handshake")
	return cmd
}

func printFrame(app *App, frame api.Frame) {
	switch frame.Type {
	case api.FrameServerShareInfo:
		app.IO.Printf("[%s] snapshot refreshed\n", frame.Date)
	case api.FrameServerUserAdd, api.FrameServerUserRemove:
		app.IO.Printf("[%s] %s: %+v\n", frame.Date, frame.Type, frame.Body)
	default:
		app.IO.Printf("[%s] %s from %s: %+v\n", frame.Date, frame.Type, frame.Sender.Name, frame.Body)
	}
}
