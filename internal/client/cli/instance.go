package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage event instance membership",
	}
	cmd.AddCommand(
		newInstanceCreateCmd(),
		newInstanceJoinCmd(),
		newInstanceInviteCmd(),
		newInstanceRevokeCmd(),
		newInstanceRequestCodeCmd(),
		newInstanceResolveCodeCmd(),
	)
	return cmd
}

func newInstanceCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <sku>",
		Short: "Provision a new event instance with this device as its sole admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]
			inv, err := app.Client.CreateInstance(cmd.Context(), sku)
			if err != nil {
				return err
			}
			if err := app.Store.SaveMembership(cmd.Context(), sku, inv); err != nil {
				return fmt.Errorf("save membership: %w", err)
			}
			app.IO.Printf("created %s, admin invitation %s\n", sku, inv.ID)
			return nil
		},
	}
}

func newInstanceJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <sku> <invitation-id>",
		Short: "Accept a pending invitation and record membership locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, invitationID := args[0], args[1]
			inv, err := app.Client.AcceptInvitation(cmd.Context(), sku, invitationID)
			if err != nil {
				return err
			}
			if err := app.Store.SaveMembership(cmd.Context(), sku, inv); err != nil {
				return fmt.Errorf("save membership: %w", err)
			}
			app.IO.Printf("joined %s as %s\n", sku, app.Key.PeerID())
			return nil
		},
	}
}

func newInstanceInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite <sku> <peer-id>",
		Short: "Grant another device access to an event instance (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, peerID := args[0], args[1]
			inv, err := app.Client.Invite(cmd.Context(), sku, peerID)
			if err != nil {
				return err
			}
			app.IO.Printf("invited %s to %s, invitation %s\n", peerID, sku, inv.ID)
			return nil
		},
	}
}

func newInstanceRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <sku> <peer-id>",
		Short: "Withdraw a device's access to an event instance (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, peerID := args[0], args[1]
			if err := app.Client.RevokeInvite(cmd.Context(), sku, peerID); err != nil {
				return err
			}
			app.IO.Printf("revoked %s from %s\n", peerID, sku)
			return nil
		},
	}
}

func newInstanceRequestCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request-code <sku>",
		Short: "Issue a short out-of-band code an admin can resolve to admit this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			code, err := app.Client.CreateRequestCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.IO.Printf("request code: %s\n", code)
			return nil
		},
	}
}

func newInstanceResolveCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-code <sku> <code>",
		Short: "Resolve an out-of-band request code to the peer id that requested it (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, code := args[0], args[1]
			peerID, err := app.Client.ResolveRequestCode(cmd.Context(), sku, code)
			if err != nil {
				return err
			}
			app.IO.Printf("code %s belongs to peer %s\n", code, peerID)
			return nil
		},
	}
}
