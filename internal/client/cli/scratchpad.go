package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldref/syncore/internal/models"
)

func newScratchpadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scratchpad",
		Short: "Maintain free-form per-match annotations",
	}
	cmd.AddCommand(newScratchpadUpdateCmd(), newScratchpadListCmd())
	return cmd
}

func newScratchpadUpdateCmd() *cobra.Command {
	var division uint32
	var match, game, notes string
	var setFields []string

	cmd := &cobra.Command{
		Use:   "update <sku> <id>",
		Short: "Create or merge a scratchpad annotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, id := args[0], args[1]

			fields := map[string]any{}
			for _, kv := range setFields {
				if k, v, ok := splitKV(kv); ok {
					fields[k] = v
				}
			}

			pad := models.Scratchpad{
				ID:       id,
				EventSKU: sku,
				Division: division,
				Match:    match,
				Game:     game,
				Notes:    notes,
				Fields:   fields,
			}
			if err := app.Replica(sku).UpdateScratchpad(cmd.Context(), pad); err != nil {
				return err
			}
			app.IO.Printf("updated scratchpad %s\n", id)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&division, "division", 0, "League division number")
	cmd.Flags().StringVar(&match, "match", "", "Match name")
	cmd.Flags().StringVar(&game, "game", "", "Game identifier")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringArrayVar(&setFields, "set", nil, "Arbitrary field=value, repeatable")
	return cmd
}

func newScratchpadListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <sku>",
		Short: "List locally known scratchpads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]
			m, err := app.Store.LoadScratchpads(cmd.Context(), sku)
			if err != nil {
				return fmt.Errorf("load scratchpads: %w", err)
			}
			for id, env := range m.Values {
				var pad models.Scratchpad
				if err := models.FromFieldMap(env.Immutable, env.Fields, &pad); err != nil {
					return fmt.Errorf("decode scratchpad %s: %w", id, err)
				}
				app.IO.Printf("%s\tmatch=%s\tgame=%s\t%s\n", pad.ID, pad.Match, pad.Game, pad.Notes)
			}
			return nil
		},
	}
}
