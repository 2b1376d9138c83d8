package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldref/syncore/internal/models"
)

func newIncidentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incident",
		Short: "Record and review rule-violation incidents",
	}
	cmd.AddCommand(
		newIncidentAddCmd(),
		newIncidentUpdateCmd(),
		newIncidentRemoveCmd(),
		newIncidentListCmd(),
	)
	return cmd
}

func newIncidentAddCmd() *cobra.Command {
	var team, outcome, notes string
	var rules, assets []string
	var matchName string
	var matchDivision, matchID uint32

	cmd := &cobra.Command{
		Use:   "add <sku>",
		Short: "Record a new incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]

			inc := models.Incident{
				ID:       uuid.NewString(),
				EventSKU: sku,
				Team:     team,
				Outcome:  models.Outcome(outcome),
				Rules:    rules,
				Notes:    notes,
				Time:     time.Now().UTC().Unix(),
				Assets:   assets,
			}
			if matchName != "" {
				inc.Match = &models.MatchReference{Division: matchDivision, Name: matchName, MatchID: uint64(matchID)}
			}

			if err := app.Replica(sku).AddIncident(cmd.Context(), inc); err != nil {
				return err
			}
			app.IO.Printf("recorded incident %s\n", inc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "Team number")
	cmd.Flags().StringVar(&outcome, "outcome", string(models.OutcomeGeneral), "Outcome: General, Minor, Major, Disabled")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form description")
	cmd.Flags().StringSliceVar(&rules, "rule", nil, "Rule reference, repeatable")
	cmd.Flags().StringSliceVar(&assets, "asset", nil, "Attached asset reference, repeatable")
	cmd.Flags().StringVar(&matchName, "match", "", "League match name (omit to record the incident without a match reference)")
	cmd.Flags().Uint32Var(&matchDivision, "division", 0, "League division number")
	cmd.Flags().Uint32Var(&matchID, "match-id", 0, "League match id")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func newIncidentUpdateCmd() *cobra.Command {
	var outcome, notes string
	var setFields []string

	cmd := &cobra.Command{
		Use:   "update <sku> <id>",
		Short: "Apply field changes to an existing incident",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, id := args[0], args[1]
			peer := app.Key.PeerID()

			err := app.Replica(sku).UpdateIncident(cmd.Context(), id, func(env *models.Envelope) {
				if cmd.Flags().Changed("outcome") {
					env.Update("outcome", outcome, peer)
				}
				if cmd.Flags().Changed("notes") {
					env.Update("notes", notes, peer)
				}
				for _, kv := range setFields {
					k, v, ok := splitKV(kv)
					if ok {
						env.Update(k, v, peer)
					}
				}
			})
			if err != nil {
				return err
			}
			app.IO.Printf("updated incident %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "New outcome: General, Minor, Major, Disabled")
	cmd.Flags().StringVar(&notes, "notes", "", "New free-form description")
	cmd.Flags().StringArrayVar(&setFields, "set", nil, "Arbitrary field=value, repeatable")
	return cmd
}

func newIncidentRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <sku> <id>",
		Short: "Tombstone an incident",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku, id := args[0], args[1]
			if err := app.Replica(sku).RemoveIncident(cmd.Context(), id); err != nil {
				return err
			}
			app.IO.Printf("removed incident %s\n", id)
			return nil
		},
	}
}

func newIncidentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <sku>",
		Short: "List locally known incidents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			sku := args[0]
			m, err := app.Store.LoadIncidents(cmd.Context(), sku)
			if err != nil {
				return fmt.Errorf("load incidents: %w", err)
			}
			for id, env := range m.Values {
				var inc models.Incident
				if err := models.FromFieldMap(env.Immutable, env.Fields, &inc); err != nil {
					return fmt.Errorf("decode incident %s: %w", id, err)
				}
				app.IO.Printf("%s\tteam=%s\toutcome=%s\t%s\n", inc.ID, inc.Team, inc.Outcome, inc.Notes)
			}
			return nil
		},
	}
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
