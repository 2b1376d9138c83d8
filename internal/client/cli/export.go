package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the public incident export for an event",
	}
	cmd.AddCommand(newExportCSVCmd(), newExportJSONCmd())
	return cmd
}

func newExportCSVCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "csv <sku>",
		Short: "Download the CSV incident export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			body, err := app.Client.ExportCSV(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeExport(out, body, app)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write to this file instead of stdout")
	return cmd
}

func newExportJSONCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "json <sku>",
		Short: "Download the JSON incident export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFromContext(cmd.Context())
			incidents, err := app.Client.ExportJSON(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			body, err := json.MarshalIndent(incidents, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal incidents: %w", err)
			}
			return writeExport(out, body, app)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write to this file instead of stdout")
	return cmd
}

func writeExport(path string, body []byte, app *App) error {
	if path == "" {
		_, err := app.IO.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
