package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilonova-lab/specconv/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog <output_dir>",
		Short: "List conversions recorded in an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := catalog.OpenReadOnly(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No conversions recorded")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				detail := filepath.Base(e.Output)
				if e.ErrorKind != "" {
					detail = e.ErrorKind + ": " + e.Error
				}
				rows = append(rows, []string{
					e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					filepath.Base(e.Source),
					string(e.Status),
					formatShape(e.Shape),
					detail,
				})
			}
			printTable(out, []column{left("Recorded"), left("Input"), left("Status"), right("Shape"), wrapped("Output / Error")}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
