package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/kilonova-lab/specconv/internal/parser"
	"github.com/kilonova-lab/specconv/internal/preview"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		timeIndex int
		kind      string
		width     float64
		height    float64
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "preview <input.dat> <out.png>",
		Short: "Render flux against wavelength for every angle bin at one time step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := ctx.wavelengthPolicy(strict)
			if err != nil {
				return err
			}
			spec, err := parser.Parse(args[0], parser.Options{WavelengthPolicy: policy})
			if err != nil {
				return err
			}

			opts := preview.Options{
				TimeIndex: timeIndex,
				Kind:      preview.Kind(kind),
				Width:     vg.Points(width),
				Height:    vg.Points(height),
			}
			if err := preview.WriteFile(args[1], spec, opts); err != nil {
				return fmt.Errorf("render preview: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (t = %g)\n", args[1], spec.Time[timeIndex])
			return nil
		},
	}

	cmd.Flags().IntVarP(&timeIndex, "time-index", "t", 0, "Zero-based time step to plot")
	cmd.Flags().StringVar(&kind, "kind", string(preview.KindLines), "Plot style (lines, heatmap)")
	cmd.Flags().Float64Var(&width, "width", 800, "Image width in points")
	cmd.Flags().Float64Var(&height, "height", 400, "Image height in points")
	cmd.Flags().BoolVar(&strict, "strict-wavelengths", false, "Fail when blocks disagree on wavelength bins")
	return cmd
}
