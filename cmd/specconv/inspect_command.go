package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilonova-lab/specconv/internal/models"
	"github.com/kilonova-lab/specconv/internal/parser"
	"github.com/kilonova-lab/specconv/internal/store"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "inspect <container.knspec | input.dat>",
		Short: "Show metadata and datasets of a container or spectrum file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var (
				c   *store.Container
				err error
			)
			if strings.EqualFold(filepath.Ext(path), store.NewMsgpackWriter().Extension()) {
				c, err = store.ReadContainer(path)
				if err != nil {
					return fmt.Errorf("read container: %w", err)
				}
			} else {
				policy, perr := ctx.wavelengthPolicy(strict)
				if perr != nil {
					return perr
				}
				spec, perr := parser.Parse(path, parser.Options{WavelengthPolicy: policy})
				if perr != nil {
					return perr
				}
				c, err = store.FromSpectrum(spec)
				if err != nil {
					return err
				}
			}

			spec, err := c.Spectrum()
			if err != nil {
				return err
			}
			printInspection(cmd.OutOrStdout(), c, spec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict-wavelengths", false, "Fail when blocks disagree on wavelength bins")
	return cmd
}

func printInspection(out io.Writer, c *store.Container, spec *models.Spectrum) {
	md := spec.Metadata
	fmt.Fprintf(out, "Source:    %s\n", c.Source)
	fmt.Fprintf(out, "Topology:  %s (%d)\n", md.Topology, int(md.Topology))
	fmt.Fprintf(out, "Wind:      %s (%d)\n", md.Wind, int(md.Wind))
	fmt.Fprintf(out, "Ejecta:    md=%g vd=%g mw=%g vw=%g\n",
		md.MassDynamical, md.VelocityDynamical, md.MassWind, md.VelocityWind)
	if len(spec.Time) > 0 {
		fmt.Fprintf(out, "Time:      %d steps, %g .. %g\n", len(spec.Time), spec.Time[0], spec.Time[len(spec.Time)-1])
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(c.Datasets))
	for _, d := range c.Datasets {
		shape := "scalar"
		if !d.Scalar() {
			dims := make([]string, len(d.Shape))
			for i, n := range d.Shape {
				dims[i] = fmt.Sprint(n)
			}
			shape = strings.Join(dims, "×")
		}
		rows = append(rows, []string{d.Name, string(d.DType), shape, d.Description})
	}
	printTable(out, []column{left("Dataset"), left("Type"), right("Shape"), wrapped("Description")}, rows)

	for _, w := range spec.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}
