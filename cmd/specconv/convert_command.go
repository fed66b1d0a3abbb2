package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilonova-lab/specconv/internal/catalog"
	"github.com/kilonova-lab/specconv/internal/convert"
	"github.com/kilonova-lab/specconv/internal/models"
)

type convertFlags struct {
	format            string
	strictWavelengths bool
	failFast          bool
	noCatalog         bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert <input.dat>... <output_dir>",
		Short: "Convert spectrum files into array containers",
		Long: `Convert parses each input file, reshapes its flux table into a
(time, wavelength, angle) cube and writes one container per input into
output_dir. Inputs are processed in order; a failing file is reported and
the batch continues unless --fail-fast is set.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return cmd.Usage()
			}
			return runConvert(cmd, ctx, flags, args[:len(args)-1], args[len(args)-1])
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (msgpack, duckdb); defaults to the configured format")
	cmd.Flags().BoolVar(&flags.strictWavelengths, "strict-wavelengths", false, "Fail when blocks disagree on wavelength bins")
	cmd.Flags().BoolVar(&flags.failFast, "fail-fast", false, "Stop at the first failing file")
	cmd.Flags().BoolVar(&flags.noCatalog, "no-catalog", false, "Do not record conversions in the output directory catalog")
	return cmd
}

func runConvert(cmd *cobra.Command, ctx *commandContext, flags convertFlags, inputs []string, outDir string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	policy, err := ctx.wavelengthPolicy(flags.strictWavelengths)
	if err != nil {
		return err
	}
	perm, err := cfg.Output.Perm()
	if err != nil {
		return err
	}

	format := flags.format
	if format == "" {
		format = cfg.Output.Format
	}
	converter, err := convert.New(convert.Options{
		Format:           format,
		WavelengthPolicy: policy,
		FailFast:         flags.failFast || cfg.Processing.FailFast,
		FileMode:         perm,
	}, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", outDir, err)
	}

	if cfg.Processing.Catalog && !flags.noCatalog {
		ledger, err := catalog.Open(cmd.Context(), outDir)
		if err != nil {
			if errors.Is(err, catalog.ErrLocked) {
				return fmt.Errorf("%s: %w", outDir, err)
			}
			return fmt.Errorf("open catalog: %w", err)
		}
		defer ledger.Close()
		logger.Debug("catalog opened", "path", ledger.Path())
		converter.SetRecorder(ledger)
	}

	report := converter.ConvertAll(cmd.Context(), inputs, outDir)
	out := cmd.OutOrStdout()
	printReport(out, report)

	if report.HasFailures() {
		return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Results))
	}
	return nil
}

func printReport(out io.Writer, report *convert.Report) {
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		shape := ""
		detail := res.Output
		switch res.Status {
		case models.ConversionStatusConverted:
			shape = formatShape(res.Shape)
			if n := len(res.Warnings); n > 0 {
				detail += fmt.Sprintf(" (%d warning%s)", n, plural(n))
			}
		case models.ConversionStatusFailed:
			detail = res.ErrorKind + ": " + res.Error
		case models.ConversionStatusSkipped:
			detail = res.Error
		}
		rows = append(rows, []string{filepath.Base(res.Input), string(res.Status), shape, detail})
	}

	printTable(out, []column{left("Input"), left("Status"), right("Shape (T×N×M)"), wrapped("Output / Error")}, rows)
	fmt.Fprintf(out, "%d converted, %d failed, %d skipped (run %s)\n",
		report.Converted, report.Failed, report.Skipped, report.RunID)
}

func formatShape(shape [3]int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, "×")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
