// Package convert runs spectrum files through the parser and into an array
// store, one file at a time.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kilonova-lab/specconv/internal/catalog"
	"github.com/kilonova-lab/specconv/internal/models"
	"github.com/kilonova-lab/specconv/internal/parser"
	"github.com/kilonova-lab/specconv/internal/store"
)

// Error kinds reported in results and the ledger.
const (
	KindMetadata = "metadata"
	KindFormat   = "format"
	KindShape    = "shape"
	KindStore    = "store"
	KindIO       = "io"
)

// Kind classifies a conversion error.
func Kind(err error) string {
	var (
		metaErr   *parser.MetadataError
		formatErr *parser.FormatError
		shapeErr  *parser.ShapeError
		storeErr  *store.StoreError
	)
	switch {
	case errors.As(err, &metaErr):
		return KindMetadata
	case errors.As(err, &formatErr):
		return KindFormat
	case errors.As(err, &shapeErr):
		return KindShape
	case errors.As(err, &storeErr):
		return KindStore
	default:
		return KindIO
	}
}

// Recorder receives one ledger entry per processed file.
type Recorder interface {
	Record(ctx context.Context, e catalog.Entry) (catalog.Entry, error)
}

// Options configures a Converter.
type Options struct {
	Format           string
	WavelengthPolicy parser.WavelengthPolicy
	FailFast         bool
	FileMode         os.FileMode
}

// Converter converts spectrum files into containers.
type Converter struct {
	writer   store.Writer
	opts     Options
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New resolves the output format and returns a converter.
func New(opts Options, logger *slog.Logger) (*Converter, error) {
	registry := store.NewRegistry()
	if opts.FileMode != 0 {
		registry.Register(store.NewMsgpackWriter().WithFileMode(opts.FileMode))
		registry.Register(store.NewDuckDBWriter().WithFileMode(opts.FileMode))
	}
	writer, err := registry.Get(opts.Format)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		writer: writer,
		opts:   opts,
		logger: logger.With("component", "convert"),
		now:    time.Now,
	}, nil
}

// SetRecorder attaches a ledger. A nil recorder disables recording.
func (c *Converter) SetRecorder(r Recorder) {
	c.recorder = r
}

// Format returns the name of the output format in use.
func (c *Converter) Format() string {
	return c.writer.Name()
}

// Report summarises a batch.
type Report struct {
	RunID     string                    `json:"runId"`
	Results   []models.ConversionResult `json:"results"`
	Converted int                       `json:"converted"`
	Failed    int                       `json:"failed"`
	Skipped   int                       `json:"skipped"`
}

// HasFailures reports whether any file failed.
func (r *Report) HasFailures() bool {
	return r.Failed > 0
}

func (r *Report) add(res models.ConversionResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case models.ConversionStatusConverted:
		r.Converted++
	case models.ConversionStatusFailed:
		r.Failed++
	case models.ConversionStatusSkipped:
		r.Skipped++
	}
}

// ConvertAll converts inputs in order into outDir. A failing file does not
// stop the batch unless FailFast is set, in which case the remaining files
// are reported as skipped. Cancellation skips the remaining files too.
func (c *Converter) ConvertAll(ctx context.Context, inputs []string, outDir string) *Report {
	report := &Report{RunID: uuid.NewString()}
	c.logger.Info("batch started", "run_id", report.RunID, "files", len(inputs), "output_dir", outDir, "format", c.writer.Name())

	written := make(map[string]string, len(inputs))
	stop := ""
	for _, input := range inputs {
		if stop == "" && ctx.Err() != nil {
			stop = "cancelled"
		}
		if stop != "" {
			res := c.skipped(report.RunID, input, stop)
			c.record(ctx, res)
			report.add(res)
			continue
		}

		res := c.ConvertFile(ctx, report.RunID, input, outDir)
		if res.Status == models.ConversionStatusConverted {
			if prev, ok := written[res.Output]; ok {
				c.logger.Warn("output overwritten by a file with identical metadata",
					"output", res.Output, "previous", prev, "input", input)
			}
			written[res.Output] = input
		}
		report.add(res)

		if res.Failed() && c.opts.FailFast {
			stop = "fail-fast after " + filepath.Base(input)
		}
	}

	c.logger.Info("batch finished", "run_id", report.RunID,
		"converted", report.Converted, "failed", report.Failed, "skipped", report.Skipped)
	return report
}

// ConvertFile converts a single file and records the outcome.
func (c *Converter) ConvertFile(ctx context.Context, runID, input, outDir string) models.ConversionResult {
	start := c.now()
	if runID == "" {
		runID = uuid.NewString()
	}
	data, err := os.ReadFile(input)
	if err != nil {
		res := c.failed(runID, input, start, fmt.Errorf("reading %s: %w", input, err))
		c.record(ctx, res)
		return res
	}
	return c.convert(ctx, runID, input, data, outDir, start)
}

// ConvertBytes converts content already in memory. name supplies the
// filename metadata.
func (c *Converter) ConvertBytes(ctx context.Context, runID, name string, data []byte, outDir string) models.ConversionResult {
	return c.convert(ctx, runID, name, data, outDir, c.now())
}

func (c *Converter) convert(ctx context.Context, runID, name string, data []byte, outDir string, start time.Time) models.ConversionResult {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.logger.With("run_id", runID, "input", name)

	spec, err := parser.ParseBytes(name, data, parser.Options{WavelengthPolicy: c.opts.WavelengthPolicy})
	if err != nil {
		res := c.failed(runID, name, start, err)
		log.Error("parse failed", "kind", res.ErrorKind, "error", err)
		c.record(ctx, res)
		return res
	}
	for _, w := range spec.Warnings {
		log.Warn(w)
	}

	container, err := store.FromSpectrum(spec)
	if err != nil {
		res := c.failed(runID, name, start, &store.StoreError{Op: "build", Path: name, Err: err})
		res.Metadata = &spec.Metadata
		log.Error("building container failed", "error", err)
		c.record(ctx, res)
		return res
	}

	output := filepath.Join(outDir, store.OutputName(spec.Metadata, c.writer.Extension()))
	if err := c.writer.Write(ctx, output, container); err != nil {
		res := c.failed(runID, name, start, err)
		res.Metadata = &spec.Metadata
		log.Error("write failed", "output", output, "error", err)
		c.record(ctx, res)
		return res
	}

	t, n, m := spec.Dims()
	end := c.now()
	res := models.ConversionResult{
		RunID:      runID,
		Input:      name,
		Output:     output,
		Format:     c.writer.Name(),
		Status:     models.ConversionStatusConverted,
		Metadata:   &spec.Metadata,
		Shape:      [3]int{t, n, m},
		Warnings:   spec.Warnings,
		DurationMs: end.Sub(start).Milliseconds(),
		FinishedAt: end,
	}
	log.Info("converted", "output", output, "time", t, "wavelengths", n, "angles", m)
	c.record(ctx, res)
	return res
}

func (c *Converter) failed(runID, input string, start time.Time, err error) models.ConversionResult {
	end := c.now()
	return models.ConversionResult{
		RunID:      runID,
		Input:      input,
		Format:     c.writer.Name(),
		Status:     models.ConversionStatusFailed,
		ErrorKind:  Kind(err),
		Error:      err.Error(),
		DurationMs: end.Sub(start).Milliseconds(),
		FinishedAt: end,
	}
}

func (c *Converter) skipped(runID, input, reason string) models.ConversionResult {
	return models.ConversionResult{
		RunID:      runID,
		Input:      input,
		Format:     c.writer.Name(),
		Status:     models.ConversionStatusSkipped,
		Error:      reason,
		FinishedAt: c.now(),
	}
}

// record writes to the ledger. A ledger failure is logged and never turns
// a successful conversion into a failed one.
func (c *Converter) record(ctx context.Context, res models.ConversionResult) {
	if c.recorder == nil {
		return
	}
	if _, err := c.recorder.Record(context.WithoutCancel(ctx), catalog.EntryFromResult(res)); err != nil {
		c.logger.Warn("recording conversion failed", "input", res.Input, "error", err)
	}
}
