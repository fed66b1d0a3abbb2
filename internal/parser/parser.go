// Package parser turns the plain-text kilonova spectrum format into
// fixed-shape arrays.
//
// A file is a sequence of time blocks separated by two empty lines. Each
// block starts with a header whose last token is the time, followed by one
// row per wavelength bin:
//
//	<low> <high> <flux_0> <flux_1> ... <flux_{M-1}>
//
// The filename carries the physical parameters (see ParseFilename). Every
// stage is a pure function of its input so each can be exercised on its own.
package parser

import (
	"fmt"
	"os"

	"github.com/kilonova-lab/specconv/internal/models"
)

// Options tunes parsing behaviour.
type Options struct {
	WavelengthPolicy WavelengthPolicy
}

// Parse reads and parses the spectrum file at path.
func Parse(path string, opts Options) (*models.Spectrum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseBytes(path, data, opts)
}

// ParseBytes parses file content. name supplies the filename metadata and
// may be a full path.
func ParseBytes(name string, data []byte, opts Options) (*models.Spectrum, error) {
	meta, err := ParseFilename(name)
	if err != nil {
		return nil, err
	}

	blocks, err := SplitBlocks(string(data))
	if err != nil {
		return nil, err
	}

	parsed := make([]BlockData, 0, len(blocks))
	for _, b := range blocks {
		bd, err := ParseBlock(b)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, bd)
	}

	asm, err := Assemble(parsed, opts.WavelengthPolicy)
	if err != nil {
		return nil, err
	}

	return &models.Spectrum{
		Source:      name,
		Metadata:    meta,
		Time:        asm.Time,
		Wavelengths: asm.Wavelengths,
		Angles:      asm.Angles,
		Flux:        asm.Flux,
		Warnings:    asm.Warnings,
	}, nil
}
