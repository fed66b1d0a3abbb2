package parser

import (
	"fmt"
	"math"

	"github.com/kilonova-lab/specconv/internal/models"
)

// WavelengthPolicy selects how the canonical wavelength-bin table is chosen.
type WavelengthPolicy string

const (
	// PolicyLastBlock takes the last block's table. Disagreeing blocks are
	// reported as warnings.
	PolicyLastBlock WavelengthPolicy = "last"
	// PolicyStrict requires every block's table to equal the first.
	PolicyStrict WavelengthPolicy = "strict"
)

// ParseWavelengthPolicy accepts "last", "strict" or "" (last).
func ParseWavelengthPolicy(s string) (WavelengthPolicy, error) {
	switch WavelengthPolicy(s) {
	case "", PolicyLastBlock:
		return PolicyLastBlock, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown wavelength policy %q (want %q or %q)", s, PolicyLastBlock, PolicyStrict)
}

// Assembly is the reshaped content of a whole file.
type Assembly struct {
	Time        []float64
	Wavelengths []models.BinEdges
	Angles      []models.BinEdges
	Flux        models.FluxCube
	Warnings    []string
}

// Assemble concatenates per-block output into (T, N, M) arrays and derives
// the angle bins.
func Assemble(blocks []BlockData, policy WavelengthPolicy) (Assembly, error) {
	if len(blocks) == 0 {
		return Assembly{}, &FormatError{Reason: "input contains no blocks"}
	}

	var out Assembly
	first := blocks[0]
	// Strict mode rejects any block that disagrees with the first; the
	// default keeps the last block's table and names the blocks that differ.
	reference := blocks[len(blocks)-1]
	if policy == PolicyStrict {
		reference = first
	}
	out.Time = make([]float64, 0, len(blocks))
	flux := make([]float64, 0, len(first.Flux)*len(blocks))

	for _, b := range blocks {
		if len(b.Flux) != len(first.Flux) {
			return Assembly{}, &ShapeError{
				Block:  b.Index,
				Reason: fmt.Sprintf("%d flux values, block %d has %d", len(b.Flux), first.Index, len(first.Flux)),
			}
		}
		if !sameBins(b.Wavelengths, reference.Wavelengths) {
			if policy == PolicyStrict {
				return Assembly{}, &ShapeError{
					Block:  b.Index,
					Reason: fmt.Sprintf("wavelength bins differ from block %d", reference.Index),
				}
			}
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("block %d wavelength bins differ from block %d; using the last block's table", b.Index, reference.Index))
		}
		out.Time = append(out.Time, b.Time)
		flux = append(flux, b.Flux...)
	}
	out.Wavelengths = blocks[len(blocks)-1].Wavelengths

	t, n := len(out.Time), len(out.Wavelengths)
	if len(flux)%(t*n) != 0 {
		return Assembly{}, &ShapeError{
			Reason: fmt.Sprintf("%d flux values do not divide into %d times x %d wavelength bins", len(flux), t, n),
		}
	}
	m := len(flux) / (t * n)
	for _, b := range blocks {
		if b.Width != m {
			return Assembly{}, &ShapeError{
				Block:  b.Index,
				Reason: fmt.Sprintf("rows have %d flux values, expected %d angle bins", b.Width, m),
			}
		}
	}

	out.Flux = models.FluxCube{Shape: [3]int{t, n, m}, Data: flux}
	out.Angles = AngleBins(m)
	return out, nil
}

// AngleBins partitions the sphere into m equal solid-angle slices, uniform in
// cosine over [-1, 1]. Edges are in radians.
func AngleBins(m int) []models.BinEdges {
	bins := make([]models.BinEdges, m)
	for i := range bins {
		bins[i] = models.BinEdges{
			Low:  math.Acos(1 - 2*float64(i)/float64(m)),
			High: math.Acos(1 - 2*float64(i+1)/float64(m)),
		}
	}
	return bins
}

func sameBins(a, b []models.BinEdges) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
