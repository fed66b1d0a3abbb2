// Package models contains domain types for the kilonova spectrum converter.
package models

import "fmt"

// Topology identifies the ejecta morphology encoded in a spectrum filename.
type Topology int

const (
	TopologyPoint Topology = 1
	TopologyPlane Topology = 2
)

// String returns the human readable topology name.
func (t Topology) String() string {
	switch t {
	case TopologyPoint:
		return "point-source"
	case TopologyPlane:
		return "plane-source"
	default:
		return fmt.Sprintf("topology(%d)", int(t))
	}
}

// WindMultiplicity is the number of wind components in the simulation.
type WindMultiplicity int

const (
	WindOne WindMultiplicity = 1
	WindTwo WindMultiplicity = 2
)

func (w WindMultiplicity) String() string {
	switch w {
	case WindOne:
		return "one"
	case WindTwo:
		return "two"
	default:
		return fmt.Sprintf("wind(%d)", int(w))
	}
}

// Metadata holds the physical configuration recovered from a filename.
// Values are stored as written; units are implied by the naming convention.
type Metadata struct {
	Topology          Topology         `json:"topology"`
	Wind              WindMultiplicity `json:"wind"`
	MassDynamical     float64          `json:"md"`
	VelocityDynamical float64          `json:"vd"`
	MassWind          float64          `json:"mw"`
	VelocityWind      float64          `json:"vw"`
}

// BinEdges is a (low, high) interval.
type BinEdges struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// FluxCube is a row-major 3D array indexed (time, wavelength, angle).
type FluxCube struct {
	Shape [3]int    `json:"shape"`
	Data  []float64 `json:"-"`
}

// Len returns the number of values the shape describes.
func (c FluxCube) Len() int {
	return c.Shape[0] * c.Shape[1] * c.Shape[2]
}

// At returns the flux at time index t, wavelength bin w and angle bin a.
func (c FluxCube) At(t, w, a int) float64 {
	return c.Data[(t*c.Shape[1]+w)*c.Shape[2]+a]
}

// Row returns the angle-resolved values for one (time, wavelength) cell.
// The returned slice aliases the cube's storage.
func (c FluxCube) Row(t, w int) []float64 {
	start := (t*c.Shape[1] + w) * c.Shape[2]
	return c.Data[start : start+c.Shape[2]]
}

// Spectrum is the complete parsed result for one input file.
type Spectrum struct {
	Source      string     `json:"source"`
	Metadata    Metadata   `json:"metadata"`
	Time        []float64  `json:"time"`
	Wavelengths []BinEdges `json:"wavelengthBins"`
	Angles      []BinEdges `json:"angleBins"`
	Flux        FluxCube   `json:"flux"`

	// Warnings collects non-fatal observations made while assembling.
	Warnings []string `json:"warnings,omitempty"`
}

// Dims returns (T, N, M).
func (s *Spectrum) Dims() (int, int, int) {
	return s.Flux.Shape[0], s.Flux.Shape[1], s.Flux.Shape[2]
}
