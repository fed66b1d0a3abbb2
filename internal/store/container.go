// Package store persists parsed spectra as self-describing containers of
// named datasets.
package store

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kilonova-lab/specconv/internal/models"
)

// DType names the element type of a dataset.
type DType string

const (
	DTypeInt64   DType = "int64"
	DTypeFloat64 DType = "float64"
)

// Dataset names written for every spectrum.
const (
	DatasetTopology          = "topology"
	DatasetWind              = "wind_multiplicity"
	DatasetMassDynamical     = "ejecta_mass_dynamical"
	DatasetVelocityDynamical = "ejecta_velocity_dynamical"
	DatasetMassWind          = "ejecta_mass_wind"
	DatasetVelocityWind      = "ejecta_velocity_wind"
	DatasetTime              = "time"
	DatasetWavelengthBins    = "wavelength_bins"
	DatasetAngleBins         = "angle_bins"
	DatasetFlux              = "flux"
)

const warningAttrPrefix = "warning_"

// Dataset is one named scalar or array. Scalars have an empty Shape.
// Exactly one of Ints and Floats is populated, matching DType.
type Dataset struct {
	Name        string    `msgpack:"name" json:"name"`
	Description string    `msgpack:"description" json:"description"`
	DType       DType     `msgpack:"dtype" json:"dtype"`
	Shape       []int     `msgpack:"shape" json:"shape"`
	Ints        []int64   `msgpack:"ints,omitempty" json:"-"`
	Floats      []float64 `msgpack:"floats,omitempty" json:"-"`
}

// Scalar reports whether the dataset has rank zero.
func (d *Dataset) Scalar() bool {
	return len(d.Shape) == 0
}

// Size is the number of elements the shape describes.
func (d *Dataset) Size() int {
	n := 1
	for _, dim := range d.Shape {
		n *= dim
	}
	return n
}

// Len is the number of stored elements.
func (d *Dataset) Len() int {
	if d.DType == DTypeInt64 {
		return len(d.Ints)
	}
	return len(d.Floats)
}

func (d *Dataset) validate() error {
	if d.Name == "" {
		return fmt.Errorf("dataset has no name")
	}
	switch d.DType {
	case DTypeInt64:
		if len(d.Floats) != 0 {
			return fmt.Errorf("dataset %s: int64 dataset carries float values", d.Name)
		}
	case DTypeFloat64:
		if len(d.Ints) != 0 {
			return fmt.Errorf("dataset %s: float64 dataset carries int values", d.Name)
		}
	default:
		return fmt.Errorf("dataset %s: unknown dtype %q", d.Name, d.DType)
	}
	if d.Len() != d.Size() {
		return fmt.Errorf("dataset %s: %d values for shape %v", d.Name, d.Len(), d.Shape)
	}
	return nil
}

// Container is an ordered set of datasets plus free-form attributes.
type Container struct {
	Source   string            `msgpack:"source" json:"source"`
	Attrs    map[string]string `msgpack:"attrs,omitempty" json:"attrs,omitempty"`
	Datasets []Dataset         `msgpack:"datasets" json:"datasets"`
}

// Add appends a dataset after checking its shape and name.
func (c *Container) Add(d Dataset) error {
	if err := d.validate(); err != nil {
		return err
	}
	if _, ok := c.Get(d.Name); ok {
		return fmt.Errorf("duplicate dataset %s", d.Name)
	}
	c.Datasets = append(c.Datasets, d)
	return nil
}

// Get returns the dataset called name.
func (c *Container) Get(name string) (*Dataset, bool) {
	for i := range c.Datasets {
		if c.Datasets[i].Name == name {
			return &c.Datasets[i], true
		}
	}
	return nil, false
}

// Validate checks every dataset.
func (c *Container) Validate() error {
	seen := make(map[string]struct{}, len(c.Datasets))
	for i := range c.Datasets {
		d := &c.Datasets[i]
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("duplicate dataset %s", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// FromSpectrum lays a spectrum out as datasets.
func FromSpectrum(s *models.Spectrum) (*Container, error) {
	t, n, m := s.Dims()
	c := &Container{Source: s.Source}
	if len(s.Warnings) > 0 {
		c.Attrs = map[string]string{}
		for i, w := range s.Warnings {
			c.Attrs[fmt.Sprintf("%s%03d", warningAttrPrefix, i)] = w
		}
	}

	datasets := []Dataset{
		intScalar(DatasetTopology, "topology code: 1 point-source, 2 plane-source", int64(s.Metadata.Topology)),
		intScalar(DatasetWind, "number of wind components", int64(s.Metadata.Wind)),
		floatScalar(DatasetMassDynamical, "dynamical ejecta mass (md)", s.Metadata.MassDynamical),
		floatScalar(DatasetVelocityDynamical, "dynamical ejecta velocity (vd)", s.Metadata.VelocityDynamical),
		floatScalar(DatasetMassWind, "wind ejecta mass (mw)", s.Metadata.MassWind),
		floatScalar(DatasetVelocityWind, "wind ejecta velocity (vw)", s.Metadata.VelocityWind),
		{
			Name:        DatasetTime,
			Description: "block times in file order",
			DType:       DTypeFloat64,
			Shape:       []int{len(s.Time)},
			Floats:      s.Time,
		},
		{
			Name:        DatasetWavelengthBins,
			Description: "wavelength bin edges (low, high)",
			DType:       DTypeFloat64,
			Shape:       []int{len(s.Wavelengths), 2},
			Floats:      flattenBins(s.Wavelengths),
		},
		{
			Name:        DatasetAngleBins,
			Description: "equal solid-angle bin edges in radians (low, high)",
			DType:       DTypeFloat64,
			Shape:       []int{len(s.Angles), 2},
			Floats:      flattenBins(s.Angles),
		},
		{
			Name:        DatasetFlux,
			Description: "flux indexed (time, wavelength bin, angle bin)",
			DType:       DTypeFloat64,
			Shape:       []int{t, n, m},
			Floats:      s.Flux.Data,
		},
	}
	for _, d := range datasets {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Spectrum rebuilds the spectrum a container was made from.
func (c *Container) Spectrum() (*models.Spectrum, error) {
	s := &models.Spectrum{Source: c.Source}

	topology, err := c.scalarInt(DatasetTopology)
	if err != nil {
		return nil, err
	}
	wind, err := c.scalarInt(DatasetWind)
	if err != nil {
		return nil, err
	}
	s.Metadata.Topology = models.Topology(topology)
	s.Metadata.Wind = models.WindMultiplicity(wind)

	floats := []struct {
		name string
		dst  *float64
	}{
		{DatasetMassDynamical, &s.Metadata.MassDynamical},
		{DatasetVelocityDynamical, &s.Metadata.VelocityDynamical},
		{DatasetMassWind, &s.Metadata.MassWind},
		{DatasetVelocityWind, &s.Metadata.VelocityWind},
	}
	for _, f := range floats {
		d, err := c.require(f.name, DTypeFloat64, 0)
		if err != nil {
			return nil, err
		}
		*f.dst = d.Floats[0]
	}

	timeDS, err := c.require(DatasetTime, DTypeFloat64, 1)
	if err != nil {
		return nil, err
	}
	wl, err := c.require(DatasetWavelengthBins, DTypeFloat64, 2)
	if err != nil {
		return nil, err
	}
	ang, err := c.require(DatasetAngleBins, DTypeFloat64, 2)
	if err != nil {
		return nil, err
	}
	flux, err := c.require(DatasetFlux, DTypeFloat64, 3)
	if err != nil {
		return nil, err
	}
	shape := [3]int{flux.Shape[0], flux.Shape[1], flux.Shape[2]}
	if shape[0] != timeDS.Shape[0] || shape[1] != wl.Shape[0] || shape[2] != ang.Shape[0] {
		return nil, fmt.Errorf("flux shape %v does not match time %v, wavelength %v, angle %v",
			flux.Shape, timeDS.Shape, wl.Shape, ang.Shape)
	}

	s.Time = timeDS.Floats
	s.Wavelengths = unflattenBins(wl.Floats)
	s.Angles = unflattenBins(ang.Floats)
	s.Flux = models.FluxCube{Shape: shape, Data: flux.Floats}
	for _, k := range slices.Sorted(maps.Keys(c.Attrs)) {
		if strings.HasPrefix(k, warningAttrPrefix) {
			s.Warnings = append(s.Warnings, c.Attrs[k])
		}
	}
	return s, nil
}

func (c *Container) require(name string, dtype DType, rank int) (*Dataset, error) {
	d, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("missing dataset %s", name)
	}
	if d.DType != dtype || len(d.Shape) != rank {
		return nil, fmt.Errorf("dataset %s: expected rank-%d %s, got rank-%d %s", name, rank, dtype, len(d.Shape), d.DType)
	}
	if rank == 2 && d.Shape[1] != 2 {
		return nil, fmt.Errorf("dataset %s: expected (n, 2) bin edges, got %v", name, d.Shape)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *Container) scalarInt(name string) (int64, error) {
	d, err := c.require(name, DTypeInt64, 0)
	if err != nil {
		return 0, err
	}
	return d.Ints[0], nil
}

func intScalar(name, desc string, v int64) Dataset {
	return Dataset{Name: name, Description: desc, DType: DTypeInt64, Shape: []int{}, Ints: []int64{v}}
}

func floatScalar(name, desc string, v float64) Dataset {
	return Dataset{Name: name, Description: desc, DType: DTypeFloat64, Shape: []int{}, Floats: []float64{v}}
}

func flattenBins(bins []models.BinEdges) []float64 {
	out := make([]float64, 0, 2*len(bins))
	for _, b := range bins {
		out = append(out, b.Low, b.High)
	}
	return out
}

func unflattenBins(flat []float64) []models.BinEdges {
	out := make([]models.BinEdges, len(flat)/2)
	for i := range out {
		out[i] = models.BinEdges{Low: flat[2*i], High: flat[2*i+1]}
	}
	return out
}
