// Package preview renders quick-look PNG images of a parsed spectrum.
package preview

import (
	"bytes"
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kilonova-lab/specconv/internal/models"
)

// Kind selects the preview style.
type Kind string

const (
	// KindLines draws flux against wavelength, one line per angle bin.
	KindLines Kind = "lines"
	// KindHeatmap draws flux over the wavelength × angle plane.
	KindHeatmap Kind = "heatmap"
)

// maxLegendEntries keeps the legend readable for wide angle grids.
const maxLegendEntries = 12

// Options controls rendering.
type Options struct {
	TimeIndex int
	Kind      Kind
	Width     vg.Length
	Height    vg.Length
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = vg.Points(800)
	}
	if h <= 0 {
		h = vg.Points(400)
	}
	return w, h
}

// Render draws one time step of spec and returns PNG bytes.
func Render(spec *models.Spectrum, opts Options) ([]byte, error) {
	t, n, m := spec.Dims()
	if t == 0 || n == 0 || m == 0 {
		return nil, fmt.Errorf("no flux values to plot")
	}
	if opts.TimeIndex < 0 || opts.TimeIndex >= t {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", opts.TimeIndex, t)
	}

	var (
		p   *plot.Plot
		err error
	)
	switch opts.Kind {
	case KindLines, "":
		p, err = linePlot(spec, opts.TimeIndex)
	case KindHeatmap:
		p, err = heatmapPlot(spec, opts.TimeIndex)
	default:
		return nil, fmt.Errorf("unknown preview kind %q", opts.Kind)
	}
	if err != nil {
		return nil, err
	}

	width, height := opts.size()
	writer, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %w", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders spec and writes the PNG to path.
func WriteFile(path string, spec *models.Spectrum, opts Options) error {
	img, err := Render(spec, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}

func title(spec *models.Spectrum, ti int) string {
	md := spec.Metadata
	return fmt.Sprintf("t = %g  (%s, %s wind, md=%.3f vd=%.3f mw=%.3f vw=%.3f)",
		spec.Time[ti], md.Topology, md.Wind,
		md.MassDynamical, md.VelocityDynamical, md.MassWind, md.VelocityWind)
}

func linePlot(spec *models.Spectrum, ti int) (*plot.Plot, error) {
	_, n, m := spec.Dims()

	p := plot.New()
	p.Title.Text = title(spec, ti)
	p.X.Label.Text = "Wavelength"
	p.Y.Label.Text = "Flux"
	p.Add(plotter.NewGrid())

	series := make([]plotter.XYs, m)
	for a := range series {
		series[a] = make(plotter.XYs, n)
	}
	for w := 0; w < n; w++ {
		bin := spec.Wavelengths[w]
		x := (bin.Low + bin.High) / 2
		for a, v := range spec.Flux.Row(ti, w) {
			series[a][w] = plotter.XY{X: x, Y: v}
		}
	}

	colors := lineColors(m)
	for a, pts := range series {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for angle bin %d: %w", a, err)
		}
		line.Color = colors[a]
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)

		if m <= maxLegendEntries {
			edges := spec.Angles[a]
			p.Legend.Add(fmt.Sprintf("θ %.2f-%.2f", edges.Low, edges.High), line)
		}
	}

	p.Legend.Top = true
	p.Legend.XOffs = vg.Points(-10)
	return p, nil
}

func lineColors(m int) []color.Color {
	if m == 1 {
		return []color.Color{color.RGBA{B: 200, A: 255}}
	}
	return palette.Heat(m, 1).Colors()
}

// fluxGrid adapts one time slice of the flux cube to plotter.GridXYZ with
// wavelength bins as columns and angle bins as rows.
type fluxGrid struct {
	spec *models.Spectrum
	ti   int
}

func (g fluxGrid) Dims() (c, r int) {
	_, n, m := g.spec.Dims()
	return n, m
}

func (g fluxGrid) Z(c, r int) float64 { return g.spec.Flux.At(g.ti, c, r) }

func (g fluxGrid) X(c int) float64 {
	bin := g.spec.Wavelengths[c]
	return (bin.Low + bin.High) / 2
}

func (g fluxGrid) Y(r int) float64 {
	bin := g.spec.Angles[r]
	return (bin.Low + bin.High) / 2
}

func heatmapPlot(spec *models.Spectrum, ti int) (*plot.Plot, error) {
	_, n, m := spec.Dims()
	if n < 2 || m < 2 {
		return nil, fmt.Errorf("heatmap needs at least two wavelength and two angle bins, have %d and %d", n, m)
	}

	p := plot.New()
	p.Title.Text = title(spec, ti)
	p.X.Label.Text = "Wavelength"
	p.Y.Label.Text = "Polar angle (rad)"

	hm := plotter.NewHeatMap(fluxGrid{spec: spec, ti: ti}, palette.Heat(64, 1))
	p.Add(hm)
	return p, nil
}
