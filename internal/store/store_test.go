package store

import (
	"bytes"
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilonova-lab/specconv/internal/models"
)

func testSpectrum() *models.Spectrum {
	return &models.Spectrum{
		Source: "sim_TP_x_x_x_wind2_x_md0.500_vd0.100_mw0.250_vw0.050.dat",
		Metadata: models.Metadata{
			Topology:          models.TopologyPoint,
			Wind:              models.WindTwo,
			MassDynamical:     0.5,
			VelocityDynamical: 0.1,
			MassWind:          0.25,
			VelocityWind:      0.05,
		},
		Time:        []float64{2, 1},
		Wavelengths: []models.BinEdges{{Low: 1, High: 2}, {Low: 2, High: 3}, {Low: 3, High: 4}},
		Angles:      []models.BinEdges{{Low: 0, High: math.Pi / 2}, {Low: math.Pi / 2, High: math.Pi}},
		Flux: models.FluxCube{
			Shape: [3]int{2, 3, 2},
			Data:  []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
		Warnings: []string{"block 2 wavelength bins differ from block 1; using the last block's table"},
	}
}

func TestFromSpectrum(t *testing.T) {
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	names := make([]string, len(c.Datasets))
	for i, d := range c.Datasets {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		DatasetTopology, DatasetWind,
		DatasetMassDynamical, DatasetVelocityDynamical, DatasetMassWind, DatasetVelocityWind,
		DatasetTime, DatasetWavelengthBins, DatasetAngleBins, DatasetFlux,
	}, names)

	flux, ok := c.Get(DatasetFlux)
	require.True(t, ok)
	assert.Equal(t, []int{2, 3, 2}, flux.Shape)

	wl, _ := c.Get(DatasetWavelengthBins)
	assert.Equal(t, []int{3, 2}, wl.Shape)
	assert.Equal(t, []float64{1, 2, 2, 3, 3, 4}, wl.Floats)

	topo, _ := c.Get(DatasetTopology)
	assert.True(t, topo.Scalar())
	assert.Equal(t, []int64{1}, topo.Ints)
}

func TestContainerAddRejectsBadShape(t *testing.T) {
	var c Container
	err := c.Add(Dataset{Name: "x", DType: DTypeFloat64, Shape: []int{3}, Floats: []float64{1, 2}})
	assert.Error(t, err)

	require.NoError(t, c.Add(Dataset{Name: "x", DType: DTypeFloat64, Shape: []int{2}, Floats: []float64{1, 2}}))
	assert.Error(t, c.Add(Dataset{Name: "x", DType: DTypeFloat64, Shape: []int{1}, Floats: []float64{1}}))
	assert.Error(t, c.Add(Dataset{Name: "y", DType: "complex128", Shape: []int{}}))
}

func TestMsgpackRoundTrip(t *testing.T) {
	spec := testSpectrum()
	c, err := FromSpectrum(spec)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewMsgpackWriter().encode(&buf, c))

	decoded, err := Decode(&buf)
	require.NoError(t, err)

	back, err := decoded.Spectrum()
	require.NoError(t, err)
	assert.Equal(t, spec, back)
}

func TestMsgpackEncodingIsDeterministic(t *testing.T) {
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, NewMsgpackWriter().encode(&a, c))
	require.NoError(t, NewMsgpackWriter().encode(&b, c))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDecodeRejectsForeignData(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x01, 0x02}))
	assert.Error(t, err)
}

func TestMsgpackWriterWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	w := NewMsgpackWriter()
	path := filepath.Join(dir, OutputName(testSpectrum().Metadata, w.Extension()))
	require.NoError(t, w.Write(context.Background(), path, c))

	back, err := ReadContainer(path)
	require.NoError(t, err)
	spec, err := back.Spectrum()
	require.NoError(t, err)
	assert.Equal(t, testSpectrum(), spec)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestMsgpackWriterFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	bad := &Container{Datasets: []Dataset{{Name: "x", DType: DTypeFloat64, Shape: []int{4}, Floats: []float64{1}}}}

	path := filepath.Join(dir, "out.knspec")
	err := NewMsgpackWriter().Write(context.Background(), path, bad)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMsgpackWriterMissingDirectory(t *testing.T) {
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "missing", "out.knspec")
	err = NewMsgpackWriter().Write(context.Background(), path, c)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create", storeErr.Op)
}

func TestMsgpackWriterCancelled(t *testing.T) {
	dir := t.TempDir()
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewMsgpackWriter().Write(ctx, filepath.Join(dir, "out.knspec"), c)
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDuckDBWriter(t *testing.T) {
	dir := t.TempDir()
	c, err := FromSpectrum(testSpectrum())
	require.NoError(t, err)

	w := NewDuckDBWriter()
	path := filepath.Join(dir, "out"+w.Extension())
	require.NoError(t, w.Write(context.Background(), path, c))

	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM flux`).Scan(&count))
	assert.Equal(t, 12, count)

	var value float64
	require.NoError(t, db.QueryRow(`SELECT value FROM flux WHERE i0 = 1 AND i1 = 2 AND i2 = 1`).Scan(&value))
	assert.Equal(t, 12.0, value)

	var topology int64
	require.NoError(t, db.QueryRow(`SELECT int_value FROM scalars WHERE name = ?`, DatasetTopology).Scan(&topology))
	assert.Equal(t, int64(1), topology)

	var shape string
	require.NoError(t, db.QueryRow(`SELECT shape FROM datasets WHERE name = ?`, DatasetWavelengthBins).Scan(&shape))
	assert.Equal(t, "[3,2]", shape)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	w, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, w.Name())

	w, err = r.Get("DuckDB")
	require.NoError(t, err)
	assert.Equal(t, ".duckdb", w.Extension())

	_, err = r.Get("hdf5")
	assert.ErrorContains(t, err, "msgpack, duckdb")

	r.Register(&MsgpackWriter{perm: 0o600, createdBy: "test"})
	assert.Equal(t, []string{"msgpack", "duckdb"}, r.Names())
}

func TestOutputName(t *testing.T) {
	name := OutputName(testSpectrum().Metadata, ".knspec")
	assert.Equal(t, "kn_top1_wind2_md0.500_vd0.100_mw0.250_vw0.050.knspec", name)
}

func TestAdvance(t *testing.T) {
	idx := []int{0, 1, 1}
	advance(idx, []int{2, 2, 2})
	assert.Equal(t, []int{1, 0, 0}, idx)
}
