package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilonova-lab/specconv/internal/models"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(ctx, dir)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, filepath.Join(dir, DatabaseName), c.Path())

	meta := &models.Metadata{
		Topology:          models.TopologyPoint,
		Wind:              models.WindTwo,
		MassDynamical:     0.5,
		VelocityDynamical: 0.1,
		MassWind:          0.25,
		VelocityWind:      0.05,
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := c.Record(ctx, EntryFromResult(models.ConversionResult{
		RunID:      "run-1",
		Input:      "a.dat",
		Output:     "out/a.knspec",
		Format:     "msgpack",
		Status:     models.ConversionStatusConverted,
		Metadata:   meta,
		Shape:      [3]int{2, 3, 4},
		Warnings:   []string{"w"},
		FinishedAt: base,
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = c.Record(ctx, EntryFromResult(models.ConversionResult{
		RunID:      "run-1",
		Input:      "b.dat",
		Format:     "msgpack",
		Status:     models.ConversionStatusFailed,
		ErrorKind:  "metadata",
		Error:      "bad name",
		FinishedAt: base.Add(time.Second),
	}))
	require.NoError(t, err)

	entries, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "b.dat", entries[0].Source, "newest entry first")
	assert.Nil(t, entries[0].Metadata)
	assert.Equal(t, models.ConversionStatusFailed, entries[0].Status)
	assert.Equal(t, "metadata", entries[0].ErrorKind)

	got := entries[1]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, meta, got.Metadata)
	assert.Equal(t, [3]int{2, 3, 4}, got.Shape)
	assert.Equal(t, 1, got.Warnings)
	assert.True(t, base.Equal(got.RecordedAt))

	limited, err := c.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpenLocksDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(ctx, dir)
	require.NoError(t, err)

	_, err = Open(ctx, dir)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, c.Close())

	again, err := Open(ctx, dir)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestEntriesPersistAcrossOpens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(ctx, dir)
	require.NoError(t, err)
	_, err = c.Record(ctx, Entry{RunID: "r", Source: "x.dat", Status: models.ConversionStatusSkipped})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(ctx, dir)
	require.NoError(t, err)
	defer c.Close()

	entries, err := c.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ConversionStatusSkipped, entries[0].Status)
	assert.False(t, entries[0].RecordedAt.IsZero())
}

func TestOpenReadOnlyWhileLocked(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := Open(ctx, dir)
	require.NoError(t, err)
	defer writer.Close()
	_, err = writer.Record(ctx, Entry{RunID: "r", Source: "x.dat", Status: models.ConversionStatusConverted})
	require.NoError(t, err)

	reader, err := OpenReadOnly(ctx, dir)
	require.NoError(t, err)
	defer reader.Close()

	entries, err := reader.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.dat", entries[0].Source)

	_, err = reader.Record(ctx, Entry{RunID: "r", Source: "y.dat", Status: models.ConversionStatusConverted})
	assert.Error(t, err, "read-only ledger must reject writes")
}

func TestOpenReadOnlyMissingCatalog(t *testing.T) {
	_, err := OpenReadOnly(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoCatalog)
}
