package grid_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/database"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
)

func TestSQLiteSource_StoreAndRead(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, database.SQLiteConfig{Path: filepath.Join(t.TempDir(), "grid.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	src := grid.NewSQLiteSource(db)
	require.NoError(t, src.Migrate(ctx))

	n, err := src.Store(ctx, grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33, Lon: 44, Value: 10},
		{Lat: 33.4, Lon: 44.4, Value: 20},
	}}, "a.nc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-storing the same cell replaces it.
	_, err = src.Store(ctx, grid.Frame{Time: frameTime, Cells: []grid.Cell{{Lat: 33, Lon: 44, Value: 15}}}, "b.nc")
	require.NoError(t, err)

	_, err = src.Store(ctx, grid.Frame{Time: frameTime.Add(3 * time.Hour), Cells: []grid.Cell{{Lat: 33, Lon: 44, Value: 30}}}, "b.nc")
	require.NoError(t, err)

	ts, err := src.Timestamps(ctx, frameTime, frameTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{frameTime, frameTime.Add(3 * time.Hour)}, ts)

	f, err := src.Frame(ctx, frameTime)
	require.NoError(t, err)
	require.Len(t, f.Cells, 2)
	var sum float64
	for _, c := range f.Cells {
		sum += c.Value
	}
	assert.Equal(t, 35.0, sum)

	_, err = src.Frame(ctx, frameTime.Add(time.Hour))
	assert.ErrorIs(t, err, grid.ErrFrameNotFound)
}

func TestParseTimeUnits_SQLiteSource(t *testing.T) {
	step, epoch, err := grid.ParseTimeUnits("hours since 2025-10-17 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, step)
	assert.Equal(t, frameTime, epoch)

	step, _, err = grid.ParseTimeUnits("seconds since 1970-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Second, step)

	_, _, err = grid.ParseTimeUnits("fortnights since 2025-01-01")
	assert.Error(t, err)
	_, _, err = grid.ParseTimeUnits("hours")
	assert.Error(t, err)
}
