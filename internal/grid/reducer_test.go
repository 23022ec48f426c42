package grid_test

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
)

var frameTime = time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)

func testDistrict() district.District {
	return district.District{ID: "IRQ.1.1", Name: "Baghdad", Lat: 33, Lon: 44}
}

func TestConstrainedIDW_SymmetricCells(t *testing.T) {
	r := grid.NewConstrainedIDW(grid.DefaultIDWConfig())
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33.1, Lon: 44, Value: 100},
		{Lat: 32.9, Lon: 44, Value: 200},
		{Lat: 35.0, Lon: 44, Value: 999}, // beyond 55 km
	}}

	s, ok := r.Reduce(testDistrict(), f)
	require.True(t, ok)
	assert.InDelta(t, 150, s.Value, 0.5)
	assert.Equal(t, 2, s.PointsUsed)
	assert.InDelta(t, 11.1, s.AvgDistanceKm, 0.2)
	assert.Equal(t, grid.MethodConstrainedIDW, s.Method)
	assert.Equal(t, frameTime, s.FrameTime)
}

func TestConstrainedIDW_CloserCellsWeighMore(t *testing.T) {
	r := grid.NewConstrainedIDW(grid.IDWConfig{})
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33.05, Lon: 44, Value: 100},
		{Lat: 32.7, Lon: 44, Value: 400},
	}}

	s, ok := r.Reduce(testDistrict(), f)
	require.True(t, ok)
	assert.Less(t, s.Value, 150.0)
	assert.Greater(t, s.Value, 100.0)
}

func TestConstrainedIDW_UsesAtMostK(t *testing.T) {
	r := grid.NewConstrainedIDW(grid.IDWConfig{K: 4})
	var cells []grid.Cell
	for i := 1; i <= 6; i++ {
		cells = append(cells, grid.Cell{Lat: 33 + float64(i)*0.05, Lon: 44, Value: float64(i)})
	}

	s, ok := r.Reduce(testDistrict(), &grid.Frame{Time: frameTime, Cells: cells})
	require.True(t, ok)
	assert.Equal(t, 4, s.PointsUsed)
	assert.Less(t, s.Value, 4.0)
}

func TestConstrainedIDW_CellOnCentroid(t *testing.T) {
	r := grid.NewConstrainedIDW(grid.DefaultIDWConfig())
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33, Lon: 44, Value: 80},
		{Lat: 33.2, Lon: 44, Value: 300},
	}}

	s, ok := r.Reduce(testDistrict(), f)
	require.True(t, ok)
	assert.InDelta(t, 80, s.Value, 0.01)
	assert.False(t, math.IsInf(s.Value, 0))
}

func TestConstrainedIDW_NoCellsInRange(t *testing.T) {
	r := grid.NewConstrainedIDW(grid.DefaultIDWConfig())
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 36, Lon: 44, Value: 10},
		{Lat: 33.1, Lon: 44, Value: math.NaN()},
	}}

	_, ok := r.Reduce(testDistrict(), f)
	assert.False(t, ok)
}

func TestNearestCell(t *testing.T) {
	r := grid.NewNearestCell(0)
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33.3, Lon: 44, Value: 300},
		{Lat: 33.1, Lon: 44, Value: 50},
	}}

	s, ok := r.Reduce(testDistrict(), f)
	require.True(t, ok)
	assert.Equal(t, 50.0, s.Value)
	assert.Equal(t, 1, s.PointsUsed)
	assert.Equal(t, grid.MethodNearestCell, s.Method)
}

func TestZonalMean(t *testing.T) {
	d := testDistrict()
	d.Lat, d.Lon = 32.5, 44.5
	d.Boundary = geom.Polygon{{
		{X: 44, Y: 32}, {X: 45, Y: 32}, {X: 45, Y: 33}, {X: 44, Y: 33}, {X: 44, Y: 32},
	}}

	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 32.5, Lon: 44.5, Value: 10},
		{Lat: 32.2, Lon: 44.2, Value: 20},
		{Lat: 33.5, Lon: 44.5, Value: 500},
	}}

	s, ok := grid.NewZonalMean(0).Reduce(d, f)
	require.True(t, ok)
	assert.InDelta(t, 15, s.Value, 1e-9)
	assert.Equal(t, 2, s.PointsUsed)
	assert.Equal(t, grid.MethodZonalMean, s.Method)
}

func TestZonalMean_FallsBackToNearest(t *testing.T) {
	f := &grid.Frame{Time: frameTime, Cells: []grid.Cell{
		{Lat: 33.1, Lon: 44, Value: 70},
		{Lat: 33.3, Lon: 44, Value: 90},
	}}

	s, ok := grid.NewZonalMean(0).Reduce(testDistrict(), f)
	require.True(t, ok)
	assert.Equal(t, 70.0, s.Value)
	assert.Equal(t, grid.MethodZonalMean, s.Method)
}

func TestNewReducer(t *testing.T) {
	for _, name := range []string{"", "constrained_idw", "nearest_cell", "zonal_mean"} {
		r, err := grid.NewReducer(name, grid.DefaultIDWConfig())
		require.NoError(t, err, name)
		assert.NotEmpty(t, r.Name())
	}

	_, err := grid.NewReducer("kriging", grid.DefaultIDWConfig())
	assert.ErrorIs(t, err, grid.ErrUnknownReducer)
}
