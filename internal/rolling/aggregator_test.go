package rolling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/rolling"
)

var asOf = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, values map[int]float64) reading.Repository {
	t.Helper()
	repo := reading.NewInMemoryRepository()
	for hoursAgo, v := range values {
		require.NoError(t, repo.Append(context.Background(), reading.Reading{
			DistrictID: "IRQ.2.1",
			Timestamp:  asOf.Add(-time.Duration(hoursAgo) * time.Hour),
			PM10:       v,
		}))
	}
	return repo
}

func TestRollingMean(t *testing.T) {
	repo := seed(t, map[int]float64{0: 100, 3: 200, 6: 300, 9: 1000})
	agg := rolling.NewAggregator(repo, 0)

	s, err := agg.RollingMean(context.Background(), "IRQ.2.1", 6, asOf)
	require.NoError(t, err)
	require.True(t, s.HasData())
	assert.InDelta(t, 200, *s.Mean, 1e-9)
	assert.Equal(t, 3, s.SampleCount)
	assert.Equal(t, 3, s.MaxSamples)
	assert.Equal(t, asOf.Add(-6*time.Hour), s.WindowStart)
	assert.Equal(t, 1.0, s.Coverage())
}

func TestRollingMean_EmptyWindowIsAbsent(t *testing.T) {
	repo := seed(t, map[int]float64{30: 500})
	agg := rolling.NewAggregator(repo, 0)

	s, err := agg.RollingMean(context.Background(), "IRQ.2.1", 24, asOf)
	require.NoError(t, err)
	assert.Nil(t, s.Mean)
	assert.False(t, s.HasData())
	assert.Zero(t, s.SampleCount)
	assert.Equal(t, 9, s.MaxSamples)
}

func TestRollingMean_SparseWindowIsReportedAsIs(t *testing.T) {
	repo := seed(t, map[int]float64{3: 80, 21: 40})
	agg := rolling.NewAggregator(repo, 0)

	s, err := agg.RollingMean(context.Background(), "IRQ.2.1", 24, asOf)
	require.NoError(t, err)
	require.NotNil(t, s.Mean)
	assert.InDelta(t, 60, *s.Mean, 1e-9)
	assert.Equal(t, 2, s.SampleCount)
	assert.LessOrEqual(t, s.SampleCount, s.MaxSamples)
}

func TestRollingMean_InvalidWindow(t *testing.T) {
	agg := rolling.NewAggregator(reading.NewInMemoryRepository(), 0)
	_, err := agg.RollingMean(context.Background(), "x", 0, asOf)
	assert.ErrorIs(t, err, rolling.ErrInvalidWindow)
}

func TestWindows(t *testing.T) {
	// Najaf: eight readings over the last day averaging 320.7.
	values := map[int]float64{}
	for i := 0; i < 8; i++ {
		values[i*3] = 320.7
	}
	agg := rolling.NewAggregator(seed(t, values), 3*time.Hour)

	stats, err := agg.Windows(context.Background(), "IRQ.2.1", asOf, nil)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, 6, stats[0].WindowHours)
	assert.Equal(t, 3, stats[0].SampleCount)
	assert.Equal(t, 12, stats[1].WindowHours)
	assert.Equal(t, 5, stats[1].SampleCount)
	assert.Equal(t, 24, stats[2].WindowHours)
	assert.Equal(t, 8, stats[2].SampleCount)
	assert.InDelta(t, 320.7, *stats[2].Mean, 1e-9)
}
