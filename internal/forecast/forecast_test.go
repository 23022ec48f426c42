package forecast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/forecast"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
)

var asOf = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)

func classifier(t *testing.T) *airquality.Classifier {
	t.Helper()
	c, err := airquality.NewClassifier(airquality.DefaultClassifierConfig())
	require.NoError(t, err)
	return c
}

func store(t *testing.T, hours map[int]float64) reading.Repository {
	t.Helper()
	repo := reading.NewInMemoryRepository()
	for h, v := range hours {
		require.NoError(t, repo.Append(context.Background(), reading.Reading{
			DistrictID: "IRQ.2.1",
			Timestamp:  asOf.Add(time.Duration(h) * time.Hour),
			PM10:       v,
		}))
	}
	return repo
}

func TestStoreFeed_FullHorizon(t *testing.T) {
	hours := map[int]float64{}
	for h := 3; h <= 24; h += 3 {
		hours[h] = float64(h * 10)
	}
	hours[12] = 320
	gen, err := forecast.NewGenerator(forecast.GeneratorConfig{
		Strategy:   forecast.NewStoreFeed(store(t, hours), 0, 0),
		Classifier: classifier(t),
	})
	require.NoError(t, err)

	points, err := gen.Forecast(context.Background(), "IRQ.2.1", asOf)
	require.NoError(t, err)
	require.Len(t, points, 8)

	for i, p := range points {
		assert.Equal(t, (i+1)*3, p.HorizonHours)
		assert.Equal(t, forecast.SourceExact, p.DataSource)
		assert.Equal(t, asOf.Add(time.Duration(p.HorizonHours)*time.Hour), p.Timestamp)
	}

	assert.Equal(t, 30.0, points[0].Value)
	assert.Equal(t, airquality.LevelGood, points[0].AQILevel)
	assert.False(t, points[0].DustStorm)

	assert.Equal(t, 320.0, points[3].Value)
	assert.Equal(t, airquality.LevelHazardous, points[3].AQILevel)
	assert.True(t, points[3].DustStorm)
}

func TestStoreFeed_MissingHorizonsAreOmitted(t *testing.T) {
	gen, err := forecast.NewGenerator(forecast.GeneratorConfig{
		Strategy:   forecast.NewStoreFeed(store(t, map[int]float64{3: 50, 9: 60, 24: 70}), 0, 0),
		Classifier: classifier(t),
	})
	require.NoError(t, err)

	points, err := gen.Forecast(context.Background(), "IRQ.2.1", asOf)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, []int{3, 9, 24}, []int{points[0].HorizonHours, points[1].HorizonHours, points[2].HorizonHours})
}

func TestStoreFeed_NearestWithinTolerance(t *testing.T) {
	repo := reading.NewInMemoryRepository()
	require.NoError(t, repo.Append(context.Background(), reading.Reading{
		DistrictID: "IRQ.2.1",
		Timestamp:  asOf.Add(4 * time.Hour),
		PM10:       90,
	}))

	p, ok, err := forecast.NewStoreFeed(repo, 0, 0).Predict(context.Background(), "IRQ.2.1", asOf, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, forecast.SourceNearest, p.Source)
	assert.Equal(t, 90.0, p.Value)
	assert.Equal(t, asOf.Add(4*time.Hour), p.Timestamp)
}

func TestPersistence(t *testing.T) {
	s := forecast.NewPersistence(store(t, map[int]float64{0: 140, -3: 10}), 0)

	p, ok, err := s.Predict(context.Background(), "IRQ.2.1", asOf, 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 140.0, p.Value)
	assert.Equal(t, forecast.SourcePersistence, p.Source)

	_, ok, err = s.Predict(context.Background(), "other", asOf, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrend(t *testing.T) {
	// Rising 10 µg/m³ per hour, ending at 200 now.
	s := forecast.NewTrend(store(t, map[int]float64{-6: 140, -3: 170, 0: 200}), 0, 0)

	p, ok, err := s.Predict(context.Background(), "IRQ.2.1", asOf, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 230, p.Value, 1e-6)
	assert.Equal(t, forecast.SourceTrend, p.Source)

	falling := forecast.NewTrend(store(t, map[int]float64{-6: 60, -3: 30, 0: 0}), 0, 0)
	p, ok, err = falling.Predict(context.Background(), "IRQ.2.1", asOf, 24)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, p.Value)

	_, ok, err = forecast.NewTrend(store(t, map[int]float64{0: 1}), 0, 0).Predict(context.Background(), "IRQ.2.1", asOf, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewGenerator_Validation(t *testing.T) {
	repo := reading.NewInMemoryRepository()
	_, err := forecast.NewGenerator(forecast.GeneratorConfig{Classifier: classifier(t)})
	assert.Error(t, err)

	_, err = forecast.NewGenerator(forecast.GeneratorConfig{
		Strategy:   forecast.NewPersistence(repo, 0),
		Classifier: classifier(t),
		Horizons:   []int{6, 3},
	})
	assert.Error(t, err)

	_, err = forecast.NewStrategy("neural", repo)
	assert.ErrorIs(t, err, forecast.ErrUnknownStrategy)
}
