package airquality_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
)

func newClassifier(t *testing.T, table airquality.Table) *airquality.Classifier {
	t.Helper()
	c, err := airquality.NewClassifier(airquality.ClassifierConfig{Table: table})
	require.NoError(t, err)
	return c
}

func TestClassify_DustTable(t *testing.T) {
	c := newClassifier(t, airquality.DustTable)

	tests := []struct {
		name  string
		conc  float64
		value int
		level airquality.Level
	}{
		{"zero", 0, 0, airquality.LevelGood},
		{"negative clipped", -12, 0, airquality.LevelGood},
		{"good upper", 49.6, 50, airquality.LevelGood},
		{"moderate lower", 50, 51, airquality.LevelModerate},
		{"sensitive", 120, 121, airquality.LevelUnhealthyForSensitiveGroups},
		{"unhealthy", 180, 180, airquality.LevelUnhealthy},
		{"very unhealthy", 225, 251, airquality.LevelVeryUnhealthy},
		{"hazardous lower band", 275, 351, airquality.LevelHazardous},
		{"najaf 24h mean", 320.7, 421, airquality.LevelHazardous},
		{"saturates", 2500, 500, airquality.LevelHazardous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := c.Classify(tt.conc)
			require.NoError(t, err)
			assert.Equal(t, tt.value, state.Value)
			assert.Equal(t, tt.level, state.Level)
		})
	}
}

func TestClassify_EPATable(t *testing.T) {
	c := newClassifier(t, airquality.EPAPM10Table)

	tests := []struct {
		conc  float64
		value int
		level airquality.Level
	}{
		{54.4, 50, airquality.LevelGood},
		{54.6, 51, airquality.LevelModerate},
		{154, 100, airquality.LevelModerate},
		{320.7, 184, airquality.LevelUnhealthy},
		{430, 307, airquality.LevelHazardous},
		{900, 500, airquality.LevelHazardous},
	}

	for _, tt := range tests {
		state, err := c.Classify(tt.conc)
		require.NoError(t, err)
		assert.Equal(t, tt.value, state.Value, "concentration %v", tt.conc)
		assert.Equal(t, tt.level, state.Level, "concentration %v", tt.conc)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	for _, table := range []airquality.Table{airquality.DustTable, airquality.EPAPM10Table} {
		c := newClassifier(t, table)

		prev, err := c.Classify(0)
		require.NoError(t, err)
		for conc := 0.0; conc <= 800; conc += 0.25 {
			state, err := c.Classify(conc)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, state.Level.Severity(), prev.Level.Severity(), "%s at %v", table.Name, conc)
			assert.GreaterOrEqual(t, state.Value, prev.Value, "%s at %v", table.Name, conc)
			prev = state
		}
	}
}

func TestClassify_InvalidInput(t *testing.T) {
	c := newClassifier(t, airquality.DustTable)

	_, err := c.Classify(math.NaN())
	require.ErrorIs(t, err, airquality.ErrInvalidConcentration)

	_, err = c.Classify(math.Inf(1))
	require.ErrorIs(t, err, airquality.ErrInvalidConcentration)
}

func TestCompliance(t *testing.T) {
	c, err := airquality.NewClassifier(airquality.DefaultClassifierConfig())
	require.NoError(t, err)

	mean := 320.7
	state := c.Compliance(&mean)
	assert.Equal(t, airquality.ComplianceExceeded, state.Status)
	assert.InDelta(t, 150.0, state.LimitUgM3, 1e-9)

	atLimit := 150.0
	assert.Equal(t, airquality.ComplianceCompliant, c.Compliance(&atLimit).Status)

	assert.Equal(t, airquality.ComplianceNoData, c.Compliance(nil).Status)
}

func TestCompliance_ConfiguredLimit(t *testing.T) {
	c, err := airquality.NewClassifier(airquality.ClassifierConfig{ComplianceLimit: 100})
	require.NoError(t, err)

	mean := 120.0
	state := c.Compliance(&mean)
	assert.Equal(t, airquality.ComplianceExceeded, state.Status)
	assert.InDelta(t, 100.0, state.LimitUgM3, 1e-9)
	assert.Equal(t, "dust", c.TableName())
}

func TestIsDustStorm(t *testing.T) {
	assert.False(t, airquality.IsDustStorm(299.9, 199))
	assert.True(t, airquality.IsDustStorm(300, 0))
	assert.True(t, airquality.IsDustStorm(0, 200))
	assert.True(t, airquality.IsDustStorm(320, 421))
}

func TestNajafEndToEnd(t *testing.T) {
	c, err := airquality.NewClassifier(airquality.DefaultClassifierConfig())
	require.NoError(t, err)

	mean := 320.7
	state, err := c.Classify(mean)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, state.Value, 400)
	assert.Equal(t, airquality.LevelHazardous, state.Level)
	assert.Equal(t, airquality.ComplianceExceeded, c.Compliance(&mean).Status)
	assert.True(t, airquality.IsDustStorm(mean, state.Value))
}

func TestTableByName(t *testing.T) {
	table, err := airquality.TableByName("EPA")
	require.NoError(t, err)
	assert.Equal(t, "epa_pm10", table.Name)

	table, err = airquality.TableByName("")
	require.NoError(t, err)
	assert.Equal(t, "dust", table.Name)

	_, err = airquality.TableByName("who")
	require.ErrorIs(t, err, airquality.ErrUnknownTable)
}

func TestTableValidate_RejectsOverlap(t *testing.T) {
	bad := airquality.Table{
		Name: "bad",
		Breakpoints: []airquality.Breakpoint{
			{Level: airquality.LevelGood, Low: 0, High: 60, IndexLow: 0, IndexHigh: 50},
			{Level: airquality.LevelModerate, Low: 50, High: 100, IndexLow: 51, IndexHigh: 100},
		},
	}
	_, err := airquality.NewClassifier(airquality.ClassifierConfig{Table: bad})
	require.ErrorIs(t, err, airquality.ErrInvalidTable)
}

func TestParseLevel(t *testing.T) {
	l, err := airquality.ParseLevel("very_unhealthy")
	require.NoError(t, err)
	assert.Equal(t, 4, l.Severity())

	_, err = airquality.ParseLevel("beyond_index")
	require.ErrorIs(t, err, airquality.ErrUnknownLevel)
	assert.Len(t, airquality.Levels(), 6)
}
