package coverage_test

import (
	"math"
	"testing"

	"github.com/TuSKan/coverage"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func collect(t *testing.T, cs *coverage.CoordsSet) []coverage.Coords {
	t.Helper()
	var out []coverage.Coords
	for c, err := range cs.All() {
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestCoordsSet_ConstantForecast(t *testing.T) {
	run := mustAxis(t, coverage.AxisBuilder{Name: "reftime", AxisType: coverage.AxisRunTime, Units: refUnits, NCoords: 1})
	offset := mustAxis(t, coverage.AxisBuilder{
		Name: "time", AxisType: coverage.AxisTimeOffset, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"reftime"},
		NCoords: 4, Start: 0, End: 9,
	})

	cs, err := coverage.NewCoordsSet(true, []*coverage.Axis{run, offset})
	require.NoError(t, err)
	require.Equal(t, []int{1, 4}, cs.Shape())
	require.Equal(t, []string{"reftime", "time"}, cs.DimNames())

	tuples := collect(t, cs)
	require.Len(t, tuples, 4)
	for i, c := range tuples {
		require.True(t, c.Has(coverage.RoleRunDate))
		require.True(t, c.RunDate.Equal(t0))
		require.Equal(t, coverage.PointValue(float64(3*i)), c.TimeOffset)
		require.True(t, c.TimeOffsetDate.Equal(hours(float64(3*i))))
		require.False(t, c.Has(coverage.RoleVert))
	}
}

func TestCoordsSet_OffsetSynthesis(t *testing.T) {
	// run date D = R + 12h, stored offsets relative to R
	run := mustAxis(t, coverage.AxisBuilder{Name: "reftime", AxisType: coverage.AxisRunTime, Units: refUnits, NCoords: 1, Start: 12, End: 12})
	offset := mustAxis(t, coverage.AxisBuilder{
		Name: "time", AxisType: coverage.AxisTimeOffset, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"reftime"},
		Spacing: coverage.DiscontiguousInterval, NCoords: 2, Values: []float64{12, 18, 15, 21},
	})
	cs, err := coverage.NewCoordsSet(true, []*coverage.Axis{run, offset})
	require.NoError(t, err)

	tuples := collect(t, cs)
	require.Len(t, tuples, 2)
	require.Equal(t, coverage.IntervalValue(0, 6), tuples[0].TimeOffset)
	require.Equal(t, coverage.IntervalValue(3, 9), tuples[1].TimeOffset)
	require.True(t, tuples[0].RunDate.Equal(hours(12)))
	require.True(t, tuples[0].TimeOffsetDate.Equal(hours(15)))
	require.True(t, tuples[1].TimeOffsetDate.Equal(hours(18)))
}

func TestCoordsSet_PairedOffsets(t *testing.T) {
	run := mustAxis(t, coverage.AxisBuilder{Name: "reftime", AxisType: coverage.AxisRunTime, Units: refUnits, NCoords: 2, Start: 0, End: 6})
	offset := mustAxis(t, coverage.AxisBuilder{
		Name: "time", AxisType: coverage.AxisTimeOffset, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"reftime"},
		Spacing: coverage.IrregularPoint, NCoords: 2, Values: []float64{3, 9},
	})
	cs, err := coverage.NewCoordsSet(true, []*coverage.Axis{run, offset})
	require.NoError(t, err)
	require.Equal(t, []int{2}, cs.Shape())

	tuples := collect(t, cs)
	require.Equal(t, coverage.PointValue(3), tuples[0].TimeOffset)
	require.Equal(t, coverage.PointValue(3), tuples[1].TimeOffset)
	require.True(t, tuples[1].TimeOffsetDate.Equal(hours(9)))

	bad := mustAxis(t, coverage.AxisBuilder{
		Name: "time", AxisType: coverage.AxisTimeOffset, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"reftime"},
		NCoords: 3, Start: 0, End: 6,
	})
	_, err = coverage.NewCoordsSet(true, []*coverage.Axis{run, bad})
	require.ErrorIs(t, err, coverage.ErrInvalidAxis)
}

func TestCoordsSet_BestEstimate(t *testing.T) {
	tm := mustAxis(t, coverage.AxisBuilder{Name: "time", AxisType: coverage.AxisTime, Units: refUnits, NCoords: 3, Start: 0, End: 6})
	runs := mustAxis(t, coverage.AxisBuilder{
		Name: "time_run", AxisType: coverage.AxisRunTime, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"time"},
		Spacing: coverage.IrregularPoint, NCoords: 3, Values: []float64{0, 0, 6},
	})

	cs, err := coverage.NewCoordsSet(false, []*coverage.Axis{runs, tm})
	require.NoError(t, err)
	require.Equal(t, []int{3}, cs.Shape())

	tuples := collect(t, cs)
	require.Len(t, tuples, 3)
	wantOffsets := []float64{0, 3, 0}
	wantRuns := []float64{0, 0, 6}
	for i, c := range tuples {
		require.Equal(t, coverage.PointValue(wantOffsets[i]), c.TimeOffset, "tuple %d", i)
		require.True(t, c.RunDate.Equal(hours(wantRuns[i])), "tuple %d", i)
		require.True(t, c.TimeOffsetDate.Equal(hours(float64(3*i))), "tuple %d", i)
	}
}

func TestCoordsSet_MissingRunDate(t *testing.T) {
	tm := mustAxis(t, coverage.AxisBuilder{Name: "time", AxisType: coverage.AxisTime, Units: refUnits, NCoords: 3, Start: 0, End: 6})
	runs := mustAxis(t, coverage.AxisBuilder{
		Name: "time_run", AxisType: coverage.AxisRunTime, Units: refUnits,
		Dependence: coverage.Dependent, DependsOn: []string{"time"},
		Spacing: coverage.IrregularPoint, NCoords: 3, Values: []float64{0, nan, 6},
	})
	cs, err := coverage.NewCoordsSet(false, []*coverage.Axis{runs, tm})
	require.NoError(t, err)

	var ok int
	var lastErr error
	for _, err := range cs.All() {
		if err != nil {
			lastErr = err
			continue
		}
		ok++
	}
	require.Equal(t, 1, ok)
	require.ErrorIs(t, lastErr, coverage.ErrNoRunDate)

	offset := mustAxis(t, coverage.AxisBuilder{Name: "lead", AxisType: coverage.AxisTimeOffset, Units: refUnits, NCoords: 2, Start: 0, End: 3})
	_, err = coverage.NewCoordsSet(false, []*coverage.Axis{offset})
	require.ErrorIs(t, err, coverage.ErrNoRunDate)
}

func TestCoordsSet_Odometer(t *testing.T) {
	run := mustAxis(t, coverage.AxisBuilder{Name: "reftime", AxisType: coverage.AxisRunTime, Units: refUnits, NCoords: 2, Start: 0, End: 12})
	offset := mustAxis(t, coverage.AxisBuilder{Name: "time", AxisType: coverage.AxisTimeOffset, Units: refUnits, NCoords: 3, Start: 0, End: 6})
	vert := mustAxis(t, coverage.AxisBuilder{
		Name: "isobaric", AxisType: coverage.AxisPressure, Units: "hPa",
		Spacing: coverage.IrregularPoint, NCoords: 4, Values: []float64{1000, 850, 700, 500},
	})
	ens := mustAxis(t, coverage.AxisBuilder{Name: "ens", AxisType: coverage.AxisEnsemble, NCoords: 2, Start: 0, End: 1})
	lat := mustAxis(t, coverage.AxisBuilder{Name: "lat", AxisType: coverage.AxisLat, Units: "degrees_north", NCoords: 3, Start: 50, End: 40})

	cs, err := coverage.NewCoordsSet(false, []*coverage.Axis{run, offset, ens, vert, lat})
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 2, 4}, cs.Shape())
	require.Equal(t, 48, cs.Size())
	require.Equal(t, []int{2, 3, 2, 4, 5, 6}, cs.ShapeWith(5, 6))

	tuples := collect(t, cs)
	require.Len(t, tuples, 48)
	seen := make(map[string]bool, len(tuples))
	for _, c := range tuples {
		seen[c.String()] = true
	}
	require.Len(t, seen, 48)

	// rightmost dimension fastest
	require.Equal(t, coverage.PointValue(1000), tuples[0].Vert)
	require.Equal(t, coverage.PointValue(850), tuples[1].Vert)
	require.Equal(t, tuples[0].Ens, tuples[1].Ens)
	require.Equal(t, 1.0, tuples[4].Ens)
	require.Equal(t, coverage.PointValue(3), tuples[8].TimeOffset)
	require.True(t, tuples[24].RunDate.Equal(hours(12)))
	require.True(t, tuples[25].TimeOffsetDate.Equal(hours(12)))

	// restartable
	require.Len(t, collect(t, cs), 48)
}

func TestCoordsSet_Abandon(t *testing.T) {
	run := mustAxis(t, coverage.AxisBuilder{Name: "reftime", AxisType: coverage.AxisRunTime, Units: refUnits, NCoords: 10, Start: 0, End: 9})
	cs, err := coverage.NewCoordsSet(false, []*coverage.Axis{run})
	require.NoError(t, err)
	n := 0
	for range cs.All() {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}
