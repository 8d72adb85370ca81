package collection_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/TuSKan/coverage"
	"github.com/TuSKan/coverage/collection"
	"github.com/TuSKan/coverage/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refDate = "2012-02-27T00:00:00Z"

var t0 = time.Date(2012, 2, 27, 0, 0, 0, 0, time.UTC)

func hours(h float64) time.Time { return t0.Add(time.Duration(h * float64(time.Hour))) }

func steps(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func latLonGrid() collection.HorizGrid {
	return collection.HorizGrid{ID: "LatLon_3X4", LatLon: true, Nx: 4, Ny: 3, StartX: 0, StartY: 50, Dx: 5, Dy: -5}
}

func master(values []float64) collection.Coordinate {
	return collection.Coordinate{Type: collection.CoordRuntime, Name: "master", Unit: "hours", RefDate: refDate, Values: values}
}

// twoDCollection has two groups' worth of runtimes folded into one group:
// reftime and reftime1 are identical, time and time1 have the same offsets.
func twoDCollection() *collection.Collection {
	runs := steps(0, 6, 46)
	offsets := make([][]float64, len(runs))
	for i := range offsets {
		offsets[i] = []float64{0, 3, 6, 9}
	}
	return &collection.Collection{
		Name:          "GFS-Global",
		MasterRuntime: master(runs),
		Attributes:    map[string]string{"Originating_center": "US NCEP"},
		Datasets: []collection.Dataset{{
			Type: collection.TwoD,
			Groups: []collection.Group{{
				ID:    "LatLon_3X4",
				Horiz: latLonGrid(),
				Coordinates: []collection.Coordinate{
					{Type: collection.CoordRuntime, Name: "reftime", Unit: "hours", RefDate: refDate, Values: runs},
					{Type: collection.CoordRuntime, Name: "reftime1", Unit: "hours", RefDate: refDate, Values: runs},
					{Type: collection.CoordRuntime, Name: "reftime2", Unit: "hours", RefDate: refDate, Values: steps(0, 30, 10)},
					{Type: collection.CoordTime2D, Name: "time", Unit: "hours", Runtime: "reftime", Offsets: offsets},
					{Type: collection.CoordTime2D, Name: "time1", Unit: "hours", Runtime: "reftime1", Offsets: offsets},
					{Type: collection.CoordVert, Name: "isobaric", Unit: "hPa", Values: []float64{1000, 850, 500}},
					{Type: collection.CoordEns, Name: "ens", Values: []float64{0, 1}},
				},
				Variables: []collection.Variable{
					{Name: "Temperature_isobaric", Units: "K", Description: "Temperature", Level: "L100", Coordinates: []string{"reftime", "time", "isobaric"}, Path: "t"},
					{Name: "Relative_humidity_isobaric", Units: "%", Category: 1, Parameter: 1, Coordinates: []string{"reftime1", "time1", "isobaric"}, Path: "rh"},
					{Name: "Pressure_msl", Units: "Pa", Category: 3, Parameter: 1, Coordinates: []string{"reftime", "time"}, Path: "msl"},
					{Name: "Temperature_ens", Units: "K", Coordinates: []string{"reftime", "time", "isobaric", "ens"}, Path: "tens"},
					{Name: "Total_precipitation", Units: "kg.m-2", Category: 1, Parameter: 8, Coordinates: []string{"reftime2"}, Path: "tp"},
				},
			}},
		}},
	}
}

func bestCollection() *collection.Collection {
	return &collection.Collection{
		Name:          "GFS-Global",
		MasterRuntime: master([]float64{0, 6}),
		Datasets: []collection.Dataset{{
			Type: collection.Best,
			Groups: []collection.Group{{
				ID:    "LatLon_3X4",
				Horiz: latLonGrid(),
				Coordinates: []collection.Coordinate{
					{Type: collection.CoordRuntime, Name: "reftime", Unit: "hours", RefDate: refDate, Values: []float64{0, 6}},
					{Type: collection.CoordTime, Name: "time", Unit: "hours", RefDate: refDate, Values: []float64{0, 3, 6, 9}, Time2Runtime: []int{1, 1, 2, 2}},
					{Type: collection.CoordTimeIntv, Name: "time1", Unit: "hours", RefDate: refDate, Intervals: [][2]float64{{0, 3}, {3, 6}, {6, 9}}, Time2Runtime: []int{1, 0, 2}},
				},
				Variables: []collection.Variable{
					{Name: "Temperature_height_above_ground", Units: "K", Coordinates: []string{"time"}, Path: "t2m"},
					{Name: "Total_precipitation", Units: "kg.m-2", Category: 1, Parameter: 8, Coordinates: []string{"time1"}, Path: "tp"},
				},
			}},
		}},
	}
}

func projCollection() *collection.Collection {
	return &collection.Collection{
		Name:          "NAM-CONUS",
		MasterRuntime: master([]float64{0}),
		Datasets: []collection.Dataset{{
			Type: collection.SRC,
			Groups: []collection.Group{{
				ID: "LambertConformal_2X3",
				Horiz: collection.HorizGrid{
					ID: "LambertConformal_2X3", Projection: "lambert_conformal_conic", Nx: 3, Ny: 2,
					StartX: -4000, StartY: -800, Dx: 12, Dy: 12,
					ProjParams: map[string]float64{"latitude_of_projection_origin": 25, "longitude_of_central_meridian": 265},
				},
				Coordinates: []collection.Coordinate{
					{Type: collection.CoordRuntime, Name: "reftime", Unit: "hours", RefDate: refDate, Values: []float64{0}},
					{Type: collection.CoordTime, Name: "time", Unit: "hours", RefDate: refDate, Values: []float64{0, 6, 18}},
					{Type: collection.CoordVert, Name: "depth_below_surface_layer", Unit: "m", Intervals: [][2]float64{{0, 0.1}, {0.1, 0.4}}},
					{Type: collection.CoordVert, Name: "sigma", Unit: "", Values: []float64{0.995}, PositiveUp: true},
				},
				Variables: []collection.Variable{
					{Name: "Soil_temperature", Units: "K", Coordinates: []string{"reftime", "time", "depth_below_surface_layer"}, Path: "soilt"},
					{Name: "Temperature_sigma", Units: "K", Coordinates: []string{"time", "sigma", "reftime"}, Path: "ts"},
				},
			}},
		}},
	}
}

type latLonReader struct{}

func (latLonReader) ReadCoordValues(a *coverage.Axis) ([]float64, error) {
	ref, ok := a.User().(*collection.VarRef)
	if !ok {
		return nil, errors.New("no variable")
	}
	base := 30.0
	if a.AxisType() == coverage.AxisLon {
		base = -100
	}
	if ref.Variable.Parameter < 202 {
		base += 0.5
	}
	return steps(base, 1, 6), nil
}

func (latLonReader) ReadData(context.Context, *coverage.Coverage, coverage.SubsetParams) (*coverage.GeoReferencedArray, error) {
	return nil, errors.New("not implemented")
}
func (latLonReader) Location() string { return "mem://rtofs" }
func (latLonReader) Close() error     { return nil }

func curvilinearCollection() *collection.Collection {
	ll := func(name string, param int) collection.Variable {
		return collection.Variable{Name: name, Category: 2, Parameter: param, Coordinates: []string{"time"}, Path: name}
	}
	return &collection.Collection{
		Name:          "RTOFS",
		MasterRuntime: master([]float64{0}),
		Datasets: []collection.Dataset{{
			Type: collection.SRC,
			Groups: []collection.Group{{
				ID:    "Curvilinear_2X3",
				Horiz: collection.HorizGrid{ID: "Curvilinear_2X3", Template: 204, Nx: 3, Ny: 2},
				Coordinates: []collection.Coordinate{
					{Type: collection.CoordTime, Name: "time", Unit: "hours", RefDate: refDate, Values: []float64{0, 24}},
				},
				Variables: []collection.Variable{
					ll("P_Latitude", 202), ll("P_Longitude", 203), ll("U_Latitude", 198), ll("U_Longitude", 199),
					{Name: "Sea_temperature", Description: "Water temperature", Discipline: 10, Category: 4, Coordinates: []string{"time"}, Path: "sst"},
					{Name: "Barotropic_u-component", Description: "Barotropic U-component of current", Discipline: 10, Category: 1, Parameter: 2, Coordinates: []string{"time"}, Path: "ubaro"},
				},
			}},
		}},
	}
}

func build(t *testing.T, c *collection.Collection, r coverage.Reader) *coverage.Dataset {
	t.Helper()
	require.NoError(t, c.Validate())
	d, err := collection.Build(c, &c.Datasets[0], &c.Datasets[0].Groups[0], r, collection.Options{})
	require.NoError(t, err)
	return d
}

func TestBuild_TwoD(t *testing.T) {
	smooshes := testutil.ToFloat64(metrics.RuntimeSmooshes)
	substs := testutil.ToFloat64(metrics.Time2DSubstitutions)
	built := testutil.ToFloat64(metrics.DatasetsBuilt.WithLabelValues("TwoD"))

	d := build(t, twoDCollection(), nil)
	require.Equal(t, "GFS-Global#TwoD", d.Name())
	require.Equal(t, coverage.Fmrc, d.Type())
	require.Equal(t, "US NCEP", d.Attributes().String("Originating_center", ""))

	require.Equal(t, smooshes+1, testutil.ToFloat64(metrics.RuntimeSmooshes))
	require.Equal(t, substs+1, testutil.ToFloat64(metrics.Time2DSubstitutions))
	require.Equal(t, built+1, testutil.ToFloat64(metrics.DatasetsBuilt.WithLabelValues("TwoD")))

	run, ok := d.FindAxis("reftime")
	require.True(t, ok)
	require.Equal(t, 46, run.NCoords())
	require.Equal(t, coverage.Regular, run.Spacing())
	require.Equal(t, 6.0, run.Resolution())
	require.Equal(t, "hours since 2012-02-27T00:00:00Z", run.Units())
	for _, gone := range []string{"reftime1", "time1"} {
		_, ok := d.FindAxis(gone)
		require.False(t, ok, gone)
	}
	sparse, ok := d.FindAxis("reftime2")
	require.True(t, ok)
	require.Equal(t, 10, sparse.NCoords())

	offset, ok := d.FindAxis("time")
	require.True(t, ok)
	require.Equal(t, coverage.AxisTimeOffset, offset.AxisType())
	require.Equal(t, coverage.Independent, offset.Dependence())
	coords, err := offset.Coords()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 3, 6, 9}, coords)

	isobaric, ok := d.FindAxis("isobaric")
	require.True(t, ok)
	require.Equal(t, coverage.AxisPressure, isobaric.AxisType())
	require.Equal(t, coverage.IrregularPoint, isobaric.Spacing())

	temp, _ := d.FindCoverage("Temperature_isobaric")
	rh, _ := d.FindCoverage("Relative_humidity_isobaric")
	require.Same(t, temp.CoordSys(), rh.CoordSys())
	require.Equal(t, "reftime time isobaric lat lon", temp.CoordSys().Name())
	require.Equal(t, "VAR_0-0-0_L100", temp.Attributes().String("Grib_Variable_Id", ""))

	ref, ok := temp.User().(*collection.VarRef)
	require.True(t, ok)
	require.Equal(t, "t", ref.Variable.Path)

	ens, _ := d.FindCoverage("Temperature_ens")
	require.Equal(t, "reftime time ens isobaric lat lon", ens.CoordSys().Name())
	tp, _ := d.FindCoverage("Total_precipitation")
	require.Equal(t, "reftime2 lat lon", tp.CoordSys().Name())
	require.Len(t, d.CoordSystems(), 4)

	h := d.HorizCoordSys()
	require.True(t, h.IsLatLon())
	bb, ok, err := h.LatLonBoundingBox()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, coverage.LatLonRect{South: 40, North: 50, West: 0, East: 15}, bb)

	// constant forecast over the latest run
	sub, err := temp.CoordSys().Subset(coverage.SubsetParams{RuntimeLatest: true, Vertical: ptr(850.0)})
	require.NoError(t, err)
	set, err := sub.CoordsSet()
	require.NoError(t, err)
	require.Equal(t, []int{1, 4, 1}, set.Shape())
	for c, err := range set.All() {
		require.NoError(t, err)
		require.True(t, c.RunDate.Equal(hours(270)))
	}
}

func TestBuild_BestEstimate(t *testing.T) {
	d := build(t, bestCollection(), nil)
	require.Equal(t, "GFS-Global#Best", d.Name())
	require.Equal(t, coverage.Grid, d.Type())

	temp, ok := d.FindCoverage("Temperature_height_above_ground")
	require.True(t, ok)
	require.Equal(t, "time_ref time lat lon", temp.CoordSys().Name())

	aux, ok := d.FindAxis("time_ref")
	require.True(t, ok)
	require.Equal(t, coverage.Dependent, aux.Dependence())
	require.Equal(t, []string{"time"}, aux.DependsOn())

	set, err := temp.CoordSys().CoordsSet()
	require.NoError(t, err)
	wantRuns := []float64{0, 0, 6, 6}
	wantOffsets := []float64{0, 3, 0, 3}
	i := 0
	for c, err := range set.All() {
		require.NoError(t, err)
		assert.True(t, c.RunDate.Equal(hours(wantRuns[i])), "tuple %d run %s", i, c.RunDate)
		assert.Equal(t, coverage.PointValue(wantOffsets[i]), c.TimeOffset, "tuple %d", i)
		i++
	}
	require.Equal(t, 4, i)

	tp, _ := d.FindCoverage("Total_precipitation")
	intv, ok := d.FindAxis("time1")
	require.True(t, ok)
	require.Equal(t, coverage.ContiguousInterval, intv.Spacing())
	refIntv, ok := d.FindAxis("reftime1")
	require.True(t, ok)
	values, err := refIntv.Values()
	require.NoError(t, err)
	require.True(t, math.IsNaN(values[1]))

	set, err = tp.CoordSys().CoordsSet()
	require.NoError(t, err)
	var failed int
	for _, err := range set.All() {
		if err != nil {
			require.ErrorIs(t, err, coverage.ErrNoRunDate)
			failed++
		}
	}
	require.Equal(t, 1, failed)
}

func TestBuild_Projection(t *testing.T) {
	d := build(t, projCollection(), nil)
	require.Equal(t, "NAM-CONUS#SRC", d.Name())

	tr, ok := d.FindTransform("LambertConformal_2X3")
	require.True(t, ok)
	require.Equal(t, "lambert_conformal_conic", tr.Kind)
	require.Equal(t, "265", tr.Params.String("longitude_of_central_meridian", ""))

	soil, _ := d.FindCoverage("Soil_temperature")
	cs := soil.CoordSys()
	require.Equal(t, "reftime time depth_below_surface_layer y x", cs.Name())
	require.Equal(t, []string{"LambertConformal_2X3"}, cs.TransformNames())
	require.True(t, cs.HorizCoordSys().IsProjection())

	run, _ := d.FindAxis("reftime")
	require.True(t, run.IsScalar())

	layer, _ := d.FindAxis("depth_below_surface_layer")
	require.Equal(t, coverage.AxisHeight, layer.AxisType())
	require.Equal(t, coverage.ContiguousInterval, layer.Spacing())
	require.Equal(t, "down", layer.Attributes().String("positive", ""))

	tm, _ := d.FindAxis("time")
	require.Equal(t, coverage.IrregularPoint, tm.Spacing())

	sigma, _ := d.FindAxis("sigma")
	require.Equal(t, coverage.AxisGeoZ, sigma.AxisType())
	require.Equal(t, "up", sigma.Attributes().String("positive", ""))

	ts, _ := d.FindCoverage("Temperature_sigma")
	require.Equal(t, "reftime time sigma y x", ts.CoordSys().Name())

	bb, ok := cs.HorizCoordSys().ProjBoundingBox()
	require.True(t, ok)
	require.Equal(t, coverage.ProjRect{MinX: -4000, MinY: -800, MaxX: -3976, MaxY: -788}, bb)
}

func TestBuild_Curvilinear(t *testing.T) {
	d := build(t, curvilinearCollection(), latLonReader{})
	require.Equal(t, coverage.Curvilinear, d.Type())

	_, ok := d.FindCoverage("P_Latitude")
	require.False(t, ok)
	require.Len(t, d.Coverages(), 2)

	sst, _ := d.FindCoverage("Sea_temperature")
	require.Equal(t, "time P_Latitude P_Longitude", sst.CoordSys().Name())
	ubaro, _ := d.FindCoverage("Barotropic_u-component")
	require.Equal(t, "time U_Latitude U_Longitude", ubaro.CoordSys().Name())

	h := d.HorizCoordSys()
	require.True(t, h.IsCurvilinear())
	require.Same(t, h, ubaro.CoordSys().HorizCoordSys())
	ny, nx := h.Shape()
	require.Equal(t, 2, ny)
	require.Equal(t, 3, nx)

	bb, ok, err := h.LatLonBoundingBox()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, coverage.LatLonRect{South: 30, North: 35, West: -100, East: -95}, bb)

	lat, _ := d.FindAxis("U_Latitude")
	require.Equal(t, coverage.TwoD, lat.Dependence())
	require.Equal(t, []int{2, 3}, lat.Shape())

	c := curvilinearCollection()
	_, err = collection.Build(c, &c.Datasets[0], &c.Datasets[0].Groups[0], nil, collection.Options{})
	require.ErrorIs(t, err, coverage.ErrInvalidAxis)
}

func TestBuild_SingleRunSmoosh(t *testing.T) {
	c := &collection.Collection{
		Name:          "HRRR",
		MasterRuntime: master([]float64{12}),
		Datasets: []collection.Dataset{{
			Type: collection.SRC,
			Groups: []collection.Group{{
				ID:    "LatLon_3X4",
				Horiz: latLonGrid(),
				Coordinates: []collection.Coordinate{
					{Type: collection.CoordRuntime, Name: "reftime", Unit: "hours", RefDate: refDate, Values: []float64{12}},
					{Type: collection.CoordRuntime, Name: "reftime1", Unit: "hours", RefDate: refDate, Values: []float64{12}},
					{Type: collection.CoordTime, Name: "time", Unit: "hours", RefDate: refDate, Values: []float64{12, 18}},
				},
				Variables: []collection.Variable{
					{Name: "Temperature_surface", Units: "K", Coordinates: []string{"reftime", "time"}, Path: "t"},
					{Name: "Pressure_surface", Units: "Pa", Category: 3, Coordinates: []string{"reftime1", "time"}, Path: "p"},
				},
			}},
		}},
	}
	smooshes := testutil.ToFloat64(metrics.RuntimeSmooshes)
	d := build(t, c, nil)
	require.Equal(t, smooshes+1, testutil.ToFloat64(metrics.RuntimeSmooshes))

	run, ok := d.FindAxis("reftime")
	require.True(t, ok)
	require.True(t, run.IsScalar())
	dates, err := run.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 1)
	require.True(t, dates[0].Equal(hours(12)))
	_, ok = d.FindAxis("reftime1")
	require.False(t, ok)

	temp, _ := d.FindCoverage("Temperature_surface")
	pres, _ := d.FindCoverage("Pressure_surface")
	require.Same(t, temp.CoordSys(), pres.CoordSys())
	require.Equal(t, "reftime time lat lon", pres.CoordSys().Name())

	_, err = temp.CoordSys().Subset(coverage.SubsetParams{Runtime: hours(12)})
	require.NoError(t, err)
	_, err = temp.CoordSys().Subset(coverage.SubsetParams{Runtime: hours(240)})
	require.ErrorIs(t, err, coverage.ErrEmptySubset)
}

func TestBuildAll(t *testing.T) {
	c := twoDCollection()
	best := bestCollection().Datasets[0]
	second := best.Groups[0]
	second.ID = "LatLon_other"
	best.Groups = append(best.Groups, second)
	c.Datasets = append(c.Datasets, best)
	require.NoError(t, c.Validate())

	all, err := collection.BuildAll(c, nil, collection.Options{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "GFS-Global#TwoD", all[0].Name())
	require.Equal(t, "GFS-Global#Best-LatLon_3X4", all[1].Name())
	require.Equal(t, "GFS-Global#Best-LatLon_other", all[2].Name())
}

func ptr[T any](v T) *T { return &v }
