package collection

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/TuSKan/coverage"
	"github.com/TuSKan/coverage/metrics"
)

// curvilinearTemplate is the GRIB grid template of grids described by 2D
// lat/lon fields.
const curvilinearTemplate = 204

// DefaultRuntimeTolerance is the relative tolerance used to smoosh runtimes.
const DefaultRuntimeTolerance = 0.10

type latLon2D struct {
	name     string
	stagger  string
	axisType coverage.AxisType
}

// latLon2DParams are the parameters of discipline 0 category 2 that carry
// 2D lat/lon fields.
var latLon2DParams = map[int]latLon2D{
	198: {"U_Latitude", "U", coverage.AxisLat},
	199: {"U_Longitude", "U", coverage.AxisLon},
	200: {"V_Latitude", "V", coverage.AxisLat},
	201: {"V_Longitude", "V", coverage.AxisLon},
	202: {"P_Latitude", "P", coverage.AxisLat},
	203: {"P_Longitude", "P", coverage.AxisLon},
}

func isLatLon2D(v *Variable) (latLon2D, bool) {
	if v.Discipline != 0 || v.Category != 2 {
		return latLon2D{}, false
	}
	ll, ok := latLon2DParams[v.Parameter]
	return ll, ok
}

// Options tune a build.
type Options struct {
	Logger *slog.Logger
	// RuntimeTolerance is the relative tolerance used to decide that two
	// runtime axes are the same.
	RuntimeTolerance float64
	// SpacingTolerance is the relative tolerance used to decide that a
	// coordinate is regular or that intervals touch.
	SpacingTolerance float64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.RuntimeTolerance <= 0 {
		o.RuntimeTolerance = DefaultRuntimeTolerance
	}
	if o.SpacingTolerance <= 0 {
		o.SpacingTolerance = coverage.SpacingTolerance
	}
	return o
}

// VarRef locates the stored variable behind a coverage or a 2D lat/lon axis.
// It is their user object.
type VarRef struct {
	Collection *Collection
	Dataset    *Dataset
	Group      *Group
	Variable   *Variable
}

// BuildAll builds every group of every dataset in c.
func BuildAll(c *Collection, reader coverage.Reader, opts Options) ([]*coverage.Dataset, error) {
	var out []*coverage.Dataset
	for i := range c.Datasets {
		ds := &c.Datasets[i]
		for j := range ds.Groups {
			d, err := Build(c, ds, &ds.Groups[j], reader, opts)
			if err != nil {
				return nil, fmt.Errorf("dataset %s group %s: %w", ds.Type, ds.Groups[j].ID, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// Build turns one group of a collection dataset into a wired coverage
// dataset. It fails without returning a dataset on any inconsistency.
func Build(c *Collection, ds *Dataset, g *Group, reader coverage.Reader, opts Options) (*coverage.Dataset, error) {
	if len(c.masterDates) == 0 {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	opts = opts.withDefaults()
	b := &builder{
		coll:   c,
		ds:     ds,
		group:  g,
		reader: reader,
		opts:   opts,
		log:    opts.Logger.With("collection", c.Name, "dataset", ds.Type, "group", g.ID),
	}
	d, err := b.build()
	if err != nil {
		return nil, err
	}
	metrics.DatasetsBuilt.WithLabelValues(string(ds.Type)).Inc()
	return d, nil
}

type builder struct {
	coll   *Collection
	ds     *Dataset
	group  *Group
	reader coverage.Reader
	opts   Options
	log    *slog.Logger

	typ        coverage.CoordSysType
	horizNames map[string][]string // by stagger for curvilinear grids, "" otherwise
	transforms []string
	auxNames   map[string]string // time coordinate -> its dependent runtime axis
}

func (b *builder) name() string {
	name := b.coll.Name + "#" + string(b.ds.Type)
	if len(b.ds.Groups) > 1 {
		name += "-" + b.group.ID
	}
	return name
}

func (b *builder) build() (*coverage.Dataset, error) {
	b.typ = coverage.Grid
	if b.ds.Type.IsFmrc() {
		b.typ = coverage.Fmrc
	}

	axes, transforms, err := b.horizontal()
	if err != nil {
		return nil, err
	}

	acc := newAccumulator()
	b.auxNames = make(map[string]string)
	for i := range b.group.Coordinates {
		c := &b.group.Coordinates[i]
		switch c.Type {
		case CoordRuntime:
			cand, err := b.runtimeCandidate(c)
			if err != nil {
				return nil, err
			}
			acc = acc.withRuntime(cand)
		case CoordTime2D:
			acc = acc.withTime2D(newTime2DAxis(c))
			if first := acc.substitute(c.Name); first != c.Name {
				b.log.Debug("time2D coordinate substituted", "name", c.Name, "by", first)
				metrics.Time2DSubstitutions.Inc()
			}
		case CoordTime, CoordTimeIntv:
			as, err := b.timeAxes(c)
			if err != nil {
				return nil, err
			}
			axes = append(axes, as...)
		case CoordVert:
			a, err := b.vertAxis(c)
			if err != nil {
				return nil, err
			}
			axes = append(axes, a)
		case CoordEns:
			a, err := b.ensAxis(c)
			if err != nil {
				return nil, err
			}
			axes = append(axes, a)
		}
	}

	acc = smoosh(acc, b.opts.RuntimeTolerance)
	if acc.merges > 0 {
		b.log.Debug("runtimes smooshed", "merged", acc.merges, "remaining", len(acc.runtimes))
		metrics.RuntimeSmooshes.Add(float64(acc.merges))
	}
	for _, cand := range acc.runtimes {
		a, err := b.runtimeAxis(cand)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	for _, t := range acc.time2D {
		a, err := b.time2DAxis(t)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}

	var (
		systems   []*coverage.CoordSys
		seen      = make(map[string]bool)
		coverages []*coverage.Coverage
	)
	for i := range b.group.Variables {
		v := &b.group.Variables[i]
		if _, ok := isLatLon2D(v); ok && b.typ == coverage.Curvilinear {
			continue
		}
		names, err := b.axisNames(v, acc)
		if err != nil {
			return nil, err
		}
		csName := strings.Join(names, " ")
		if !seen[csName] {
			seen[csName] = true
			systems = append(systems, coverage.NewCoordSys(csName, b.typ, names, b.transforms))
		}
		coverages = append(coverages, coverage.NewCoverage(v.Name, coverage.Float32, b.varAttributes(v), csName,
			v.Units, v.Description, b.reader, &VarRef{Collection: b.coll, Dataset: b.ds, Group: b.group, Variable: v}))
	}

	return coverage.NewDataset(coverage.DatasetConfig{
		Name:       b.name(),
		Type:       b.typ,
		Attributes: sortedAttributes(b.coll.Attributes),
		Axes:       axes,
		CoordSys:   systems,
		Transforms: transforms,
		Coverages:  coverages,
		Reader:     b.reader,
		Logger:     b.log,
	})
}

func (b *builder) horizontal() ([]*coverage.Axis, []*coverage.Transform, error) {
	h := b.group.Horiz
	switch {
	case h.IsCurvilinear():
		return b.curvilinear()
	case h.LatLon:
		lat, err := coverage.NewAxis(coverage.AxisBuilder{
			Name: "lat", Units: "degrees_north", AxisType: coverage.AxisLat, DataType: coverage.Float32,
			NCoords: h.Ny, Start: h.StartY, End: h.EndY(), Resolution: h.Dy,
		})
		if err != nil {
			return nil, nil, err
		}
		lon, err := coverage.NewAxis(coverage.AxisBuilder{
			Name: "lon", Units: "degrees_east", AxisType: coverage.AxisLon, DataType: coverage.Float32,
			NCoords: h.Nx, Start: h.StartX, End: h.EndX(), Resolution: h.Dx,
		})
		if err != nil {
			return nil, nil, err
		}
		b.horizNames = map[string][]string{"": {"lat", "lon"}}
		return []*coverage.Axis{lat, lon}, nil, nil
	}

	y, err := coverage.NewAxis(coverage.AxisBuilder{
		Name: "y", Units: "km", AxisType: coverage.AxisGeoY, DataType: coverage.Float32,
		Description: "y coordinate of projection",
		NCoords:     h.Ny, Start: h.StartY, End: h.EndY(), Resolution: h.Dy,
	})
	if err != nil {
		return nil, nil, err
	}
	x, err := coverage.NewAxis(coverage.AxisBuilder{
		Name: "x", Units: "km", AxisType: coverage.AxisGeoX, DataType: coverage.Float32,
		Description: "x coordinate of projection",
		NCoords:     h.Nx, Start: h.StartX, End: h.EndX(), Resolution: h.Dx,
	})
	if err != nil {
		return nil, nil, err
	}
	name := cmp.Or(h.ID, h.Projection)
	var params coverage.Attributes
	for _, k := range slices.Sorted(maps.Keys(h.ProjParams)) {
		params = append(params, coverage.Attribute{Name: k, Value: strconv.FormatFloat(h.ProjParams[k], 'g', -1, 64)})
	}
	b.horizNames = map[string][]string{"": {"y", "x"}}
	b.transforms = []string{name}
	return []*coverage.Axis{y, x}, []*coverage.Transform{{Name: name, Kind: h.Projection, Params: params}}, nil
}

// curvilinear pulls the 2D lat/lon fields out of the variables.
func (b *builder) curvilinear() ([]*coverage.Axis, []*coverage.Transform, error) {
	h := b.group.Horiz
	var axes []*coverage.Axis
	b.horizNames = make(map[string][]string)
	for i := range b.group.Variables {
		v := &b.group.Variables[i]
		ll, ok := isLatLon2D(v)
		if !ok {
			continue
		}
		units := "degrees_north"
		if ll.axisType == coverage.AxisLon {
			units = "degrees_east"
		}
		a, err := coverage.NewAxis(coverage.AxisBuilder{
			Name:        ll.name,
			Units:       units,
			Description: v.Description,
			DataType:    coverage.Float32,
			AxisType:    ll.axisType,
			Attributes:  coverage.Attributes{{Name: "stagger", Value: ll.stagger}},
			Dependence:  coverage.TwoD,
			Spacing:     coverage.IrregularPoint,
			Shape:       []int{h.Ny, h.Nx},
			Reader:      b.reader,
			User:        &VarRef{Collection: b.coll, Dataset: b.ds, Group: b.group, Variable: v},
		})
		if err != nil {
			return nil, nil, err
		}
		axes = append(axes, a)
		names := b.horizNames[ll.stagger]
		if names == nil {
			names = make([]string, 2)
		}
		if ll.axisType == coverage.AxisLat {
			names[0] = ll.name
		} else {
			names[1] = ll.name
		}
		b.horizNames[ll.stagger] = names
	}
	for s, names := range b.horizNames {
		if names[0] == "" || names[1] == "" {
			return nil, nil, fmt.Errorf("%w: stagger %s needs both 2D lat and lon", coverage.ErrMissingAxis, s)
		}
	}
	if len(b.horizNames) == 0 {
		return nil, nil, fmt.Errorf("%w: curvilinear grid %s has no 2D lat/lon variables", coverage.ErrMissingAxis, h.ID)
	}
	b.typ = coverage.Curvilinear
	return axes, nil, nil
}

// horizontalNames picks the horizontal axes of v. Curvilinear grids use the
// stagger named by the variable description, falling back to P.
func (b *builder) horizontalNames(v *Variable) []string {
	if names, ok := b.horizNames[""]; ok {
		return names
	}
	stagger := "P"
	desc := strings.ToLower(v.Description)
	switch {
	case strings.Contains(desc, "u-component"):
		stagger = "U"
	case strings.Contains(desc, "v-component"):
		stagger = "V"
	}
	if names, ok := b.horizNames[stagger]; ok {
		return names
	}
	for _, s := range []string{"P", "U", "V"} {
		if names, ok := b.horizNames[s]; ok {
			return names
		}
	}
	return nil
}

// masterUnit is the unit of every runtime axis: master periods since the
// first master run.
func (b *builder) masterUnit() (coverage.TimeUnit, error) {
	return coverage.NewTimeUnit(b.coll.MasterRuntime.Unit, b.coll.masterDates[0])
}

func (b *builder) runtimeCandidate(c *Coordinate) (runtimeCandidate, error) {
	mu, err := b.masterUnit()
	if err != nil {
		return runtimeCandidate{}, err
	}
	dates, err := c.Dates()
	if err != nil {
		return runtimeCandidate{}, fmt.Errorf("runtime %s: %w", c.Name, err)
	}
	values := make([]float64, len(dates))
	for i, d := range dates {
		values[i] = mu.Offset(d)
	}
	return newRuntimeCandidate(c.Name, c.Description, values, b.opts.SpacingTolerance), nil
}

func (b *builder) runtimeAxis(c runtimeCandidate) (*coverage.Axis, error) {
	mu, err := b.masterUnit()
	if err != nil {
		return nil, err
	}
	ab := coverage.AxisBuilder{
		Name:        c.name,
		Units:       mu.String(),
		Description: cmp.Or(c.desc, "GRIB reference time"),
		DataType:    coverage.Float64,
		AxisType:    coverage.AxisRunTime,
		Attributes:  coverage.Attributes{{Name: "standard_name", Value: "forecast_reference_time"}},
		NCoords:     c.npts,
		Start:       c.start,
		End:         c.end,
	}
	switch {
	case c.npts == 1:
		ab.Dependence = coverage.Scalar
	case c.merged:
		ab.Resolution = c.resol
	case !c.regular:
		ab.Spacing = coverage.IrregularPoint
		ab.Values = c.values
	}
	return coverage.NewAxis(ab)
}

// pointSpacing fills in a point coordinate: regular when its modal step
// matches its mean step, irregular otherwise.
func (b *builder) pointSpacing(ab *coverage.AxisBuilder, values []float64) {
	n := len(values)
	ab.NCoords = n
	ab.Start, ab.End = values[0], values[n-1]
	if n == 1 {
		return
	}
	resol := modalStep(values)
	if coverage.CloseEnough(resol, (values[n-1]-values[0])/float64(n-1), b.opts.SpacingTolerance) {
		return
	}
	ab.Spacing = coverage.IrregularPoint
	ab.Resolution = resol
	ab.Values = values
}

// intervalSpacing fills in an interval coordinate as contiguous edges when
// every interval ends where the next one starts, as bound pairs otherwise.
func (b *builder) intervalSpacing(ab *coverage.AxisBuilder, ivs [][2]float64) {
	n := len(ivs)
	ab.NCoords = n
	ab.Resolution = modalWidth(ivs)
	contiguous := true
	for i := range n - 1 {
		if !coverage.CloseEnough(ivs[i][1], ivs[i+1][0], b.opts.SpacingTolerance) {
			contiguous = false
			break
		}
	}
	if contiguous {
		ab.Spacing = coverage.ContiguousInterval
		ab.Values = make([]float64, 0, n+1)
		for _, iv := range ivs {
			ab.Values = append(ab.Values, iv[0])
		}
		ab.Values = append(ab.Values, ivs[n-1][1])
	} else {
		ab.Spacing = coverage.DiscontiguousInterval
		ab.Values = make([]float64, 0, 2*n)
		for _, iv := range ivs {
			ab.Values = append(ab.Values, iv[0], iv[1])
		}
	}
	ab.Start, ab.End = ab.Values[0], ab.Values[len(ab.Values)-1]
}

// timeAxes builds a time axis and, when the coordinate knows the run of each
// time, the dependent runtime axis that drives best-estimate iteration.
func (b *builder) timeAxes(c *Coordinate) ([]*coverage.Axis, error) {
	u, err := c.TimeUnit()
	if err != nil {
		return nil, fmt.Errorf("time %s: %w", c.Name, err)
	}
	ab := coverage.AxisBuilder{
		Name:        c.Name,
		Units:       u.String(),
		Description: cmp.Or(c.Description, "Forecast time"),
		DataType:    coverage.Float64,
		AxisType:    coverage.AxisTime,
		Attributes:  coverage.Attributes{{Name: "standard_name", Value: "time"}},
	}
	if c.Type == CoordTimeIntv {
		b.intervalSpacing(&ab, c.Intervals)
	} else {
		b.pointSpacing(&ab, c.Values)
	}
	a, err := coverage.NewAxis(ab)
	if err != nil {
		return nil, err
	}
	if c.Time2Runtime == nil {
		return []*coverage.Axis{a}, nil
	}

	values := make([]float64, len(c.Time2Runtime))
	for i, k := range c.Time2Runtime {
		if k == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = u.Offset(b.coll.masterDates[k-1])
	}
	name := b.auxName(c)
	run, err := coverage.NewAxis(coverage.AxisBuilder{
		Name:        name,
		Units:       u.String(),
		Description: "GRIB reference time",
		DataType:    coverage.Float64,
		AxisType:    coverage.AxisRunTime,
		Attributes:  coverage.Attributes{{Name: "standard_name", Value: "forecast_reference_time"}},
		Dependence:  coverage.Dependent,
		DependsOn:   []string{c.Name},
		Spacing:     coverage.IrregularPoint,
		NCoords:     len(values),
		Values:      values,
	})
	if err != nil {
		return nil, err
	}
	b.auxNames[c.Name] = name
	return []*coverage.Axis{a, run}, nil
}

// auxName names the runtime axis that depends on time coordinate c: "ref"
// followed by its name, or its name followed by "_ref" when that is taken.
func (b *builder) auxName(c *Coordinate) string {
	name := "ref" + c.Name
	if _, taken := b.group.Coordinate(name); taken {
		name = c.Name + "_ref"
	}
	return name
}

func (b *builder) time2DAxis(t time2DAxis) (*coverage.Axis, error) {
	rt, _ := b.group.Coordinate(t.coord.Runtime)
	dates, err := rt.Dates()
	if err != nil {
		return nil, err
	}
	u, err := coverage.NewTimeUnit(t.coord.Unit, dates[0])
	if err != nil {
		return nil, err
	}
	ab := coverage.AxisBuilder{
		Name:        t.name,
		Units:       u.String(),
		Description: cmp.Or(t.coord.Description, "Forecast offset from reference time"),
		DataType:    coverage.Float64,
		AxisType:    coverage.AxisTimeOffset,
	}
	if t.intervals != nil {
		b.intervalSpacing(&ab, t.intervals)
	} else {
		b.pointSpacing(&ab, t.points)
	}
	return coverage.NewAxis(ab)
}

func vertType(units string) coverage.AxisType {
	switch strings.ToLower(units) {
	case "pa", "hpa", "kpa", "mb", "mbar", "millibar", "bar":
		return coverage.AxisPressure
	case "m", "km", "meter", "meters", "metre", "metres":
		return coverage.AxisHeight
	}
	return coverage.AxisGeoZ
}

func (b *builder) vertAxis(c *Coordinate) (*coverage.Axis, error) {
	positive := "down"
	if c.PositiveUp {
		positive = "up"
	}
	ab := coverage.AxisBuilder{
		Name:        c.Name,
		Units:       c.Unit,
		Description: c.Description,
		DataType:    coverage.Float32,
		AxisType:    vertType(c.Unit),
		Attributes:  coverage.Attributes{{Name: "positive", Value: positive}},
	}
	if c.Intervals != nil {
		b.intervalSpacing(&ab, c.Intervals)
	} else {
		ab.NCoords = len(c.Values)
		ab.Start, ab.End = c.Values[0], c.Values[len(c.Values)-1]
		if len(c.Values) > 1 {
			ab.Spacing = coverage.IrregularPoint
			ab.Values = c.Values
		}
	}
	return coverage.NewAxis(ab)
}

func (b *builder) ensAxis(c *Coordinate) (*coverage.Axis, error) {
	return coverage.NewAxis(coverage.AxisBuilder{
		Name:        c.Name,
		Units:       cmp.Or(c.Unit, "count"),
		Description: cmp.Or(c.Description, "ensemble member"),
		DataType:    coverage.Int32,
		AxisType:    coverage.AxisEnsemble,
		Spacing:     coverage.IrregularPoint,
		NCoords:     len(c.Values),
		Values:      c.Values,
	})
}

// axisNames is the coordinate system of v: its substituted native axes and
// their dependent runtimes ordered runtime, time, ensemble, vertical, then
// the horizontal axes.
func (b *builder) axisNames(v *Variable, acc accumulator) ([]string, error) {
	type entry struct {
		name  string
		order int
	}
	var list []entry
	for _, cn := range v.Coordinates {
		c, ok := b.group.Coordinate(cn)
		if !ok {
			return nil, fmt.Errorf("%w: variable %s names %s", coverage.ErrMissingAxis, v.Name, cn)
		}
		list = append(list, entry{acc.substitute(cn), c.Type.order()})
		if aux, ok := b.auxNames[cn]; ok {
			list = append(list, entry{aux, CoordRuntime.order()})
		}
	}
	slices.SortStableFunc(list, func(a, b entry) int { return cmp.Compare(a.order, b.order) })

	names := make([]string, 0, len(list)+2)
	for _, e := range list {
		if !slices.Contains(names, e.name) {
			names = append(names, e.name)
		}
	}
	horiz := b.horizontalNames(v)
	if horiz == nil {
		return nil, fmt.Errorf("%w: no horizontal axes for %s", coverage.ErrMissingAxis, v.Name)
	}
	return append(names, horiz...), nil
}

func (b *builder) varAttributes(v *Variable) coverage.Attributes {
	atts := coverage.Attributes{
		{Name: "long_name", Value: v.Description},
		{Name: "units", Value: v.Units},
		{Name: "Grib_Variable_Id", Value: v.ID()},
		{Name: "Grib2_Parameter", Value: fmt.Sprintf("%d %d %d", v.Discipline, v.Category, v.Parameter)},
	}
	return append(atts, sortedAttributes(v.Attributes)...)
}

func sortedAttributes(m map[string]string) coverage.Attributes {
	var atts coverage.Attributes
	for _, k := range slices.Sorted(maps.Keys(m)) {
		atts = append(atts, coverage.Attribute{Name: k, Value: m[k]})
	}
	return atts
}
