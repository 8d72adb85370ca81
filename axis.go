package coverage

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// AxisReader materializes coordinate values that were not supplied when the
// axis was built, such as 2-D lat/lon fields.
type AxisReader interface {
	ReadCoordValues(axis *Axis) ([]float64, error)
}

// AxisBuilder collects the attributes of an axis. NewAxis validates it.
type AxisBuilder struct {
	Name        string
	Units       string
	Description string
	DataType    DataType
	AxisType    AxisType
	Attributes  Attributes
	Dependence  DependenceType
	DependsOn   []string
	Spacing     Spacing
	NCoords     int
	Start       float64
	End         float64
	Resolution  float64

	// Values is the explicit representation: n points, n+1 edges or 2n bounds
	// depending on Spacing. Optional for Regular spacing, or when Reader is set.
	Values []float64

	// Shape is the horizontal grid shape (ny, nx) of a TwoD axis.
	Shape []int

	Reader AxisReader
	User   any
}

// Axis is one coordinate axis. It is immutable once built, apart from being
// attached to its owning Dataset exactly once.
type Axis struct {
	name       string
	units      string
	desc       string
	dataType   DataType
	axisType   AxisType
	atts       Attributes
	dependence DependenceType
	dependsOn  []string
	spacing    Spacing
	ncoords    int
	start      float64
	end        float64
	resol      float64
	values     []float64
	shape      []int
	reader     AxisReader
	user       any

	timeUnit    TimeUnit
	hasTimeUnit bool

	// indices into the unsubset axis, nil when this axis is not a subset
	indices []int
	baseN   int

	owner *Dataset

	// mu guards res; failed resolutions are not cached so a later call retries.
	mu  sync.Mutex
	res *resolved
}

// NewAxis validates b and returns the axis it describes.
func NewAxis(b AxisBuilder) (*Axis, error) {
	return newAxis(b, nil, 0)
}

func newAxis(b AxisBuilder, indices []int, baseN int) (*Axis, error) {
	if b.Name == "" {
		return nil, fmt.Errorf("%w: axis has no name", ErrInvalidAxis)
	}
	if b.Dependence == TwoD {
		if len(b.Shape) != 2 || b.Shape[0] < 1 || b.Shape[1] < 1 {
			return nil, fmt.Errorf("%w: 2D axis %s needs a (ny, nx) shape, got %v", ErrInvalidAxis, b.Name, b.Shape)
		}
		if b.NCoords == 0 {
			b.NCoords = b.Shape[0] * b.Shape[1]
		}
		if b.NCoords != b.Shape[0]*b.Shape[1] {
			return nil, fmt.Errorf("%w: 2D axis %s has %d coords for shape %v", ErrInvalidAxis, b.Name, b.NCoords, b.Shape)
		}
	}
	if b.NCoords < 1 {
		return nil, fmt.Errorf("%w: axis %s has %d coordinates", ErrInvalidAxis, b.Name, b.NCoords)
	}
	if b.Dependence == Dependent && len(b.DependsOn) == 0 {
		return nil, fmt.Errorf("%w: dependent axis %s names no independent axis", ErrInvalidAxis, b.Name)
	}
	if b.Dependence == Scalar && b.NCoords != 1 {
		return nil, fmt.Errorf("%w: scalar axis %s has %d coordinates", ErrInvalidAxis, b.Name, b.NCoords)
	}

	if b.Values != nil {
		if want := b.Spacing.valueCount(b.NCoords); len(b.Values) != want {
			return nil, fmt.Errorf("%w: axis %s (%s, n=%d) needs %d values, got %d",
				ErrInvalidAxis, b.Name, b.Spacing, b.NCoords, want, len(b.Values))
		}
		if b.Start == 0 && b.End == 0 {
			b.Start, b.End = valueSpan(b.Values)
		}
	} else if (b.Spacing != Regular || b.Dependence == TwoD) && b.Reader == nil {
		return nil, fmt.Errorf("%w: %s axis %s has neither values nor a reader", ErrInvalidAxis, b.Spacing, b.Name)
	}

	if b.Spacing == Regular && b.Values == nil && b.Dependence != TwoD {
		if b.NCoords > 1 && b.Resolution == 0 {
			b.Resolution = (b.End - b.Start) / float64(b.NCoords-1)
		}
		if b.NCoords > 1 && !CloseEnough(b.Start+float64(b.NCoords-1)*b.Resolution, b.End, SpacingTolerance) {
			return nil, fmt.Errorf("%w: regular axis %s: start %v + %d*%v does not reach end %v",
				ErrInvalidAxis, b.Name, b.Start, b.NCoords-1, b.Resolution, b.End)
		}
	}

	a := &Axis{
		name:       b.Name,
		units:      b.Units,
		desc:       b.Description,
		dataType:   b.DataType,
		axisType:   b.AxisType,
		atts:       slices.Clone(b.Attributes),
		dependence: b.Dependence,
		dependsOn:  slices.Clone(b.DependsOn),
		spacing:    b.Spacing,
		ncoords:    b.NCoords,
		start:      b.Start,
		end:        b.End,
		resol:      b.Resolution,
		values:     slices.Clone(b.Values),
		shape:      slices.Clone(b.Shape),
		reader:     b.Reader,
		user:       b.User,
		indices:    indices,
		baseN:      baseN,
	}
	if a.baseN == 0 {
		a.baseN = a.ncoords
	}

	if b.AxisType.IsTime() {
		u, err := ParseTimeUnit(b.Units)
		if err != nil {
			return nil, fmt.Errorf("%w: time axis %s: %w", ErrInvalidAxis, b.Name, err)
		}
		a.timeUnit, a.hasTimeUnit = u, true
	}
	return a, nil
}

// valueSpan returns the first and last non-NaN values.
func valueSpan(values []float64) (float64, float64) {
	first, last := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(first) {
			first = v
		}
		last = v
	}
	if math.IsNaN(first) {
		return 0, 0
	}
	return first, last
}

func (a *Axis) Name() string                { return a.name }
func (a *Axis) Units() string               { return a.units }
func (a *Axis) Description() string         { return a.desc }
func (a *Axis) DataType() DataType          { return a.dataType }
func (a *Axis) AxisType() AxisType          { return a.axisType }
func (a *Axis) Attributes() Attributes      { return a.atts }
func (a *Axis) Dependence() DependenceType  { return a.dependence }
func (a *Axis) DependsOn() []string         { return slices.Clone(a.dependsOn) }
func (a *Axis) Spacing() Spacing            { return a.spacing }
func (a *Axis) NCoords() int                { return a.ncoords }
func (a *Axis) Start() float64              { return a.start }
func (a *Axis) End() float64                { return a.end }
func (a *Axis) Resolution() float64         { return a.resol }
func (a *Axis) User() any                   { return a.user }
func (a *Axis) IsScalar() bool              { return a.dependence == Scalar }
func (a *Axis) IsInterval() bool            { return a.spacing.IsInterval() }
func (a *Axis) IsSubset() bool              { return a.indices != nil }
func (a *Axis) TimeUnit() (TimeUnit, bool)  { return a.timeUnit, a.hasTimeUnit }
func (a *Axis) dependsOnAxis(n string) bool { return slices.Contains(a.dependsOn, n) }

// RefDate is the reference date of a time axis' unit.
func (a *Axis) RefDate() time.Time {
	return a.timeUnit.Ref
}

// Shape is (ny, nx) for a 2-D axis and (n) otherwise.
func (a *Axis) Shape() []int {
	if a.dependence == TwoD {
		return slices.Clone(a.shape)
	}
	return []int{a.ncoords}
}

// Indices returns, for each coordinate, its index in the axis this one was
// subset from. An axis that is not a subset returns 0..n-1.
func (a *Axis) Indices() []int {
	if a.indices != nil {
		return slices.Clone(a.indices)
	}
	idx := make([]int, a.ncoords)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Driver returns the first axis this dependent axis depends on, looked up in
// the owning dataset.
func (a *Axis) Driver() (*Axis, bool) {
	if a.owner == nil || len(a.dependsOn) == 0 {
		return nil, false
	}
	return a.owner.FindAxis(a.dependsOn[0])
}

func (a *Axis) attach(d *Dataset) error {
	if a.owner != nil {
		return fmt.Errorf("%w: axis %s already belongs to dataset %s", ErrImmutable, a.name, a.owner.name)
	}
	a.owner = d
	return nil
}

func (a *Axis) builder() AxisBuilder {
	return AxisBuilder{
		Name:        a.name,
		Units:       a.units,
		Description: a.desc,
		DataType:    a.dataType,
		AxisType:    a.axisType,
		Attributes:  a.atts,
		Dependence:  a.dependence,
		DependsOn:   a.dependsOn,
		Spacing:     a.spacing,
		NCoords:     a.ncoords,
		Start:       a.start,
		End:         a.end,
		Resolution:  a.resol,
		Values:      a.values,
		Shape:       a.shape,
		Reader:      a.reader,
		User:        a.user,
	}
}

// clone returns a detached copy of a.
func (a *Axis) clone() *Axis {
	c, err := newAxis(a.builder(), a.indices, a.baseN)
	if err != nil {
		// a was validated by the same rules
		panic(fmt.Sprintf("coverage: clone of valid axis %s failed: %v", a.name, err))
	}
	return c
}

// Value is one coordinate: a point, or an interval when Interval is set.
type Value struct {
	Lo       float64
	Hi       float64
	Interval bool
}

// PointValue makes a point coordinate.
func PointValue(v float64) Value { return Value{Lo: v, Hi: v} }

// IntervalValue makes an interval coordinate.
func IntervalValue(lo, hi float64) Value { return Value{Lo: lo, Hi: hi, Interval: true} }

// Mid is the point value or interval midpoint.
func (v Value) Mid() float64 {
	if !v.Interval {
		return v.Lo
	}
	return (v.Lo + v.Hi) / 2
}

// Shift moves both bounds by d.
func (v Value) Shift(d float64) Value {
	v.Lo += d
	v.Hi += d
	return v
}

// Equal compares two coordinates within the stored-value tolerance.
func (v Value) Equal(o Value) bool {
	if v.Interval != o.Interval {
		return false
	}
	return SameValue(v.Lo, o.Lo) && SameValue(v.Hi, o.Hi)
}

func (v Value) String() string {
	if v.Interval {
		return fmt.Sprintf("[%g, %g]", v.Lo, v.Hi)
	}
	return fmt.Sprintf("%g", v.Lo)
}

// resolved is the materialized coordinate representation of an axis.
type resolved struct {
	raw    []float64
	points []float64
	bounds [][2]float64
}

func (r *resolved) value(i int) Value {
	if r.bounds != nil {
		return IntervalValue(r.bounds[i][0], r.bounds[i][1])
	}
	return PointValue(r.points[i])
}

func (a *Axis) resolve() (*resolved, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.res != nil {
		return a.res, nil
	}
	res, err := a.materialize()
	if err != nil {
		return nil, err
	}
	a.res = res
	return res, nil
}

func (a *Axis) materialize() (*resolved, error) {
	raw := a.values
	if raw == nil {
		switch {
		case a.spacing == Regular && a.dependence != TwoD:
			raw = make([]float64, a.ncoords)
			for i := range raw {
				raw[i] = a.start + float64(i)*a.resol
			}
		case a.reader != nil:
			vals, err := a.reader.ReadCoordValues(a)
			if err != nil {
				return nil, fmt.Errorf("failed to read values of axis %s: %w", a.name, err)
			}
			if want := a.spacing.valueCount(a.ncoords); len(vals) != want {
				return nil, fmt.Errorf("%w: reader returned %d values for axis %s, want %d", ErrInvalidAxis, len(vals), a.name, want)
			}
			raw = vals
		default:
			return nil, fmt.Errorf("%w: axis %s has no values", ErrNoReader, a.name)
		}
	}

	r := &resolved{raw: raw}
	switch a.spacing {
	case ContiguousInterval:
		r.bounds = make([][2]float64, a.ncoords)
		for i := range r.bounds {
			r.bounds[i] = [2]float64{raw[i], raw[i+1]}
		}
	case DiscontiguousInterval:
		r.bounds = make([][2]float64, a.ncoords)
		for i := range r.bounds {
			r.bounds[i] = [2]float64{raw[2*i], raw[2*i+1]}
		}
	default:
		r.points = raw
	}
	if r.bounds != nil {
		r.points = make([]float64, a.ncoords)
		for i, b := range r.bounds {
			r.points[i] = (b[0] + b[1]) / 2
		}
	}
	return r, nil
}

// Values returns the raw value representation: n points, n+1 edges or 2n
// bounds depending on spacing.
func (a *Axis) Values() ([]float64, error) {
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.raw), nil
}

// Coords returns one value per coordinate, using midpoints for intervals.
func (a *Axis) Coords() ([]float64, error) {
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.points), nil
}

// Bounds returns the (lo, hi) pair of each coordinate of an interval axis.
func (a *Axis) Bounds() ([][2]float64, error) {
	if !a.IsInterval() {
		return nil, fmt.Errorf("%w: axis %s is not an interval axis", ErrInvalidAxis, a.name)
	}
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.bounds), nil
}

// Coord returns coordinate i.
func (a *Axis) Coord(i int) (Value, error) {
	if i < 0 || i >= a.ncoords {
		return Value{}, fmt.Errorf("coordinate %d out of range for axis %s (n=%d)", i, a.name, a.ncoords)
	}
	r, err := a.resolve()
	if err != nil {
		return Value{}, err
	}
	return r.value(i), nil
}

// Dates converts the coordinates of a time axis to dates.
func (a *Axis) Dates() ([]time.Time, error) {
	if !a.hasTimeUnit {
		return nil, fmt.Errorf("%w: axis %s is not a time axis", ErrInvalidAxis, a.name)
	}
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(r.points))
	for i, v := range r.points {
		if math.IsNaN(v) {
			continue
		}
		dates[i] = a.timeUnit.MakeDate(v)
	}
	return dates, nil
}

// DateRange is the span of dates covered by a time axis.
func (a *Axis) DateRange() (DateRange, bool) {
	if !a.hasTimeUnit || math.IsNaN(a.start) || math.IsNaN(a.end) {
		return DateRange{}, false
	}
	lo, hi := math.Min(a.start, a.end), math.Max(a.start, a.end)
	return DateRange{Start: a.timeUnit.MakeDate(lo), End: a.timeUnit.MakeDate(hi)}, true
}
