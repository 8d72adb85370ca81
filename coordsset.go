package coverage

import (
	"fmt"
	"iter"
	"math"
	"strings"
	"time"
)

// Role names one slot of a coordinate tuple.
type Role uint8

const (
	RoleRunDate Role = 1 << iota
	RoleTimeOffset
	RoleTimeOffsetDate
	RoleVert
	RoleEns
)

// Coords is one logical coordinate tuple. Only the roles reported by Has are
// meaningful.
type Coords struct {
	RunDate        time.Time
	TimeOffset     Value
	TimeOffsetDate time.Time
	Vert           Value
	Ens            float64
	set            Role
}

// Has reports whether the tuple carries a value for r.
func (c Coords) Has(r Role) bool { return c.set&r != 0 }

func (c Coords) String() string {
	var parts []string
	if c.Has(RoleRunDate) {
		parts = append(parts, "run="+c.RunDate.Format(time.RFC3339))
	}
	if c.Has(RoleTimeOffset) {
		parts = append(parts, "offset="+c.TimeOffset.String())
	}
	if c.Has(RoleTimeOffsetDate) {
		parts = append(parts, "valid="+c.TimeOffsetDate.Format(time.RFC3339))
	}
	if c.Has(RoleVert) {
		parts = append(parts, "vert="+c.Vert.String())
	}
	if c.Has(RoleEns) {
		parts = append(parts, fmt.Sprintf("ens=%g", c.Ens))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// axisSlot is one axis taking part in tuple generation, with its values
// resolved up front so iteration does no I/O.
type axisSlot struct {
	axis *Axis
	res  *resolved
	dim  int // iteration dimension, -1 for axes without one
}

func (s *axisSlot) index(idx []int) int {
	if s.dim < 0 {
		return 0
	}
	return idx[s.dim]
}

// CoordsSet enumerates the logical coordinate tuples of a coordinate system.
// It holds no external resources; the sequence is restartable and may be
// abandoned at any point.
type CoordsSet struct {
	constantForecast bool
	shape            []int
	names            []string

	run       *axisSlot // independent or scalar RunTime
	runOfTime *axisSlot // RunTime dependent on the time axis (best estimate)
	time      *axisSlot
	offset    *axisSlot
	// offset paired with the run index instead of owning a dimension
	offsetPaired bool
	vert         *axisSlot
	ens          *axisSlot
}

// NewCoordsSet prepares iteration over axes. Horizontal and 2-D axes are left
// to the horizontal ranges. In constant-forecast mode the time offset axis
// values are adjusted to each run date.
func NewCoordsSet(constantForecast bool, axes []*Axis) (*CoordsSet, error) {
	cs := &CoordsSet{constantForecast: constantForecast}

	slot := func(a *Axis) (*axisSlot, error) {
		res, err := a.resolve()
		if err != nil {
			return nil, err
		}
		return &axisSlot{axis: a, res: res, dim: -1}, nil
	}
	assign := func(dst **axisSlot, a *Axis) error {
		if *dst != nil {
			return fmt.Errorf("%w: both %s and %s are %s axes", ErrInvalidAxis, (*dst).axis.name, a.name, a.axisType)
		}
		s, err := slot(a)
		if err != nil {
			return err
		}
		*dst = s
		return nil
	}

	byName := make(map[string]*Axis, len(axes))
	for _, a := range axes {
		byName[a.name] = a
	}

	for _, a := range axes {
		if a.axisType.IsHoriz() || a.dependence == TwoD {
			continue
		}
		var err error
		switch a.axisType {
		case AxisRunTime:
			if a.dependence == Dependent {
				err = assign(&cs.runOfTime, a)
			} else {
				err = assign(&cs.run, a)
			}
		case AxisTime:
			if a.dependence == Dependent {
				continue
			}
			err = assign(&cs.time, a)
		case AxisTimeOffset:
			err = assign(&cs.offset, a)
		case AxisGeoZ, AxisPressure, AxisHeight:
			err = assign(&cs.vert, a)
		case AxisEnsemble:
			err = assign(&cs.ens, a)
		}
		if err != nil {
			return nil, err
		}
		if a.dependence == Independent {
			cs.addDim(a)
		}
	}

	if err := cs.linkDependents(byName); err != nil {
		return nil, err
	}
	if err := cs.validateRunDates(); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *CoordsSet) addDim(a *Axis) {
	cs.shape = append(cs.shape, a.ncoords)
	cs.names = append(cs.names, a.name)
	for _, s := range []*axisSlot{cs.run, cs.time, cs.offset, cs.vert, cs.ens} {
		if s != nil && s.axis == a {
			s.dim = len(cs.shape) - 1
		}
	}
}

// linkDependents places the dependent run and time offset axes.
func (cs *CoordsSet) linkDependents(byName map[string]*Axis) error {
	if r := cs.runOfTime; r != nil {
		if cs.time == nil || !r.axis.dependsOnAxis(cs.time.axis.name) {
			return fmt.Errorf("%w: run axis %s depends on %v, which is not a time axis of this system",
				ErrMissingDependency, r.axis.name, r.axis.dependsOn)
		}
		if r.axis.ncoords != cs.time.axis.ncoords {
			return fmt.Errorf("%w: run axis %s has %d coords for %d times",
				ErrInvalidAxis, r.axis.name, r.axis.ncoords, cs.time.axis.ncoords)
		}
	}

	o := cs.offset
	if o == nil || o.axis.dependence != Dependent {
		return nil
	}
	for _, name := range o.axis.dependsOn {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("%w: time offset axis %s depends on missing axis %s", ErrMissingDependency, o.axis.name, name)
		}
	}
	if cs.run == nil || !o.axis.dependsOnAxis(cs.run.axis.name) {
		return fmt.Errorf("%w: time offset axis %s does not depend on a run axis of this system",
			ErrMissingDependency, o.axis.name)
	}
	switch {
	case o.axis.ncoords == cs.run.axis.ncoords:
		cs.offsetPaired = true
	case cs.run.axis.ncoords == 1:
		// one run: the offsets vary on their own, right after the run dimension
		cs.insertDim(cs.run.dim+1, o)
	default:
		return fmt.Errorf("%w: time offset axis %s has %d coords for %d runs",
			ErrInvalidAxis, o.axis.name, o.axis.ncoords, cs.run.axis.ncoords)
	}
	return nil
}

func (cs *CoordsSet) insertDim(at int, s *axisSlot) {
	for _, other := range []*axisSlot{cs.run, cs.time, cs.vert, cs.ens} {
		if other != nil && other.dim >= at {
			other.dim++
		}
	}
	s.dim = at
	cs.shape = append(cs.shape[:at], append([]int{s.axis.ncoords}, cs.shape[at:]...)...)
	cs.names = append(cs.names[:at], append([]string{s.axis.name}, cs.names[at:]...)...)
}

func (cs *CoordsSet) validateRunDates() error {
	if cs.offset != nil && cs.run == nil {
		return &SubsetError{Axis: cs.offset.axis.name, Reason: "time offsets need a run axis", Err: ErrNoRunDate}
	}
	return nil
}

// ConstantForecast reports whether offsets are adjusted to each run date.
func (cs *CoordsSet) ConstantForecast() bool { return cs.constantForecast }

// Shape is the iteration shape, one entry per dimension.
func (cs *CoordsSet) Shape() []int { return append([]int(nil), cs.shape...) }

// DimNames names the axis behind each dimension.
func (cs *CoordsSet) DimNames() []string { return append([]string(nil), cs.names...) }

// Rank is the number of iteration dimensions.
func (cs *CoordsSet) Rank() int { return len(cs.shape) }

// Size is the number of tuples.
func (cs *CoordsSet) Size() int {
	n := 1
	for _, s := range cs.shape {
		n *= s
	}
	return n
}

// ShapeWith appends the horizontal dimensions to the iteration shape.
func (cs *CoordsSet) ShapeWith(ny, nx int) []int {
	return append(cs.Shape(), ny, nx)
}

// All yields every tuple in row-major order, rightmost dimension fastest. The
// sequence stops at the first error.
func (cs *CoordsSet) All() iter.Seq2[Coords, error] {
	return func(yield func(Coords, error) bool) {
		idx := make([]int, len(cs.shape))
		for _, n := range cs.shape {
			if n == 0 {
				return
			}
		}
		for {
			c, err := cs.At(idx)
			if !yield(c, err) || err != nil {
				return
			}
			i := len(idx) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < cs.shape[i] {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// At computes the tuple at a multi-index of the iteration shape.
func (cs *CoordsSet) At(idx []int) (Coords, error) {
	if len(idx) != len(cs.shape) {
		return Coords{}, fmt.Errorf("index rank %d, want %d", len(idx), len(cs.shape))
	}
	var c Coords

	var run time.Time
	hasRun := false
	runIdx := 0
	if cs.run != nil {
		runIdx = cs.run.index(idx)
		v := cs.run.res.points[runIdx]
		if math.IsNaN(v) {
			return Coords{}, &SubsetError{Axis: cs.run.axis.name, Reason: fmt.Sprintf("missing run date at %d", runIdx), Err: ErrNoRunDate}
		}
		run, hasRun = cs.run.axis.timeUnit.MakeDate(v), true
	}

	if t := cs.time; t != nil {
		ti := t.index(idx)
		tv := t.res.value(ti)
		u := t.axis.timeUnit
		if r := cs.runOfTime; r != nil {
			rv := r.res.points[ti]
			if math.IsNaN(rv) {
				return Coords{}, &SubsetError{Axis: t.axis.name, Reason: fmt.Sprintf("no run date for time %s", tv), Err: ErrNoRunDate}
			}
			run, hasRun = r.axis.timeUnit.MakeDate(rv), true
		}
		if hasRun {
			c.TimeOffset = tv.Shift(u.OffsetBetween(run, u.Ref))
		} else {
			c.TimeOffset = tv
		}
		c.TimeOffsetDate = u.MakeDate(tv.Mid())
		c.set |= RoleTimeOffset | RoleTimeOffsetDate
	}

	if o := cs.offset; o != nil {
		oi := o.index(idx)
		if cs.offsetPaired {
			oi = runIdx
		}
		ov := o.res.value(oi)
		u := o.axis.timeUnit
		if cs.constantForecast {
			ov = ov.Shift(u.OffsetBetween(run, u.Ref))
		}
		c.TimeOffset = ov
		c.TimeOffsetDate = u.MakeDateFrom(run, ov.Mid())
		c.set |= RoleTimeOffset | RoleTimeOffsetDate
	}

	if hasRun {
		c.RunDate = run
		c.set |= RoleRunDate
	}
	if v := cs.vert; v != nil {
		c.Vert = v.res.value(v.index(idx))
		c.set |= RoleVert
	}
	if e := cs.ens; e != nil {
		c.Ens = e.res.points[e.index(idx)]
		c.set |= RoleEns
	}
	return c, nil
}
