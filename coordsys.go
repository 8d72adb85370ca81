package coverage

import (
	"fmt"
	"slices"
	"strings"
)

// Transform describes a horizontal projection by name and parameters.
type Transform struct {
	Name   string
	Kind   string
	Params Attributes
}

// CoordSys is an ordered, named list of axes shared by one or more coverages.
// Its axes are resolved by name when the owning dataset is wired, after which
// it is immutable.
type CoordSys struct {
	name           string
	typ            CoordSysType
	axisNames      []string
	transformNames []string

	axes       []*Axis
	transforms []*Transform
	hcs        *HorizCoordSys

	constantForecast bool
	immutable        bool
}

// NewCoordSys declares a coordinate system by axis and transform names.
func NewCoordSys(name string, typ CoordSysType, axisNames, transformNames []string) *CoordSys {
	return &CoordSys{
		name:           name,
		typ:            typ,
		axisNames:      slices.Clone(axisNames),
		transformNames: slices.Clone(transformNames),
	}
}

func (cs *CoordSys) Name() string             { return cs.name }
func (cs *CoordSys) Type() CoordSysType       { return cs.typ }
func (cs *CoordSys) AxisNames() []string      { return slices.Clone(cs.axisNames) }
func (cs *CoordSys) TransformNames() []string { return slices.Clone(cs.transformNames) }
func (cs *CoordSys) Axes() []*Axis            { return slices.Clone(cs.axes) }
func (cs *CoordSys) Transforms() []*Transform { return slices.Clone(cs.transforms) }

// HorizCoordSys is the horizontal system shared with the rest of the dataset.
func (cs *CoordSys) HorizCoordSys() *HorizCoordSys { return cs.hcs }

// IsConstantForecast reports whether this system is a single-run view whose
// time offsets are relative to that run.
func (cs *CoordSys) IsConstantForecast() bool { return cs.constantForecast }

// key identifies systems with the same ordered axes.
func (cs *CoordSys) key() string { return strings.Join(cs.axisNames, " ") }

// Axis finds a member axis by name.
func (cs *CoordSys) Axis(name string) (*Axis, bool) {
	for _, a := range cs.axes {
		if a.name == name {
			return a, true
		}
	}
	return nil, false
}

// AxisOfType finds the first member axis of kind t.
func (cs *CoordSys) AxisOfType(t AxisType) (*Axis, bool) {
	for _, a := range cs.axes {
		if a.axisType == t {
			return a, true
		}
	}
	return nil, false
}

// SetHorizCoordSys shares h with this system. It fails once the system is
// wired.
func (cs *CoordSys) SetHorizCoordSys(h *HorizCoordSys) error {
	if cs.immutable {
		return fmt.Errorf("%w: coordinate system %s", ErrImmutable, cs.name)
	}
	cs.hcs = h
	return nil
}

func (cs *CoordSys) wire(axes func(string) (*Axis, bool), transforms func(string) (*Transform, bool)) error {
	if cs.immutable {
		return fmt.Errorf("%w: coordinate system %s", ErrImmutable, cs.name)
	}
	resolvedAxes := make([]*Axis, 0, len(cs.axisNames))
	for _, name := range cs.axisNames {
		a, ok := axes(name)
		if !ok {
			return fmt.Errorf("%w: %s in coordinate system %s", ErrMissingAxis, name, cs.name)
		}
		resolvedAxes = append(resolvedAxes, a)
	}
	for _, a := range resolvedAxes {
		if a.dependence != Dependent {
			continue
		}
		for _, dep := range a.dependsOn {
			if !slices.Contains(cs.axisNames, dep) {
				return fmt.Errorf("%w: %s depends on %s, not in coordinate system %s", ErrMissingDependency, a.name, dep, cs.name)
			}
		}
	}
	resolvedTransforms := make([]*Transform, 0, len(cs.transformNames))
	for _, name := range cs.transformNames {
		t, ok := transforms(name)
		if !ok {
			return fmt.Errorf("%w: transform %s in coordinate system %s", ErrMissingAxis, name, cs.name)
		}
		resolvedTransforms = append(resolvedTransforms, t)
	}
	cs.axes = resolvedAxes
	cs.transforms = resolvedTransforms
	return nil
}

func (cs *CoordSys) setImmutable() { cs.immutable = true }

// CoordsSet prepares iteration over the non-horizontal axes of the system.
func (cs *CoordSys) CoordsSet() (*CoordsSet, error) {
	return NewCoordsSet(cs.constantForecast, cs.axes)
}

// Subset selects coordinates on every axis and returns a new, immutable
// system. Selecting one run of a forecast-model-run collection yields a
// constant-forecast view.
func (cs *CoordSys) Subset(params SubsetParams) (*CoordSys, error) {
	out := make([]*Axis, len(cs.axes))
	byName := make(map[string]*Axis, len(cs.axes))
	offsetAt := -1

	for i, a := range cs.axes {
		if a.axisType.IsHoriz() || a.dependence == Dependent || a.dependence == TwoD {
			continue
		}
		if a.axisType == AxisTimeOffset {
			offsetAt = i
			continue
		}
		s, err := a.Subset(params)
		if err != nil {
			return nil, err
		}
		out[i] = s
		byName[a.name] = s
	}

	constantForecast := cs.constantForecast
	if offsetAt >= 0 {
		off, cf, err := cs.subsetOffset(cs.axes[offsetAt], params, byName)
		if err != nil {
			return nil, err
		}
		out[offsetAt] = off
		byName[off.name] = off
		constantForecast = constantForecast || cf
	}

	for i, a := range cs.axes {
		if a.dependence != Dependent || out[i] != nil {
			continue
		}
		driver, ok := byName[a.dependsOn[0]]
		if !ok {
			return nil, fmt.Errorf("%w: %s depends on %s, not in coordinate system %s", ErrMissingDependency, a.name, a.dependsOn[0], cs.name)
		}
		s, err := a.SubsetDependent(driver)
		if err != nil {
			return nil, err
		}
		out[i] = s
		byName[a.name] = s
	}

	hcs := cs.hcs
	if hcs != nil {
		var err error
		if hcs, err = hcs.Subset(params); err != nil {
			return nil, err
		}
		for _, h := range hcs.Axes() {
			if i := slices.Index(cs.axisNames, h.name); i >= 0 {
				out[i] = h
			}
		}
	}
	for i, a := range out {
		if a == nil {
			out[i] = cs.axes[i]
		}
	}

	return &CoordSys{
		name:             cs.name,
		typ:              cs.typ,
		axisNames:        cs.axisNames,
		transformNames:   cs.transformNames,
		axes:             out,
		transforms:       cs.transforms,
		hcs:              hcs,
		constantForecast: constantForecast,
		immutable:        true,
	}, nil
}

// subsetOffset selects on a time offset axis. When the run axis has been
// reduced to one run, offsets are selected relative to that run and the axis
// is rebased onto it.
func (cs *CoordSys) subsetOffset(off *Axis, params SubsetParams, subset map[string]*Axis) (*Axis, bool, error) {
	var run *Axis
	for _, a := range subset {
		if a.axisType == AxisRunTime && a.dependence != Dependent {
			run = a
			break
		}
	}
	timeRequested := !params.Time.IsZero() || params.TimeRange != nil
	if off.dependence == Dependent || run == nil || run.ncoords != 1 {
		if timeRequested && off.dependence == Independent {
			return nil, false, badParam(ParamTime, "valid time needs a single runtime on %s", cs.name)
		}
		s, err := off.Subset(params)
		return s, false, err
	}

	runVal, err := run.Coord(0)
	if err != nil {
		return nil, false, err
	}
	runDate := run.timeUnit.MakeDate(runVal.Mid())
	u := off.timeUnit

	var sel *Axis
	switch {
	case params.TimeOffset != nil:
		sel, err = off.subsetNearest(*params.TimeOffset)
	case !params.Time.IsZero():
		sel, err = off.subsetNearest(u.OffsetBetween(runDate, params.Time))
	case params.TimeRange != nil:
		lo := u.OffsetBetween(runDate, params.TimeRange.Start)
		hi := u.OffsetBetween(runDate, params.TimeRange.End)
		sel, err = off.subsetRange(lo, hi, params.TimeStride)
	default:
		sel, err = off.subsetStride(params.TimeStride)
	}
	if err != nil {
		return nil, false, err
	}
	rebased, err := sel.rebase(u.OffsetBetween(u.Ref, runDate), run.name)
	if err != nil {
		return nil, false, err
	}
	return rebased, true, nil
}

func (cs *CoordSys) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CoordSys %q type=%s", cs.name, cs.typ)
	if cs.constantForecast {
		b.WriteString(" constantForecast")
	}
	b.WriteString("\n")
	for _, a := range cs.axes {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	for _, t := range cs.transforms {
		fmt.Fprintf(&b, "  transform %s (%s)\n", t.Name, t.Kind)
	}
	if cs.hcs != nil {
		fmt.Fprintf(&b, "  horiz %s\n", cs.hcs)
	}
	return b.String()
}
