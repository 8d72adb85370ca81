package coverage

import (
	"fmt"
	"math"
	"time"
)

// Subset returns a new axis holding the coordinates selected by params. Axes
// whose kind has no matching parameter, and dependent and 2-D axes, are
// returned as detached copies. A scalar axis is copied when its one coordinate
// satisfies params and is an empty subset otherwise.
func (a *Axis) Subset(params SubsetParams) (*Axis, error) {
	if a.dependence == Scalar {
		if err := a.matchScalar(params); err != nil {
			return nil, err
		}
		return a.clone(), nil
	}
	if a.dependence != Independent {
		return a.clone(), nil
	}

	switch a.axisType {
	case AxisRunTime:
		switch {
		case params.RuntimeLatest:
			i, err := a.latest()
			if err != nil {
				return nil, err
			}
			return a.subsetIndices([]int{i})
		case !params.Runtime.IsZero():
			return a.subsetNearestDate(params.Runtime)
		}

	case AxisTime:
		switch {
		case !params.Time.IsZero():
			return a.subsetNearestDate(params.Time)
		case params.TimeRange != nil:
			lo, hi := a.timeUnit.Offset(params.TimeRange.Start), a.timeUnit.Offset(params.TimeRange.End)
			return a.subsetRange(lo, hi, params.TimeStride)
		case params.TimeStride > 1:
			return a.subsetStride(params.TimeStride)
		}

	case AxisTimeOffset:
		switch {
		case params.TimeOffset != nil:
			return a.subsetNearest(*params.TimeOffset)
		case params.TimeStride > 1:
			return a.subsetStride(params.TimeStride)
		}

	case AxisGeoZ, AxisPressure, AxisHeight:
		if params.Vertical != nil {
			return a.subsetNearest(*params.Vertical)
		}

	case AxisEnsemble:
		if params.Ensemble != nil {
			return a.subsetNearest(*params.Ensemble)
		}

	case AxisLat:
		if params.LatLonBB != nil {
			return a.subsetRange(params.LatLonBB.South, params.LatLonBB.North, params.HorizStride)
		}
		return a.subsetStride(params.HorizStride)

	case AxisLon:
		if params.LatLonBB != nil {
			return a.subsetRange(params.LatLonBB.West, params.LatLonBB.East, params.HorizStride)
		}
		return a.subsetStride(params.HorizStride)

	case AxisGeoY:
		if params.ProjBB != nil {
			return a.subsetRange(params.ProjBB.MinY, params.ProjBB.MaxY, params.HorizStride)
		}
		return a.subsetStride(params.HorizStride)

	case AxisGeoX:
		if params.ProjBB != nil {
			return a.subsetRange(params.ProjBB.MinX, params.ProjBB.MaxX, params.HorizStride)
		}
		return a.subsetStride(params.HorizStride)
	}
	return a.clone(), nil
}

// matchScalar checks the request for a's kind against its single coordinate.
func (a *Axis) matchScalar(params SubsetParams) error {
	var target *float64
	switch a.axisType {
	case AxisRunTime:
		if !params.Runtime.IsZero() {
			v := a.timeUnit.Offset(params.Runtime)
			target = &v
		}
	case AxisTime:
		switch {
		case !params.Time.IsZero():
			v := a.timeUnit.Offset(params.Time)
			target = &v
		case params.TimeRange != nil:
			_, err := a.subsetRange(a.timeUnit.Offset(params.TimeRange.Start), a.timeUnit.Offset(params.TimeRange.End), 0)
			return err
		}
	case AxisTimeOffset:
		target = params.TimeOffset
	case AxisGeoZ, AxisPressure, AxisHeight:
		target = params.Vertical
	case AxisEnsemble:
		target = params.Ensemble
	}
	if target == nil {
		return nil
	}
	_, err := a.FindNearest(*target)
	return err
}

// SubsetDependent restricts a dependent axis to the coordinates selected on
// from, one of the axes it depends on. A dependent axis with one value per
// driver coordinate follows the driver's selection; any other dependent axis
// is conditioned on a single driver coordinate already and is copied.
func (a *Axis) SubsetDependent(from *Axis) (*Axis, error) {
	if a.dependence != Dependent {
		return nil, fmt.Errorf("%w: axis %s is %s, not dependent", ErrInvalidAxis, a.name, a.dependence)
	}
	if !a.dependsOnAxis(from.name) {
		return nil, fmt.Errorf("%w: axis %s does not depend on %s", ErrMissingDependency, a.name, from.name)
	}
	if !from.IsSubset() || a.IsSubset() || a.ncoords != from.baseN {
		return a.clone(), nil
	}
	return a.subsetIndices(from.indices)
}

// rebase shifts every coordinate by delta and makes the axis dependent on
// driver.
func (a *Axis) rebase(delta float64, driver string) (*Axis, error) {
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	b := a.builder()
	b.Dependence = Dependent
	b.DependsOn = []string{driver}
	b.Start += delta
	b.End += delta
	if a.values != nil || a.spacing != Regular {
		b.Values = make([]float64, len(r.raw))
		for i, v := range r.raw {
			b.Values[i] = v + delta
		}
	}
	return newAxis(b, a.indices, a.baseN)
}

// latest is the index of the largest coordinate.
func (a *Axis) latest() (int, error) {
	r, err := a.resolve()
	if err != nil {
		return 0, err
	}
	best := -1
	for i, v := range r.points {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > r.points[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, emptySubset(a.name, "no valid coordinates")
	}
	return best, nil
}

func (a *Axis) subsetNearestDate(t time.Time) (*Axis, error) {
	return a.subsetNearest(a.timeUnit.Offset(t))
}

func (a *Axis) subsetNearest(target float64) (*Axis, error) {
	i, err := a.FindNearest(target)
	if err != nil {
		return nil, err
	}
	return a.subsetIndices([]int{i})
}

// FindNearest returns the coordinate index closest to target: the containing
// interval for interval axes, else the nearest point. A target outside the
// axis span, extended by half a step, is a subset error.
func (a *Axis) FindNearest(target float64) (int, error) {
	if math.IsNaN(target) {
		return 0, badParam(a.name, "NaN coordinate")
	}
	if a.spacing == Regular && a.values == nil && a.dependence != TwoD && a.ncoords > 1 {
		f := (target - a.start) / a.resol
		limit := float64(a.ncoords) - 0.5
		if f < -0.5-valueTolerance || f > limit+valueTolerance {
			return 0, emptySubset(a.name, "%g is outside [%g, %g]", target, a.start, a.end)
		}
		i := int(math.Round(f))
		return max(0, min(a.ncoords-1, i)), nil
	}

	r, err := a.resolve()
	if err != nil {
		return 0, err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	ext := 0.0
	if r.bounds != nil {
		for i, b := range r.bounds {
			blo, bhi := math.Min(b[0], b[1]), math.Max(b[0], b[1])
			if (target >= blo || SameValue(target, blo)) && (target <= bhi || SameValue(target, bhi)) {
				return i, nil
			}
			lo, hi = math.Min(lo, blo), math.Max(hi, bhi)
		}
	} else {
		valid := 0
		for _, v := range r.points {
			if math.IsNaN(v) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			valid++
		}
		if valid > 1 {
			ext = (hi - lo) / float64(valid-1) / 2
		}
	}
	inside := (target >= lo-ext || SameValue(target, lo-ext)) && (target <= hi+ext || SameValue(target, hi+ext))
	if !inside {
		return 0, emptySubset(a.name, "%g is outside [%g, %g]", target, lo, hi)
	}

	best, bestDist := -1, math.Inf(1)
	for i, v := range r.points {
		if d := math.Abs(v - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, emptySubset(a.name, "no valid coordinates")
	}
	return best, nil
}

// subsetRange keeps the coordinates that intersect [lo, hi], then every
// stride-th of those.
func (a *Axis) subsetRange(lo, hi float64, stride int) (*Axis, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	var idx []int
	for i := range a.ncoords {
		v := r.value(i)
		vlo, vhi := math.Min(v.Lo, v.Hi), math.Max(v.Lo, v.Hi)
		if math.IsNaN(vlo) {
			continue
		}
		if (vhi >= lo || SameValue(vhi, lo)) && (vlo <= hi || SameValue(vlo, hi)) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, emptySubset(a.name, "no coordinate in [%g, %g]", lo, hi)
	}
	return a.subsetIndices(strided(idx, stride))
}

func (a *Axis) subsetStride(stride int) (*Axis, error) {
	if stride <= 1 {
		return a.clone(), nil
	}
	idx := make([]int, a.ncoords)
	for i := range idx {
		idx[i] = i
	}
	return a.subsetIndices(strided(idx, stride))
}

func strided(idx []int, stride int) []int {
	if stride <= 1 {
		return idx
	}
	out := make([]int, 0, (len(idx)+stride-1)/stride)
	for i := 0; i < len(idx); i += stride {
		out = append(out, idx[i])
	}
	return out
}

// evenStride reports the common step between consecutive indices.
func evenStride(idx []int) (int, bool) {
	if len(idx) < 2 {
		return 1, true
	}
	step := idx[1] - idx[0]
	if step <= 0 {
		return 0, false
	}
	for i := 2; i < len(idx); i++ {
		if idx[i]-idx[i-1] != step {
			return 0, false
		}
	}
	return step, true
}

// subsetIndices builds the axis made of the coordinates at idx, which must be
// increasing and in range.
func (a *Axis) subsetIndices(idx []int) (*Axis, error) {
	if len(idx) == 0 {
		return nil, emptySubset(a.name, "no coordinates selected")
	}
	r, err := a.resolve()
	if err != nil {
		return nil, err
	}
	n := len(idx)
	step, even := evenStride(idx)

	b := a.builder()
	b.NCoords = n
	b.Values = nil
	b.Reader = nil

	switch a.spacing {
	case Regular, IrregularPoint:
		first, last := r.points[idx[0]], r.points[idx[n-1]]
		switch {
		case a.spacing == Regular && even:
			b.Start, b.End = first, last
			b.Resolution = a.resol * float64(step)
			if a.values != nil {
				b.Values = pick(r.points, idx)
			}
		default:
			b.Spacing = IrregularPoint
			b.Values = pick(r.points, idx)
			b.Start, b.End = first, last
			b.Resolution = 0
			if n > 1 {
				b.Resolution = (last - first) / float64(n-1)
			}
		}

	case ContiguousInterval, DiscontiguousInterval:
		if a.spacing == ContiguousInterval && even && step == 1 {
			b.Values = make([]float64, 0, n+1)
			for _, i := range idx {
				b.Values = append(b.Values, r.bounds[i][0])
			}
			b.Values = append(b.Values, r.bounds[idx[n-1]][1])
		} else {
			b.Spacing = DiscontiguousInterval
			b.Values = make([]float64, 0, 2*n)
			for _, i := range idx {
				b.Values = append(b.Values, r.bounds[i][0], r.bounds[i][1])
			}
		}
		b.Start, b.End = r.bounds[idx[0]][0], r.bounds[idx[n-1]][1]
		b.Resolution = 0
		if n > 1 {
			b.Resolution = (r.points[idx[n-1]] - r.points[idx[0]]) / float64(n-1)
		}
	}

	if n == 1 && a.dependence == Independent && a.spacing == Regular {
		b.Resolution = a.resol
	}

	base := make([]int, n)
	for k, i := range idx {
		if a.indices != nil {
			base[k] = a.indices[i]
		} else {
			base[k] = i
		}
	}
	return newAxis(b, base, a.baseN)
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}
