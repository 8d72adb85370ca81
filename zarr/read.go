package zarr

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/TuSKan/coverage"
	"github.com/TuSKan/coverage/collection"
	"github.com/TuSKan/coverage/metrics"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"golang.org/x/sync/errgroup"
)

// ReadData reads cov over the coordinates selected by params. The result has
// the shape of the subset coordinate set followed by the selected (ny, nx);
// tuples with no stored record are NaN.
func (s *Store) ReadData(ctx context.Context, cov *coverage.Coverage, params coverage.SubsetParams) (arr *coverage.GeoReferencedArray, err error) {
	began := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.DataReadsTotal.WithLabelValues(status).Inc()
		metrics.DataReadDuration.Observe(time.Since(began).Seconds())
	}()

	ref, ok := cov.User().(*collection.VarRef)
	if !ok {
		return nil, fmt.Errorf("%w: coverage %s has no stored variable", coverage.ErrNoReader, cov.Name())
	}
	cs := cov.CoordSys()
	if cs == nil {
		return nil, fmt.Errorf("%w: coverage %s", coverage.ErrMissingCoordSys, cov.Name())
	}
	sub, err := cs.Subset(params)
	if err != nil {
		return nil, err
	}
	set, err := sub.CoordsSet()
	if err != nil {
		return nil, err
	}
	a, err := s.varArray(ctx, ref)
	if err != nil {
		return nil, err
	}
	idx, err := newIndexer(ref)
	if err != nil {
		return nil, err
	}

	yr, xr := sub.HorizCoordSys().Ranges()
	ny, nx := yr.Len(), xr.Len()
	ySpan, xSpan := yr.Last-yr.First+1, xr.Last-xr.First+1
	plane := ny * nx
	shape := set.ShapeWith(ny, nx)
	data := make([]float32, set.Size()*plane)

	rank := len(a.Shape())
	region := make([]int, rank)
	for i := range region {
		region[i] = 1
	}
	region[rank-2], region[rank-1] = ySpan, xSpan

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	k, missing := 0, 0
	for c, err := range set.All() {
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		out := data[k*plane : (k+1)*plane]
		k++
		native, ok := idx.native(c)
		if !ok {
			for i := range out {
				out[i] = float32(math.NaN())
			}
			missing++
			continue
		}
		g.Go(func() error {
			start := append(native, yr.First, xr.First)
			slab, err := a.ReadRegion(gctx, start, region)
			if err != nil {
				return fmt.Errorf("coverage %s at %s: %w", cov.Name(), c, err)
			}
			for j := range ny {
				row := (yr.Index(j) - yr.First) * xSpan
				for i := range nx {
					out[j*nx+i] = slab[row+xr.Index(i)-xr.First]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if missing > 0 {
		metrics.MissingRecordsTotal.Add(float64(missing))
		s.log.Debug("records missing", "coverage", cov.Name(), "missing", missing, "total", k)
	}
	s.log.Debug("coverage read", "coverage", cov.Name(), "shape", shape, "duration", time.Since(began))

	return &coverage.GeoReferencedArray{
		CoverageName: cov.Name(),
		DataType:     coverage.Float32,
		Data:         tensors.FromFlatDataAndDimensions(data, shape...),
		Shape:        shape,
		CoordSys:     sub,
	}, nil
}

// lookup finds stored values, allowing a quarter of their smallest spacing.
type lookup struct {
	values []float64
	tol    float64
}

func newLookup(values []float64) lookup {
	sorted := slices.Sorted(slices.Values(values))
	step := math.Inf(1)
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i] - sorted[i-1]; d > 0 {
			step = min(step, d)
		}
	}
	tol := 1e-6
	if !math.IsInf(step, 1) {
		tol = step / 4
	}
	return lookup{values: values, tol: tol}
}

func (l lookup) find(target float64) (int, bool) {
	best, bestD := -1, l.tol
	for i, v := range l.values {
		if d := math.Abs(v - target); d <= bestD {
			best, bestD = i, d
		}
	}
	return best, best >= 0
}

// intervalLookup matches both bounds of an interval.
type intervalLookup struct {
	lo, hi lookup
	ivs    [][2]float64
}

func newIntervalLookup(ivs [][2]float64) intervalLookup {
	los := make([]float64, len(ivs))
	his := make([]float64, len(ivs))
	for i, iv := range ivs {
		los[i], his[i] = iv[0], iv[1]
	}
	return intervalLookup{lo: newLookup(los), hi: newLookup(his), ivs: ivs}
}

func (l intervalLookup) find(v coverage.Value) (int, bool) {
	for i, iv := range l.ivs {
		if math.Abs(iv[0]-v.Lo) <= l.lo.tol && math.Abs(iv[1]-v.Hi) <= l.hi.tol {
			return i, true
		}
	}
	return -1, false
}

func midpoints(ivs [][2]float64) []float64 {
	out := make([]float64, len(ivs))
	for i, iv := range ivs {
		out[i] = (iv[0] + iv[1]) / 2
	}
	return out
}

func dateLookup(dates []time.Time) lookup {
	secs := make([]float64, len(dates))
	for i, d := range dates {
		secs[i] = float64(d.UnixMilli()) / 1000
	}
	return newLookup(secs)
}

func findDate(l lookup, t time.Time) (int, bool) {
	return l.find(float64(t.UnixMilli()) / 1000)
}

// matcher maps a coordinate tuple onto the index of one native dimension.
type matcher func(c coverage.Coords) (int, bool)

// indexer maps coordinate tuples onto the native indices of a variable.
type indexer struct {
	matchers []matcher
}

func newIndexer(ref *collection.VarRef) (*indexer, error) {
	g := ref.Group
	idx := &indexer{}
	for _, name := range ref.Variable.Coordinates {
		nc, ok := g.Coordinate(name)
		if !ok {
			return nil, fmt.Errorf("%w: variable %s names %s", coverage.ErrMissingAxis, ref.Variable.Name, name)
		}
		m, err := newMatcher(g, nc)
		if err != nil {
			return nil, fmt.Errorf("coordinate %s: %w", name, err)
		}
		idx.matchers = append(idx.matchers, m)
	}
	return idx, nil
}

func (idx *indexer) native(c coverage.Coords) ([]int, bool) {
	out := make([]int, len(idx.matchers), len(idx.matchers)+2)
	for i, m := range idx.matchers {
		j, ok := m(c)
		if !ok {
			return nil, false
		}
		out[i] = j
	}
	return out, true
}

// only matches the single record of a coordinate the tuple does not carry.
func only(n int) (int, bool) { return 0, n == 1 }

func newMatcher(g *collection.Group, nc *collection.Coordinate) (matcher, error) {
	n := nc.Size()
	switch nc.Type {
	case collection.CoordRuntime:
		dates, err := nc.Dates()
		if err != nil {
			return nil, err
		}
		l := dateLookup(dates)
		return func(c coverage.Coords) (int, bool) {
			if !c.Has(coverage.RoleRunDate) {
				return only(n)
			}
			return findDate(l, c.RunDate)
		}, nil

	case collection.CoordTime, collection.CoordTimeIntv:
		u, err := nc.TimeUnit()
		if err != nil {
			return nil, err
		}
		values := nc.Values
		if nc.Type == collection.CoordTimeIntv {
			values = midpoints(nc.Intervals)
		}
		l := newLookup(values)
		return func(c coverage.Coords) (int, bool) {
			if !c.Has(coverage.RoleTimeOffsetDate) {
				return only(n)
			}
			return l.find(u.Offset(c.TimeOffsetDate))
		}, nil

	case collection.CoordTime2D:
		rt, ok := g.Coordinate(nc.Runtime)
		if !ok {
			return nil, fmt.Errorf("%w: runtime %s", coverage.ErrMissingAxis, nc.Runtime)
		}
		dates, err := rt.Dates()
		if err != nil {
			return nil, err
		}
		runs := dateLookup(dates)
		if nc.Offsets != nil {
			perRun := make([]lookup, len(nc.Offsets))
			for i, offs := range nc.Offsets {
				perRun[i] = newLookup(offs)
			}
			return func(c coverage.Coords) (int, bool) {
				ri, ok := findDate(runs, c.RunDate)
				if !ok || !c.Has(coverage.RoleTimeOffset) {
					return -1, false
				}
				return perRun[ri].find(c.TimeOffset.Mid())
			}, nil
		}
		perRun := make([]intervalLookup, len(nc.OffsetIntervals))
		for i, offs := range nc.OffsetIntervals {
			perRun[i] = newIntervalLookup(offs)
		}
		return func(c coverage.Coords) (int, bool) {
			ri, ok := findDate(runs, c.RunDate)
			if !ok || !c.Has(coverage.RoleTimeOffset) {
				return -1, false
			}
			return perRun[ri].find(c.TimeOffset)
		}, nil

	case collection.CoordVert:
		if nc.Intervals != nil {
			l := newIntervalLookup(nc.Intervals)
			return func(c coverage.Coords) (int, bool) {
				if !c.Has(coverage.RoleVert) {
					return only(n)
				}
				return l.find(c.Vert)
			}, nil
		}
		l := newLookup(nc.Values)
		return func(c coverage.Coords) (int, bool) {
			if !c.Has(coverage.RoleVert) {
				return only(n)
			}
			return l.find(c.Vert.Mid())
		}, nil

	case collection.CoordEns:
		l := newLookup(nc.Values)
		return func(c coverage.Coords) (int, bool) {
			if !c.Has(coverage.RoleEns) {
				return only(n)
			}
			return l.find(c.Ens)
		}, nil
	}
	return nil, fmt.Errorf("unknown coordinate type %q", nc.Type)
}
