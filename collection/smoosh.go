package collection

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/TuSKan/coverage"
	"gonum.org/v1/gonum/stat"
)

// runtimeCandidate is a runtime coordinate waiting to be smooshed. Values are
// offsets in master runtime periods since the first master run.
type runtimeCandidate struct {
	name    string
	desc    string
	values  []float64
	start   float64
	end     float64
	resol   float64 // modal step
	npts    int
	regular bool
	merged  bool
}

func newRuntimeCandidate(name, desc string, values []float64, spacingTol float64) runtimeCandidate {
	n := len(values)
	c := runtimeCandidate{
		name:   name,
		desc:   desc,
		values: values,
		start:  values[0],
		end:    values[n-1],
		resol:  modalStep(values),
		npts:   n,
	}
	c.regular = n == 1 || coverage.CloseEnough(c.resol, (c.end-c.start)/float64(n-1), spacingTol)
	return c
}

// closeEnough is the smoosh equivalence: span, start, end and point count
// within tol of the span, and an identical modal resolution.
func (c runtimeCandidate) closeEnough(o runtimeCandidate, tol float64) bool {
	if c.resol != o.resol {
		return false
	}
	total := c.end - c.start
	if total == 0 {
		return o.end == o.start && c.start == o.start && c.npts == o.npts
	}
	if !coverage.CloseEnough(total, o.end-o.start, tol) {
		return false
	}
	if math.Abs(c.start-o.start)/total > tol || math.Abs(c.end-o.end)/total > tol {
		return false
	}
	return math.Abs(float64(c.npts-o.npts))/float64(max(c.npts, o.npts)) <= tol
}

// time2DAxis is the collapsed form of a time2D coordinate: the distinct
// offsets of every run, sorted.
type time2DAxis struct {
	name      string
	coord     *Coordinate
	points    []float64
	intervals [][2]float64
}

func newTime2DAxis(c *Coordinate) time2DAxis {
	t := time2DAxis{name: c.Name, coord: c}
	if c.Offsets != nil {
		for _, offs := range c.Offsets {
			t.points = append(t.points, offs...)
		}
		slices.Sort(t.points)
		t.points = slices.Compact(t.points)
		return t
	}
	for _, offs := range c.OffsetIntervals {
		t.intervals = append(t.intervals, offs...)
	}
	slices.SortFunc(t.intervals, func(a, b [2]float64) int {
		return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
	})
	t.intervals = slices.Compact(t.intervals)
	return t
}

// key identifies the offset set; identical sets share one axis.
func (t time2DAxis) key() string {
	var b strings.Builder
	if t.intervals != nil {
		b.WriteString("intv")
		for _, iv := range t.intervals {
			fmt.Fprintf(&b, " %g-%g", iv[0], iv[1])
		}
		return b.String()
	}
	b.WriteString("pts")
	for _, v := range t.points {
		fmt.Fprintf(&b, " %g", v)
	}
	return b.String()
}

// accumulator carries the runtime and time2D axes of one build until every
// coordinate of the group has been seen, along with the name substitutions
// produced by merging them.
type accumulator struct {
	runtimes []runtimeCandidate
	time2D   []time2DAxis
	keys     map[string]string
	subst    map[string]string
	merges   int
}

func newAccumulator() accumulator {
	return accumulator{keys: make(map[string]string), subst: make(map[string]string)}
}

func (acc accumulator) withRuntime(c runtimeCandidate) accumulator {
	acc.runtimes = append(acc.runtimes, c)
	return acc
}

// withTime2D keeps t unless an axis with the same offsets was already seen, in
// which case t's name is substituted by the first one.
func (acc accumulator) withTime2D(t time2DAxis) accumulator {
	k := t.key()
	if first, ok := acc.keys[k]; ok {
		acc.subst[t.name] = first
		return acc
	}
	acc.keys[k] = t.name
	acc.time2D = append(acc.time2D, t)
	return acc
}

// substitute returns the name that replaces name, or name itself.
func (acc accumulator) substitute(name string) string {
	if s, ok := acc.subst[name]; ok {
		return s
	}
	return name
}

// smoosh merges runtime candidates that are close enough into one regular
// axis named after the first candidate of each group. Equivalence is closed
// transitively, so the merged start, end and resolution do not depend on the
// order the candidates were seen in.
func smoosh(acc accumulator, tol float64) accumulator {
	n := len(acc.runtimes)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range n {
		for j := range i {
			if !acc.runtimes[i].closeEnough(acc.runtimes[j], tol) {
				continue
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				parent[max(ri, rj)] = min(ri, rj)
			}
		}
	}

	groups := make(map[int][]int, n)
	for i := range n {
		r := find(i)
		groups[r] = append(groups[r], i)
	}

	var out []runtimeCandidate
	for i := range n {
		members, ok := groups[i]
		if !ok {
			continue
		}
		rep := acc.runtimes[i]
		if len(members) == 1 {
			out = append(out, rep)
			continue
		}
		start, end := rep.start, rep.end
		for _, m := range members[1:] {
			o := acc.runtimes[m]
			start, end = math.Min(start, o.start), math.Max(end, o.end)
			acc.subst[o.name] = rep.name
			acc.merges++
		}
		npts := rep.npts
		if end > start {
			npts = int(math.Round((end-start)/rep.resol)) + 1
		}
		out = append(out, runtimeCandidate{
			name:    rep.name,
			desc:    rep.desc,
			start:   start,
			end:     start + float64(npts-1)*rep.resol,
			resol:   rep.resol,
			npts:    npts,
			regular: true,
			merged:  true,
		})
	}
	acc.runtimes = out
	return acc
}

// modalStep is the most common difference between consecutive values, or 0
// for a single value.
func modalStep(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	diffs := make([]float64, len(values)-1)
	for i := range diffs {
		diffs[i] = values[i+1] - values[i]
	}
	slices.Sort(diffs)
	mode, _ := stat.Mode(diffs, nil)
	return mode
}

// modalWidth is the most common interval width.
func modalWidth(ivs [][2]float64) float64 {
	widths := make([]float64, len(ivs))
	for i, iv := range ivs {
		widths[i] = iv[1] - iv[0]
	}
	slices.Sort(widths)
	mode, _ := stat.Mode(widths, nil)
	return mode
}
