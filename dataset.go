package coverage

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
)

// Releaser hands a dataset's file resources back to a cache instead of
// closing them.
type Releaser interface {
	Release() error
}

// DatasetConfig lists everything a dataset owns before wiring.
type DatasetConfig struct {
	Name       string
	Type       CoordSysType
	Attributes Attributes
	Axes       []*Axis
	CoordSys   []*CoordSys
	Transforms []*Transform
	Coverages  []*Coverage
	Reader     Reader
	// Cache, when set, receives the dataset on Close instead of Reader.
	Cache  Releaser
	Logger *slog.Logger
}

// Dataset owns a set of axes, the coordinate systems built from them, their
// transforms and the coverages defined over them. A Dataset returned by
// NewDataset is fully wired and safe for concurrent reads.
type Dataset struct {
	name string
	typ  CoordSysType
	atts Attributes

	axes       []*Axis
	coordSys   []*CoordSys
	transforms []*Transform
	coverages  []*Coverage

	axisMap      map[string]*Axis
	coordSysMap  map[string]*CoordSys // lower-cased names, aliases included
	transformMap map[string]*Transform
	coverageMap  map[string]*Coverage

	hcs          *HorizCoordSys
	dateRange    DateRange
	hasDateRange bool

	reader Reader
	cache  Releaser

	closeOnce sync.Once
	closeErr  error
}

// NewDataset wires cfg into a dataset. It fails without publishing anything
// when a coverage names a missing coordinate system, a coordinate system
// names a missing axis, or a dependent axis depends on an axis outside its
// coordinate system.
func NewDataset(cfg DatasetConfig) (*Dataset, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	d := &Dataset{
		name:         cfg.Name,
		typ:          cfg.Type,
		atts:         slices.Clone(cfg.Attributes),
		axes:         slices.Clone(cfg.Axes),
		transforms:   slices.Clone(cfg.Transforms),
		coverages:    slices.Clone(cfg.Coverages),
		axisMap:      make(map[string]*Axis, len(cfg.Axes)),
		coordSysMap:  make(map[string]*CoordSys, len(cfg.CoordSys)),
		transformMap: make(map[string]*Transform, len(cfg.Transforms)),
		coverageMap:  make(map[string]*Coverage, len(cfg.Coverages)),
		reader:       cfg.Reader,
		cache:        cfg.Cache,
	}

	for _, a := range d.axes {
		if _, dup := d.axisMap[a.name]; dup {
			return nil, fmt.Errorf("%w: duplicate axis name %s in dataset %s", ErrInvalidAxis, a.name, d.name)
		}
		if a.owner != nil {
			return nil, fmt.Errorf("%w: axis %s already belongs to dataset %s", ErrImmutable, a.name, a.owner.name)
		}
		d.axisMap[a.name] = a
	}
	for _, t := range d.transforms {
		d.transformMap[t.Name] = t
	}

	// systems with the same ordered axes collapse onto the first one declared
	byKey := make(map[string]*CoordSys, len(cfg.CoordSys))
	for _, cs := range cfg.CoordSys {
		if cs.immutable {
			return nil, fmt.Errorf("%w: coordinate system %s is already wired", ErrImmutable, cs.name)
		}
		canon, seen := byKey[cs.key()]
		if !seen {
			byKey[cs.key()] = cs
			canon = cs
			d.coordSys = append(d.coordSys, cs)
		} else {
			logger.Debug("coordinate system deduplicated", "name", cs.name, "into", canon.name)
		}
		d.coordSysMap[strings.ToLower(cs.name)] = canon
	}

	groups := make(map[*CoordSys][]*Coverage, len(d.coordSys))
	for _, c := range d.coverages {
		if _, dup := d.coverageMap[c.name]; dup {
			return nil, fmt.Errorf("duplicate coverage name %s in dataset %s", c.name, d.name)
		}
		d.coverageMap[c.name] = c
		cs, ok := d.coordSysMap[strings.ToLower(c.coordSysName)]
		if !ok {
			return nil, fmt.Errorf("%w: coverage %s names %q", ErrMissingCoordSys, c.name, c.coordSysName)
		}
		if c.coordSys != nil {
			return nil, fmt.Errorf("%w: coverage %s already wired to %s", ErrImmutable, c.name, c.coordSys.name)
		}
		groups[cs] = append(groups[cs], c)
	}

	for _, cs := range d.coordSys {
		if err := cs.wire(d.lookupAxis, d.FindTransform); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(d.coordSys, func(a, b *CoordSys) int { return cmp.Compare(a.name, b.name) })

	if len(d.coordSys) > 0 {
		first := d.coordSys[0]
		var transform *Transform
		if len(first.transforms) > 0 {
			transform = first.transforms[0]
		}
		hcs, err := NewHorizCoordSys(first.axes, transform)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: coordinate system %s: %w", d.name, first.name, err)
		}
		for _, cs := range d.coordSys {
			if err := hcs.check(cs); err != nil {
				return nil, err
			}
			if err := cs.SetHorizCoordSys(hcs); err != nil {
				return nil, err
			}
		}
		d.hcs = hcs
	}

	// publish the back-references
	for _, cs := range d.coordSys {
		for _, c := range groups[cs] {
			if err := c.setCoordSys(cs); err != nil {
				return nil, err
			}
		}
		cs.setImmutable()
	}
	for _, a := range d.axes {
		if err := a.attach(d); err != nil {
			return nil, err
		}
	}

	d.computeDateRange()
	logger.Debug("dataset wired", "name", d.name, "axes", len(d.axes), "coordSys", len(d.coordSys), "coverages", len(d.coverages))
	return d, nil
}

func (d *Dataset) lookupAxis(name string) (*Axis, bool) {
	a, ok := d.axisMap[name]
	return a, ok
}

func (d *Dataset) computeDateRange() {
	for _, a := range d.axes {
		if !a.axisType.IsTime() || a.axisType == AxisTimeOffset && a.dependence == Dependent {
			continue
		}
		if math.IsNaN(a.start) || math.IsNaN(a.end) {
			continue
		}
		r, ok := a.DateRange()
		if a.axisType == AxisTimeOffset {
			r, ok = d.offsetDateRange(a)
		}
		if !ok {
			continue
		}
		if !d.hasDateRange {
			d.dateRange, d.hasDateRange = r, true
			continue
		}
		d.dateRange = d.dateRange.Union(r)
	}
}

// offsetDateRange spans the offsets of a from its unit reference date,
// extended to the last run when the runs share the axis.
func (d *Dataset) offsetDateRange(a *Axis) (DateRange, bool) {
	r, ok := a.DateRange()
	if !ok {
		return r, false
	}
	span := r.End.Sub(r.Start)
	lead := r.Start.Sub(a.timeUnit.Ref)
	for _, run := range d.axes {
		if run.axisType != AxisRunTime || run.dependence == Dependent {
			continue
		}
		rr, ok := run.DateRange()
		if !ok {
			continue
		}
		r = r.Union(DateRange{Start: rr.Start.Add(lead), End: rr.End.Add(lead + span)})
	}
	return r, true
}

func (d *Dataset) Name() string                  { return d.name }
func (d *Dataset) Type() CoordSysType            { return d.typ }
func (d *Dataset) Attributes() Attributes        { return d.atts }
func (d *Dataset) Axes() []*Axis                 { return slices.Clone(d.axes) }
func (d *Dataset) CoordSystems() []*CoordSys     { return slices.Clone(d.coordSys) }
func (d *Dataset) Transforms() []*Transform      { return slices.Clone(d.transforms) }
func (d *Dataset) Coverages() []*Coverage        { return slices.Clone(d.coverages) }
func (d *Dataset) HorizCoordSys() *HorizCoordSys { return d.hcs }
func (d *Dataset) Reader() Reader                { return d.reader }

// DateRange is the union of the date ranges of the time-bearing axes.
func (d *Dataset) DateRange() (DateRange, bool) { return d.dateRange, d.hasDateRange }

// FindAxis looks an axis up by name.
func (d *Dataset) FindAxis(name string) (*Axis, bool) { return d.lookupAxis(name) }

// FindCoverage looks a coverage up by name.
func (d *Dataset) FindCoverage(name string) (*Coverage, bool) {
	c, ok := d.coverageMap[name]
	return c, ok
}

// FindCoverageByAttribute returns the first coverage whose attribute
// attName has the string value value.
func (d *Dataset) FindCoverageByAttribute(attName, value string) (*Coverage, bool) {
	for _, c := range d.coverages {
		if a, ok := c.atts.FindIgnoreCase(attName); ok && fmt.Sprint(a.Value) == value {
			return c, true
		}
	}
	return nil, false
}

// FindCoordSys looks a coordinate system up by name, ignoring case.
func (d *Dataset) FindCoordSys(name string) (*CoordSys, bool) {
	cs, ok := d.coordSysMap[strings.ToLower(name)]
	return cs, ok
}

// FindTransform looks a transform up by name.
func (d *Dataset) FindTransform(name string) (*Transform, bool) {
	t, ok := d.transformMap[name]
	return t, ok
}

// RuntimeAxisMax is the independent run axis with the most coordinates.
func (d *Dataset) RuntimeAxisMax() (*Axis, bool) {
	var best *Axis
	for _, a := range d.axes {
		if a.axisType != AxisRunTime || a.dependence == Dependent {
			continue
		}
		if best == nil || a.ncoords > best.ncoords {
			best = a
		}
	}
	return best, best != nil
}

// Location names the storage behind the dataset.
func (d *Dataset) Location() string {
	if d.reader == nil {
		return ""
	}
	return d.reader.Location()
}

// Close releases the dataset to its cache, or closes its reader. Only the
// first call has an effect.
func (d *Dataset) Close() error {
	d.closeOnce.Do(func() {
		switch {
		case d.cache != nil:
			d.closeErr = d.cache.Release()
		case d.reader != nil:
			d.closeErr = d.reader.Close()
		}
	})
	return d.closeErr
}
