// Package collection reads the native index of a gridded collection and
// builds coverage datasets from it.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/TuSKan/coverage"
)

// ErrInvalidCollection reports a malformed collection index.
var ErrInvalidCollection = errors.New("invalid collection")

// DatasetType is the kind of view a collection dataset offers.
type DatasetType string

const (
	SRC   DatasetType = "SRC"   // single runtime
	MRC   DatasetType = "MRC"   // multiple runtimes
	MRSTC DatasetType = "MRSTC" // multiple runtimes, single time coordinate
	TP    DatasetType = "TP"    // time partitioned
	TwoD  DatasetType = "TwoD"
	Best  DatasetType = "Best"
)

// IsFmrc reports whether the dataset spans several forecast runs.
func (t DatasetType) IsFmrc() bool {
	switch t {
	case MRC, MRSTC, TP, TwoD:
		return true
	}
	return false
}

func (t DatasetType) valid() bool {
	return t == SRC || t == Best || t.IsFmrc()
}

// CoordType tags a native coordinate.
type CoordType string

const (
	CoordRuntime  CoordType = "runtime"
	CoordTime     CoordType = "time"
	CoordTimeIntv CoordType = "timeIntv"
	CoordTime2D   CoordType = "time2D"
	CoordVert     CoordType = "vert"
	CoordEns      CoordType = "ens"
)

// order is the position of the coordinate type in a coordinate system name.
func (t CoordType) order() int {
	switch t {
	case CoordRuntime:
		return 0
	case CoordTime, CoordTimeIntv, CoordTime2D:
		return 1
	case CoordEns:
		return 2
	case CoordVert:
		return 3
	}
	return 4
}

// Coordinate is one native coordinate of a group.
//
// Time coordinates (runtime, time, timeIntv, time2D) hold offsets in Unit
// periods since RefDate. Time2Runtime, when present, gives for each time value
// the 1-based index of the master runtime that produced it; 0 means none.
type Coordinate struct {
	Type        CoordType `json:"type"`
	Name        string    `json:"name"`
	Unit        string    `json:"unit,omitempty"`
	RefDate     string    `json:"refDate,omitempty"`
	Description string    `json:"description,omitempty"`

	Values    []float64    `json:"values,omitempty"`
	Intervals [][2]float64 `json:"intervals,omitempty"`

	Time2Runtime []int `json:"time2runtime,omitempty"`

	// time2D: the runtime coordinate and the offsets of every run, relative
	// to that run.
	Runtime         string         `json:"runtime,omitempty"`
	Offsets         [][]float64    `json:"offsets,omitempty"`
	OffsetIntervals [][][2]float64 `json:"offsetIntervals,omitempty"`

	PositiveUp bool `json:"positiveUp,omitempty"`

	ref time.Time
}

// Size is the number of native values.
func (c *Coordinate) Size() int {
	switch {
	case c.Type == CoordTime2D && c.Offsets != nil:
		return len(c.Offsets)
	case c.Type == CoordTime2D:
		return len(c.OffsetIntervals)
	case c.Intervals != nil:
		return len(c.Intervals)
	}
	return len(c.Values)
}

// IsInterval reports whether the coordinate holds intervals.
func (c *Coordinate) IsInterval() bool {
	return c.Intervals != nil || c.OffsetIntervals != nil
}

// TimeUnit is the unit of a time coordinate.
func (c *Coordinate) TimeUnit() (coverage.TimeUnit, error) {
	return coverage.NewTimeUnit(c.Unit, c.ref)
}

// Dates are the run dates of a runtime coordinate.
func (c *Coordinate) Dates() ([]time.Time, error) {
	u, err := c.TimeUnit()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(c.Values))
	for i, v := range c.Values {
		out[i] = u.MakeDate(v)
	}
	return out, nil
}

// HorizGrid describes the horizontal grid of a group. Regular lat/lon grids
// set LatLon; projected grids name a Projection. Template 204 without LatLon
// marks a curvilinear grid whose 2D lat/lon fields are variables.
type HorizGrid struct {
	ID         string             `json:"id"`
	Template   int                `json:"template"`
	LatLon     bool               `json:"latlon"`
	Nx         int                `json:"nx"`
	Ny         int                `json:"ny"`
	StartX     float64            `json:"startx"`
	StartY     float64            `json:"starty"`
	Dx         float64            `json:"dx"`
	Dy         float64            `json:"dy"`
	Projection string             `json:"projection,omitempty"`
	ProjParams map[string]float64 `json:"projParams,omitempty"`
}

// IsCurvilinear reports a grid given by 2D lat/lon fields.
func (h HorizGrid) IsCurvilinear() bool { return h.Template == curvilinearTemplate && !h.LatLon }

// EndX is the last x coordinate.
func (h HorizGrid) EndX() float64 { return h.StartX + float64(h.Nx-1)*h.Dx }

// EndY is the last y coordinate.
func (h HorizGrid) EndY() float64 { return h.StartY + float64(h.Ny-1)*h.Dy }

// Variable is one stored data variable. Coordinates lists its native
// coordinates in storage order; the array at Path has those dimensions
// followed by y and x.
type Variable struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Units       string            `json:"units,omitempty"`
	Discipline  int               `json:"discipline"`
	Category    int               `json:"category"`
	Parameter   int               `json:"parameter"`
	Level       string            `json:"level,omitempty"`
	Coordinates []string          `json:"coordinates"`
	Path        string            `json:"path"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ID is the discipline-category-parameter triple of the variable.
func (v *Variable) ID() string {
	id := fmt.Sprintf("VAR_%d-%d-%d", v.Discipline, v.Category, v.Parameter)
	if v.Level != "" {
		id += "_" + v.Level
	}
	return id
}

// Group is a set of variables sharing one horizontal grid.
type Group struct {
	ID          string       `json:"id"`
	Horiz       HorizGrid    `json:"horiz"`
	Coordinates []Coordinate `json:"coordinates"`
	Variables   []Variable   `json:"variables"`
}

// Coordinate finds a native coordinate by name.
func (g *Group) Coordinate(name string) (*Coordinate, bool) {
	for i := range g.Coordinates {
		if g.Coordinates[i].Name == name {
			return &g.Coordinates[i], true
		}
	}
	return nil, false
}

// Dataset is one view of the collection.
type Dataset struct {
	Type   DatasetType `json:"type"`
	Groups []Group     `json:"groups"`
}

// Collection is the native index of a gridded collection.
type Collection struct {
	Name          string            `json:"name"`
	MasterRuntime Coordinate        `json:"masterRuntime"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Datasets      []Dataset         `json:"datasets"`

	masterDates []time.Time
}

// MasterDates are the dates of every run in the collection.
func (c *Collection) MasterDates() []time.Time { return slices.Clone(c.masterDates) }

// Load decodes and validates a collection index.
func Load(r io.Reader) (*Collection, error) {
	var c Collection
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCollection, fmt.Sprintf(format, args...))
}

// Validate checks the index and resolves its reference dates.
func (c *Collection) Validate() error {
	if c.Name == "" {
		return invalid("collection has no name")
	}
	m := &c.MasterRuntime
	if m.Type == "" {
		m.Type = CoordRuntime
	}
	if m.Type != CoordRuntime {
		return invalid("master runtime has type %s", m.Type)
	}
	if err := m.validateTime(); err != nil {
		return fmt.Errorf("master runtime: %w", err)
	}
	if len(m.Values) == 0 {
		return invalid("master runtime is empty")
	}
	dates, err := m.Dates()
	if err != nil {
		return invalid("master runtime: %v", err)
	}
	c.masterDates = dates
	if len(c.Datasets) == 0 {
		return invalid("collection %s has no datasets", c.Name)
	}

	for i := range c.Datasets {
		ds := &c.Datasets[i]
		if !ds.Type.valid() {
			return invalid("dataset %d has unknown type %q", i, ds.Type)
		}
		if len(ds.Groups) == 0 {
			return invalid("dataset %s has no groups", ds.Type)
		}
		ids := make(map[string]bool, len(ds.Groups))
		for j := range ds.Groups {
			g := &ds.Groups[j]
			if ids[g.ID] {
				return invalid("dataset %s: duplicate group %q", ds.Type, g.ID)
			}
			ids[g.ID] = true
			if err := g.validate(len(m.Values)); err != nil {
				return fmt.Errorf("dataset %s group %s: %w", ds.Type, g.ID, err)
			}
		}
	}
	return nil
}

func (g *Group) validate(nruns int) error {
	h := g.Horiz
	if h.Nx < 1 || h.Ny < 1 {
		return invalid("horizontal grid %dx%d", h.Ny, h.Nx)
	}
	if !h.IsCurvilinear() && ((h.Nx > 1 && h.Dx == 0) || (h.Ny > 1 && h.Dy == 0)) {
		return invalid("horizontal grid has zero spacing")
	}
	if !h.LatLon && !h.IsCurvilinear() && h.Projection == "" {
		return invalid("projected grid has no projection name")
	}

	names := make(map[string]bool, len(g.Coordinates))
	for i := range g.Coordinates {
		c := &g.Coordinates[i]
		if c.Name == "" {
			return invalid("coordinate %d has no name", i)
		}
		if names[c.Name] {
			return invalid("duplicate coordinate %s", c.Name)
		}
		names[c.Name] = true
		if err := c.validate(g, nruns); err != nil {
			return fmt.Errorf("coordinate %s: %w", c.Name, err)
		}
	}

	vars := make(map[string]bool, len(g.Variables))
	for _, v := range g.Variables {
		if v.Name == "" {
			return invalid("variable with no name")
		}
		if vars[v.Name] {
			return invalid("duplicate variable %s", v.Name)
		}
		vars[v.Name] = true
		for _, cn := range v.Coordinates {
			if !names[cn] {
				return invalid("variable %s names unknown coordinate %s", v.Name, cn)
			}
		}
	}
	return nil
}

func (c *Coordinate) validateTime() error {
	if c.Unit == "" || c.RefDate == "" {
		return invalid("time coordinate needs unit and refDate")
	}
	ref, err := coverage.ParseDate(c.RefDate)
	if err != nil {
		return invalid("%v", err)
	}
	c.ref = ref
	if _, err := c.TimeUnit(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (c *Coordinate) validate(g *Group, nruns int) error {
	switch c.Type {
	case CoordRuntime, CoordTime, CoordTimeIntv:
		if err := c.validateTime(); err != nil {
			return err
		}
	case CoordTime2D:
		// offsets are relative to each run, so only the period matters
		if _, err := coverage.NewTimeUnit(c.Unit, time.Time{}); err != nil {
			return invalid("%v", err)
		}
		rt, ok := g.Coordinate(c.Runtime)
		if !ok || rt.Type != CoordRuntime {
			return invalid("time2D names unknown runtime %q", c.Runtime)
		}
		if (c.Offsets == nil) == (c.OffsetIntervals == nil) {
			return invalid("time2D needs exactly one of offsets and offsetIntervals")
		}
		if c.Size() != len(rt.Values) {
			return invalid("time2D has %d runs, runtime %s has %d", c.Size(), rt.Name, len(rt.Values))
		}
		for _, offs := range c.OffsetIntervals {
			for _, iv := range offs {
				if iv[1] < iv[0] {
					return invalid("interval %v is reversed", iv)
				}
			}
		}
		return nil
	case CoordVert, CoordEns:
	default:
		return invalid("unknown coordinate type %q", c.Type)
	}

	switch c.Type {
	case CoordTimeIntv:
		if len(c.Intervals) == 0 || c.Values != nil {
			return invalid("timeIntv needs intervals only")
		}
	case CoordVert:
		if (len(c.Values) == 0) == (len(c.Intervals) == 0) {
			return invalid("vert needs exactly one of values and intervals")
		}
	default:
		if len(c.Values) == 0 || c.Intervals != nil {
			return invalid("%s needs values only", c.Type)
		}
	}
	for _, iv := range c.Intervals {
		if iv[1] < iv[0] {
			return invalid("interval %v is reversed", iv)
		}
	}

	if c.Time2Runtime != nil {
		if c.Type != CoordTime && c.Type != CoordTimeIntv {
			return invalid("time2runtime on %s coordinate", c.Type)
		}
		if len(c.Time2Runtime) != c.Size() {
			return invalid("time2runtime has %d entries for %d values", len(c.Time2Runtime), c.Size())
		}
		for _, k := range c.Time2Runtime {
			if k < 0 || k > nruns {
				return invalid("time2runtime index %d out of range 0..%d", k, nruns)
			}
		}
	}
	return nil
}
