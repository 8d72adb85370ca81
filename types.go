package coverage

import (
	"fmt"
	"strings"
)

// AxisType is the physical role of a coordinate axis.
type AxisType int

const (
	AxisRunTime AxisType = iota
	AxisTime
	AxisTimeOffset
	AxisGeoZ
	AxisPressure
	AxisHeight
	AxisEnsemble
	AxisGeoY
	AxisGeoX
	AxisLat
	AxisLon
)

var axisTypeNames = [...]string{
	AxisRunTime:    "RunTime",
	AxisTime:       "Time",
	AxisTimeOffset: "TimeOffset",
	AxisGeoZ:       "GeoZ",
	AxisPressure:   "Pressure",
	AxisHeight:     "Height",
	AxisEnsemble:   "Ensemble",
	AxisGeoY:       "GeoY",
	AxisGeoX:       "GeoX",
	AxisLat:        "Lat",
	AxisLon:        "Lon",
}

func (t AxisType) String() string {
	if t >= 0 && int(t) < len(axisTypeNames) {
		return axisTypeNames[t]
	}
	return fmt.Sprintf("AxisType(%d)", int(t))
}

// IsVert reports whether t is one of the vertical axis kinds.
func (t AxisType) IsVert() bool {
	return t == AxisGeoZ || t == AxisPressure || t == AxisHeight
}

// IsTime reports whether values of t are offsets in a TimeUnit.
func (t AxisType) IsTime() bool {
	return t == AxisRunTime || t == AxisTime || t == AxisTimeOffset
}

// IsHoriz reports whether t is a horizontal axis kind.
func (t AxisType) IsHoriz() bool {
	return t == AxisGeoX || t == AxisGeoY || t == AxisLat || t == AxisLon
}

// DependenceType classifies how an axis contributes to the iteration shape.
type DependenceType int

const (
	// Independent axes contribute one dimension.
	Independent DependenceType = iota
	// Dependent axes are a function of the axes they name in DependsOn.
	Dependent
	// Scalar axes hold a single fixed value.
	Scalar
	// TwoD axes are indexed by the horizontal grid itself (curvilinear lat/lon).
	TwoD
)

func (d DependenceType) String() string {
	switch d {
	case Independent:
		return "independent"
	case Dependent:
		return "dependent"
	case Scalar:
		return "scalar"
	case TwoD:
		return "twoD"
	}
	return fmt.Sprintf("DependenceType(%d)", int(d))
}

// Spacing classifies the value representation of an axis.
type Spacing int

const (
	// Regular: start + i*resolution, no explicit values required.
	Regular Spacing = iota
	// IrregularPoint: n explicit monotonic values.
	IrregularPoint
	// ContiguousInterval: n+1 explicit edges.
	ContiguousInterval
	// DiscontiguousInterval: 2n explicit bounds, (lo, hi) pairs.
	DiscontiguousInterval
)

func (s Spacing) String() string {
	switch s {
	case Regular:
		return "regular"
	case IrregularPoint:
		return "irregularPoint"
	case ContiguousInterval:
		return "contiguousInterval"
	case DiscontiguousInterval:
		return "discontiguousInterval"
	}
	return fmt.Sprintf("Spacing(%d)", int(s))
}

// IsInterval reports whether coordinates are bound pairs.
func (s Spacing) IsInterval() bool {
	return s == ContiguousInterval || s == DiscontiguousInterval
}

// valueCount is the length of the explicit value array for n coordinates.
func (s Spacing) valueCount(n int) int {
	switch s {
	case ContiguousInterval:
		return n + 1
	case DiscontiguousInterval:
		return 2 * n
	}
	return n
}

// DataType is the element type of an axis or coverage.
type DataType int

const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// Size returns the element size in bytes.
func (d DataType) Size() int {
	switch d {
	case Float64, Int64:
		return 8
	}
	return 4
}

// CoordSysType tags the kind of coverage a coordinate system describes.
type CoordSysType int

const (
	// Grid is a plain gridded coverage.
	Grid CoordSysType = iota
	// Fmrc is a forecast-model-run collection (runtime x time offset).
	Fmrc
	// Curvilinear grids have 2-D lat/lon fields for horizontal coordinates.
	Curvilinear
)

func (t CoordSysType) String() string {
	switch t {
	case Grid:
		return "Grid"
	case Fmrc:
		return "Fmrc"
	case Curvilinear:
		return "Curvilinear"
	}
	return fmt.Sprintf("CoordSysType(%d)", int(t))
}

// Attribute is a named metadata value.
type Attribute struct {
	Name  string
	Value any
}

func (a Attribute) String() string {
	if s, ok := a.Value.(string); ok {
		return fmt.Sprintf("%s = %q", a.Name, s)
	}
	return fmt.Sprintf("%s = %v", a.Name, a.Value)
}

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Find returns the attribute with the given name.
func (as Attributes) Find(name string) (Attribute, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// FindIgnoreCase is Find with a case-insensitive name match.
func (as Attributes) FindIgnoreCase(name string) (Attribute, bool) {
	for _, a := range as {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Attribute{}, false
}

// String returns the string value of the named attribute, or def.
func (as Attributes) String(name, def string) string {
	a, ok := as.FindIgnoreCase(name)
	if !ok {
		return def
	}
	if s, ok := a.Value.(string); ok {
		return s
	}
	return fmt.Sprint(a.Value)
}

// Filter returns the attributes whose name does not start with prefix.
func (as Attributes) Filter(prefix string) Attributes {
	out := make(Attributes, 0, len(as))
	for _, a := range as {
		if !strings.HasPrefix(a.Name, prefix) {
			out = append(out, a)
		}
	}
	return out
}
