package coverage

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Reader materializes axis values and coverage data. It is the array-reader
// collaborator a Dataset hands its read requests to.
type Reader interface {
	AxisReader
	// ReadData reads the coverage over the coordinates selected by params.
	ReadData(ctx context.Context, cov *Coverage, params SubsetParams) (*GeoReferencedArray, error)
	// Location names the storage the reader is attached to.
	Location() string
	Close() error
}

// GeoReferencedArray is the result of a data read: the values plus the
// subset coordinate system that locates them.
type GeoReferencedArray struct {
	CoverageName string
	DataType     DataType
	// Data has shape CoordsSet.ShapeWith(ny, nx) of CoordSys.
	Data     *tensors.Tensor
	Shape    []int
	CoordSys *CoordSys
}

// Coverage is a named data variable defined over a coordinate system.
type Coverage struct {
	name         string
	dataType     DataType
	atts         Attributes
	coordSysName string
	units        string
	desc         string
	reader       Reader
	user         any

	coordSys *CoordSys
}

// NewCoverage declares a coverage over the coordinate system named
// coordSysName. The name is resolved when the owning dataset is wired.
func NewCoverage(name string, dataType DataType, atts Attributes, coordSysName, units, desc string, reader Reader, user any) *Coverage {
	return &Coverage{
		name:         name,
		dataType:     dataType,
		atts:         slices.Clone(atts),
		coordSysName: coordSysName,
		units:        units,
		desc:         desc,
		reader:       reader,
		user:         user,
	}
}

func (c *Coverage) Name() string           { return c.name }
func (c *Coverage) DataType() DataType     { return c.dataType }
func (c *Coverage) Attributes() Attributes { return c.atts }
func (c *Coverage) CoordSysName() string   { return c.coordSysName }
func (c *Coverage) Units() string          { return c.units }
func (c *Coverage) Description() string    { return c.desc }
func (c *Coverage) User() any              { return c.user }

// CoordSys is the shared coordinate system resolved at wiring.
func (c *Coverage) CoordSys() *CoordSys { return c.coordSys }

func (c *Coverage) setCoordSys(cs *CoordSys) error {
	if c.coordSys != nil {
		return fmt.Errorf("%w: coverage %s already wired to %s", ErrImmutable, c.name, c.coordSys.name)
	}
	c.coordSys = cs
	return nil
}

// IndependentAxisNames lists the axes that give the coverage its dimensions.
func (c *Coverage) IndependentAxisNames() []string {
	if c.coordSys == nil {
		return nil
	}
	var names []string
	for _, a := range c.coordSys.axes {
		if a.dependence == Independent || a.dependence == TwoD {
			names = append(names, a.name)
		}
	}
	return names
}

// SizeInBytes is the size of the full, unsubset coverage.
func (c *Coverage) SizeInBytes() (int64, error) {
	if c.coordSys == nil {
		return 0, fmt.Errorf("%w: coverage %s", ErrMissingCoordSys, c.name)
	}
	set, err := c.coordSys.CoordsSet()
	if err != nil {
		return 0, err
	}
	n := int64(set.Size())
	if h := c.coordSys.hcs; h != nil {
		ny, nx := h.Shape()
		n *= int64(ny) * int64(nx)
	}
	return n * int64(c.dataType.Size()), nil
}

// IsMissing reports whether v is the missing-data marker.
func (c *Coverage) IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// ReadData hands the request to the coverage's reader.
func (c *Coverage) ReadData(ctx context.Context, params SubsetParams) (*GeoReferencedArray, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("%w: coverage %s", ErrNoReader, c.name)
	}
	if c.coordSys == nil {
		return nil, fmt.Errorf("%w: coverage %s is not wired", ErrMissingCoordSys, c.name)
	}
	return c.reader.ReadData(ctx, c, params)
}

func (c *Coverage) String() string {
	return fmt.Sprintf("%s %s(%s) units=%q %q", c.dataType, c.name, c.coordSysName, c.units, c.desc)
}
