package coverage

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// IndexRange is an inclusive, strided range of indices.
type IndexRange struct {
	First  int
	Last   int
	Stride int
}

// Len is the number of indices in the range.
func (r IndexRange) Len() int {
	if r.Last < r.First {
		return 0
	}
	return (r.Last-r.First)/max(r.Stride, 1) + 1
}

// Index returns the i-th index of the range.
func (r IndexRange) Index(i int) int {
	return r.First + i*max(r.Stride, 1)
}

func (r IndexRange) String() string {
	return fmt.Sprintf("%d:%d:%d", r.First, r.Last, max(r.Stride, 1))
}

// HorizCoordSys is the horizontal geometry shared by every coordinate system
// of a dataset: regular lat/lon axes, projected x/y axes with a transform, or
// 2-D curvilinear lat/lon fields.
type HorizCoordSys struct {
	x, y      *Axis // 1-D horizontal axes
	lat, lon  *Axis // 2-D lat/lon fields
	transform *Transform

	yRange IndexRange
	xRange IndexRange
}

// NewHorizCoordSys picks the horizontal axes out of axes.
func NewHorizCoordSys(axes []*Axis, transform *Transform) (*HorizCoordSys, error) {
	h := &HorizCoordSys{transform: transform}
	for _, a := range axes {
		switch {
		case a.dependence == TwoD && a.axisType == AxisLat:
			h.lat = a
		case a.dependence == TwoD && a.axisType == AxisLon:
			h.lon = a
		case a.axisType == AxisLat || a.axisType == AxisGeoY:
			h.y = a
		case a.axisType == AxisLon || a.axisType == AxisGeoX:
			h.x = a
		}
	}

	switch {
	case h.lat != nil || h.lon != nil:
		if h.lat == nil || h.lon == nil {
			return nil, fmt.Errorf("%w: curvilinear grid needs both 2D lat and lon", ErrMissingAxis)
		}
		ls, ns := h.lat.shape, h.lon.shape
		if ls[0] != ns[0] || ls[1] != ns[1] {
			return nil, fmt.Errorf("%w: 2D lat %v and lon %v shapes differ", ErrInvalidAxis, ls, ns)
		}
		h.yRange = IndexRange{First: 0, Last: ls[0] - 1, Stride: 1}
		h.xRange = IndexRange{First: 0, Last: ls[1] - 1, Stride: 1}
	case h.x != nil && h.y != nil:
		if (h.x.axisType == AxisGeoX) != (h.y.axisType == AxisGeoY) {
			return nil, fmt.Errorf("%w: mixed projected and lat/lon horizontal axes %s, %s", ErrInvalidAxis, h.y.name, h.x.name)
		}
		h.yRange = axisRange(h.y)
		h.xRange = axisRange(h.x)
	default:
		return nil, fmt.Errorf("%w: no horizontal axes", ErrMissingAxis)
	}
	return h, nil
}

func axisRange(a *Axis) IndexRange {
	idx := a.Indices()
	stride, ok := evenStride(idx)
	if !ok {
		stride = 1
	}
	return IndexRange{First: idx[0], Last: idx[len(idx)-1], Stride: stride}
}

func (h *HorizCoordSys) IsCurvilinear() bool { return h.lat != nil }
func (h *HorizCoordSys) IsLatLon() bool      { return h.x != nil && h.x.axisType == AxisLon }
func (h *HorizCoordSys) IsProjection() bool  { return h.x != nil && h.x.axisType == AxisGeoX }
func (h *HorizCoordSys) Transform() *Transform {
	return h.transform
}

// Axes returns the horizontal axes, y before x.
func (h *HorizCoordSys) Axes() []*Axis {
	if h.IsCurvilinear() {
		return []*Axis{h.lat, h.lon}
	}
	return []*Axis{h.y, h.x}
}

// Names returns the horizontal axis names, y before x.
func (h *HorizCoordSys) Names() []string {
	axes := h.Axes()
	return []string{axes[0].name, axes[1].name}
}

// check verifies cs can share h. Curvilinear systems may use a different
// stagger of the 2D lat/lon fields as long as the grid shape matches.
func (h *HorizCoordSys) check(cs *CoordSys) error {
	if !h.IsCurvilinear() {
		for _, n := range h.Names() {
			if !slices.Contains(cs.axisNames, n) {
				return fmt.Errorf("%w: coordinate system %s lacks shared horizontal axis %s", ErrMissingAxis, cs.name, n)
			}
		}
		return nil
	}
	var found int
	for _, a := range cs.axes {
		if a.dependence != TwoD {
			continue
		}
		if a.shape[0] != h.lat.shape[0] || a.shape[1] != h.lat.shape[1] {
			return fmt.Errorf("%w: coordinate system %s: 2D axis %s shape %v differs from %v", ErrInvalidAxis, cs.name, a.name, a.shape, h.lat.shape)
		}
		found++
	}
	if found != 2 {
		return fmt.Errorf("%w: coordinate system %s needs a 2D lat and lon", ErrMissingAxis, cs.name)
	}
	return nil
}

// Ranges returns the y and x index ranges into the stored grid.
func (h *HorizCoordSys) Ranges() (IndexRange, IndexRange) {
	return h.yRange, h.xRange
}

// Shape is (ny, nx) of the selected horizontal grid.
func (h *HorizCoordSys) Shape() (int, int) {
	return h.yRange.Len(), h.xRange.Len()
}

// LatLonBoundingBox is the geographic extent of a lat/lon or curvilinear grid.
// Projected grids report false.
func (h *HorizCoordSys) LatLonBoundingBox() (LatLonRect, bool, error) {
	switch {
	case h.IsCurvilinear():
		lats, err := h.lat.Coords()
		if err != nil {
			return LatLonRect{}, false, err
		}
		lons, err := h.lon.Coords()
		if err != nil {
			return LatLonRect{}, false, err
		}
		lats, lons = h.pick2D(lats), h.pick2D(lons)
		return LatLonRect{South: floats.Min(lats), North: floats.Max(lats), West: floats.Min(lons), East: floats.Max(lons)}, true, nil
	case h.IsLatLon():
		return LatLonRect{
			South: math.Min(h.y.start, h.y.end), North: math.Max(h.y.start, h.y.end),
			West: math.Min(h.x.start, h.x.end), East: math.Max(h.x.start, h.x.end),
		}, true, nil
	}
	return LatLonRect{}, false, nil
}

// ProjBoundingBox is the extent of a projected grid.
func (h *HorizCoordSys) ProjBoundingBox() (ProjRect, bool) {
	if !h.IsProjection() {
		return ProjRect{}, false
	}
	return ProjRect{
		MinX: math.Min(h.x.start, h.x.end), MinY: math.Min(h.y.start, h.y.end),
		MaxX: math.Max(h.x.start, h.x.end), MaxY: math.Max(h.y.start, h.y.end),
	}, true
}

// pick2D keeps the values of a full 2-D field inside the selected ranges.
func (h *HorizCoordSys) pick2D(values []float64) []float64 {
	nx := h.lat.shape[1]
	out := make([]float64, 0, h.yRange.Len()*h.xRange.Len())
	for j := range h.yRange.Len() {
		row := h.yRange.Index(j) * nx
		for i := range h.xRange.Len() {
			out = append(out, values[row+h.xRange.Index(i)])
		}
	}
	return out
}

// Subset applies the bounding box and horizontal stride of params.
func (h *HorizCoordSys) Subset(params SubsetParams) (*HorizCoordSys, error) {
	if params.LatLonBB == nil && params.ProjBB == nil && params.HorizStride <= 1 {
		return h, nil
	}
	if h.IsCurvilinear() {
		return h.subsetCurvilinear(params)
	}
	if h.IsProjection() && params.LatLonBB != nil {
		return nil, badParam(ParamLatLonBB, "grid is projected; use %s", ParamProjBB)
	}
	if h.IsLatLon() && params.ProjBB != nil {
		return nil, badParam(ParamProjBB, "grid is lat/lon; use %s", ParamLatLonBB)
	}
	y, err := h.y.Subset(params)
	if err != nil {
		return nil, err
	}
	x, err := h.x.Subset(params)
	if err != nil {
		return nil, err
	}
	return &HorizCoordSys{x: x, y: y, transform: h.transform, yRange: axisRange(y), xRange: axisRange(x)}, nil
}

func (h *HorizCoordSys) subsetCurvilinear(params SubsetParams) (*HorizCoordSys, error) {
	if params.ProjBB != nil {
		return nil, badParam(ParamProjBB, "curvilinear grid has no projection")
	}
	stride := max(params.HorizStride, 1)
	ny, nx := h.lat.shape[0], h.lat.shape[1]
	yr := IndexRange{First: 0, Last: ny - 1, Stride: stride}
	xr := IndexRange{First: 0, Last: nx - 1, Stride: stride}

	if bb := params.LatLonBB; bb != nil {
		lats, err := h.lat.Coords()
		if err != nil {
			return nil, err
		}
		lons, err := h.lon.Coords()
		if err != nil {
			return nil, err
		}
		minY, maxY, minX, maxX := ny, -1, nx, -1
		for j := range ny {
			for i := range nx {
				lat, lon := lats[j*nx+i], lons[j*nx+i]
				if lat < bb.South || lat > bb.North || lon < bb.West || lon > bb.East {
					continue
				}
				minY, maxY = min(minY, j), max(maxY, j)
				minX, maxX = min(minX, i), max(maxX, i)
			}
		}
		if maxY < 0 {
			return nil, emptySubset(ParamLatLonBB, "no grid point inside %+v", *bb)
		}
		yr = IndexRange{First: minY, Last: maxY, Stride: stride}
		xr = IndexRange{First: minX, Last: maxX, Stride: stride}
	}
	yr.Last = yr.Index(yr.Len() - 1)
	xr.Last = xr.Index(xr.Len() - 1)
	return &HorizCoordSys{lat: h.lat, lon: h.lon, transform: h.transform, yRange: yr, xRange: xr}, nil
}

func (h *HorizCoordSys) String() string {
	ny, nx := h.Shape()
	names := h.Names()
	kind := "latlon"
	switch {
	case h.IsCurvilinear():
		kind = "curvilinear"
	case h.IsProjection():
		kind = "projection"
	}
	return fmt.Sprintf("%s %s(%s) x %s(%s) shape=[%d,%d]", kind, names[0], h.yRange, names[1], h.xRange, ny, nx)
}
