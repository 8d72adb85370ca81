package coverage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DateRange is a closed range of dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Union returns the smallest range covering r and o.
func (r DateRange) Union(o DateRange) DateRange {
	if o.Start.Before(r.Start) {
		r.Start = o.Start
	}
	if o.End.After(r.End) {
		r.End = o.End
	}
	return r
}

// Contains reports whether t lies in the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.UTC().Format(time.RFC3339) + "/" + r.End.UTC().Format(time.RFC3339)
}

// LatLonRect is a geographic bounding box in degrees.
type LatLonRect struct {
	South, North float64
	West, East   float64
}

// ProjRect is a bounding box in projection coordinates.
type ProjRect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// SubsetParams are the named parameters of a subset request. Zero values mean
// "not requested".
type SubsetParams struct {
	Runtime       time.Time
	RuntimeLatest bool
	Time          time.Time
	TimeRange     *DateRange
	TimeOffset    *float64
	TimeStride    int
	Vertical      *float64
	Ensemble      *float64
	LatLonBB      *LatLonRect
	ProjBB        *ProjRect
	HorizStride   int
}

// Request parameter keys understood by ParseSubsetParams.
const (
	ParamRuntime     = "runtime"
	ParamTime        = "time"
	ParamTimeRange   = "timeRange"
	ParamTimeOffset  = "timeOffset"
	ParamTimeStride  = "timeStride"
	ParamVertCoord   = "vertCoord"
	ParamEnsCoord    = "ensCoord"
	ParamLatLonBB    = "latlonBB"
	ParamProjBB      = "projBB"
	ParamHorizStride = "horizStride"
)

// ParseSubsetParams converts a request's string parameters. Unknown keys are
// ignored; malformed values are an ErrBadParam subset error.
func ParseSubsetParams(m map[string]string) (SubsetParams, error) {
	var p SubsetParams
	for key, raw := range m {
		val := strings.TrimSpace(raw)
		var err error
		switch key {
		case ParamRuntime:
			if strings.EqualFold(val, "latest") {
				p.RuntimeLatest = true
			} else {
				p.Runtime, err = ParseDate(val)
			}
		case ParamTime:
			p.Time, err = ParseDate(val)
		case ParamTimeRange:
			p.TimeRange, err = parseDateRange(val)
		case ParamTimeOffset:
			p.TimeOffset, err = parseFloatPtr(val)
		case ParamTimeStride:
			p.TimeStride, err = parseStride(val)
		case ParamVertCoord:
			p.Vertical, err = parseFloatPtr(val)
		case ParamEnsCoord:
			p.Ensemble, err = parseFloatPtr(val)
		case ParamLatLonBB:
			var v []float64
			if v, err = parseFloats(val, 4); err == nil {
				p.LatLonBB = &LatLonRect{South: v[0], North: v[1], West: v[2], East: v[3]}
				if p.LatLonBB.South > p.LatLonBB.North {
					err = fmt.Errorf("south %g is north of %g", v[0], v[1])
				}
			}
		case ParamProjBB:
			var v []float64
			if v, err = parseFloats(val, 4); err == nil {
				p.ProjBB = &ProjRect{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
				if v[0] > v[2] || v[1] > v[3] {
					err = fmt.Errorf("min corner (%g, %g) exceeds max corner (%g, %g)", v[0], v[1], v[2], v[3])
				}
			}
		case ParamHorizStride:
			p.HorizStride, err = parseStride(val)
		}
		if err != nil {
			return SubsetParams{}, badParam(key, "%q: %v", raw, err)
		}
	}
	if p.RuntimeLatest && !p.Runtime.IsZero() {
		return SubsetParams{}, badParam(ParamRuntime, "both latest and a date requested")
	}
	if !p.Time.IsZero() && p.TimeRange != nil {
		return SubsetParams{}, badParam(ParamTime, "time and timeRange are exclusive")
	}
	return p, nil
}

func parseDateRange(s string) (*DateRange, error) {
	start, end, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("want start/end")
	}
	t0, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	t1, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if t1.Before(t0) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}
	return &DateRange{Start: t0, End: t1}, nil
}

func parseFloatPtr(s string) (*float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseStride(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("stride must be positive")
	}
	return v, nil
}

// parseFloats splits on commas, semicolons or whitespace, so a bounding box
// can be passed inside a comma separated key=value list.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(parts) != n {
		return nil, fmt.Errorf("want %d numbers", n)
	}
	out := make([]float64, n)
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
