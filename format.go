package coverage

import (
	"fmt"
	"strings"
)

func (a *Axis) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s(%d) %s", a.axisType, a.dataType, a.name, a.ncoords, a.spacing)
	if a.dependence != Independent {
		fmt.Fprintf(&b, " %s", a.dependence)
		if len(a.dependsOn) > 0 {
			fmt.Fprintf(&b, " on %s", strings.Join(a.dependsOn, ","))
		}
	}
	if a.units != "" {
		fmt.Fprintf(&b, " units=%q", a.units)
	}
	fmt.Fprintf(&b, " start=%g end=%g", a.start, a.end)
	if a.resol != 0 {
		fmt.Fprintf(&b, " resol=%g", a.resol)
	}
	if a.dependence == TwoD {
		fmt.Fprintf(&b, " shape=%v", a.shape)
	}
	return b.String()
}

func (d *Dataset) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset %s type=%s", d.name, d.typ)
	if loc := d.Location(); loc != "" {
		fmt.Fprintf(&b, " location=%s", loc)
	}
	if d.hasDateRange {
		fmt.Fprintf(&b, " dates=%s", d.dateRange)
	}
	b.WriteString("\n")

	for _, att := range d.atts {
		fmt.Fprintf(&b, "  :%s\n", att)
	}
	fmt.Fprintf(&b, "Axes (%d)\n", len(d.axes))
	for _, a := range d.axes {
		fmt.Fprintf(&b, "  %s\n", a)
	}
	fmt.Fprintf(&b, "CoordSys (%d)\n", len(d.coordSys))
	for _, cs := range d.coordSys {
		fmt.Fprintf(&b, "  %s %q [%s]\n", cs.typ, cs.name, strings.Join(cs.axisNames, ", "))
	}
	if len(d.transforms) > 0 {
		fmt.Fprintf(&b, "Transforms (%d)\n", len(d.transforms))
		for _, t := range d.transforms {
			fmt.Fprintf(&b, "  %s (%s)\n", t.Name, t.Kind)
			for _, p := range t.Params {
				fmt.Fprintf(&b, "    %s\n", p)
			}
		}
	}
	if d.hcs != nil {
		fmt.Fprintf(&b, "Horiz %s\n", d.hcs)
	}
	fmt.Fprintf(&b, "Coverages (%d)\n", len(d.coverages))
	for _, c := range d.coverages {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	return b.String()
}
