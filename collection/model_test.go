package collection_test

import (
	"strings"
	"testing"
	"time"

	"github.com/TuSKan/coverage/collection"
	"github.com/stretchr/testify/require"
)

const indexJSON = `{
  "name": "GFS-Global",
  "masterRuntime": {"unit": "hours", "refDate": "2012-02-27T00:00:00Z", "values": [0, 6]},
  "attributes": {"Originating_center": "US NCEP"},
  "datasets": [{
    "type": "TwoD",
    "groups": [{
      "id": "LatLon_3X4",
      "horiz": {"id": "LatLon_3X4", "template": 0, "latlon": true, "nx": 4, "ny": 3, "startx": 0, "starty": 50, "dx": 5, "dy": -5},
      "coordinates": [
        {"type": "runtime", "name": "reftime", "unit": "hours", "refDate": "2012-02-27T00:00:00Z", "values": [0, 6]},
        {"type": "time2D", "name": "time", "unit": "hours", "runtime": "reftime", "offsets": [[0, 3], [0, 3]]},
        {"type": "vert", "name": "isobaric", "unit": "hPa", "values": [1000, 850]}
      ],
      "variables": [
        {"name": "Temperature_isobaric", "units": "K", "discipline": 0, "category": 0, "parameter": 0,
         "level": "L100", "coordinates": ["reftime", "time", "isobaric"], "path": "TwoD/LatLon_3X4/Temperature_isobaric"}
      ]
    }]
  }]
}`

func TestLoad(t *testing.T) {
	c, err := collection.Load(strings.NewReader(indexJSON))
	require.NoError(t, err)
	require.Equal(t, "GFS-Global", c.Name)
	require.Equal(t, collection.CoordRuntime, c.MasterRuntime.Type)

	dates := c.MasterDates()
	require.Len(t, dates, 2)
	require.True(t, dates[1].Equal(time.Date(2012, 2, 27, 6, 0, 0, 0, time.UTC)))

	g := &c.Datasets[0].Groups[0]
	tm, ok := g.Coordinate("time")
	require.True(t, ok)
	require.Equal(t, 2, tm.Size())
	require.False(t, tm.IsInterval())
	_, ok = g.Coordinate("height")
	require.False(t, ok)

	require.Equal(t, "VAR_0-0-0_L100", g.Variables[0].ID())
	require.Equal(t, 15.0, g.Horiz.EndX())
	require.Equal(t, 40.0, g.Horiz.EndY())
	require.True(t, c.Datasets[0].Type.IsFmrc())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
	}{
		{"bad json", func(s string) string { return s[:20] }},
		{"no name", func(s string) string { return strings.Replace(s, `"GFS-Global"`, `""`, 1) }},
		{"bad master unit", func(s string) string { return strings.Replace(s, `"unit": "hours", "refDate"`, `"unit": "weeks", "refDate"`, 1) }},
		{"unknown dataset type", func(s string) string { return strings.Replace(s, `"TwoD"`, `"Fmrc"`, 1) }},
		{"unknown coordinate", func(s string) string { return strings.Replace(s, `"reftime", "time", "isobaric"]`, `"reftime", "time", "height"]`, 1) }},
		{"time2D run count", func(s string) string { return strings.Replace(s, `[[0, 3], [0, 3]]`, `[[0, 3]]`, 1) }},
		{"time2D runtime", func(s string) string { return strings.Replace(s, `"runtime": "reftime"`, `"runtime": "isobaric"`, 1) }},
		{"empty grid", func(s string) string { return strings.Replace(s, `"nx": 4`, `"nx": 0`, 1) }},
		{"vert without values", func(s string) string { return strings.Replace(s, `"values": [1000, 850]`, `"positiveUp": true`, 1) }},
		{"unknown coordinate type", func(s string) string { return strings.Replace(s, `"type": "vert"`, `"type": "level"`, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.edit(indexJSON)
			require.NotEqual(t, indexJSON, src)
			c, err := collection.Load(strings.NewReader(src))
			require.Error(t, err)
			require.Nil(t, c)
		})
	}
}

func TestValidate_Time2Runtime(t *testing.T) {
	c := bestCollection()
	require.NoError(t, c.Validate())

	c = bestCollection()
	c.Datasets[0].Groups[0].Coordinates[1].Time2Runtime = []int{1, 1, 2, 3}
	require.ErrorIs(t, c.Validate(), collection.ErrInvalidCollection)

	c = bestCollection()
	c.Datasets[0].Groups[0].Coordinates[1].Time2Runtime = []int{1, 1}
	require.ErrorIs(t, c.Validate(), collection.ErrInvalidCollection)
}
