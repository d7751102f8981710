/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

package sebalutil

import (
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/sebal"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func TestParamsFromConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := ParamsFromConfig(Cfg)
		if err != nil {
			t.Fatal(err)
		}
		if want := sebal.DefaultParams(); !reflect.DeepEqual(p, want) {
			t.Errorf("have %+v, want %+v", p, want)
		}
	})
	t.Run("set", func(t *testing.T) {
		v := viper.New()
		for k, val := range map[string]interface{}{
			"Endmember.ColdNDVIPercentile": 90.0,
			"Endmember.ColdLSTPercentile":  25.0,
			"Endmember.HotNDVIPercentile":  15.0,
			"Endmember.HotLSTPercentile":   85.0,
			"Endmember.MinLST":             250.0,
			"Solver.Convergence":           0.001,
			"Solver.MaxIterations":         "20",
			"Solver.StationVegHeight":      0.5,
			"Solver.BlendingHeight":        100,
			"Solver.WindHeight":            10,
			"SAVIL":                        0.1,
			"LapseRate":                    0.006,
		} {
			v.Set(k, val)
		}
		p, err := ParamsFromConfig(v)
		if err != nil {
			t.Fatal(err)
		}
		if p.MaxIterations != 20 || p.BlendingHeight != 100 || p.ColdNDVIPercentile != 90 || p.MinLST != 250 {
			t.Errorf("have %+v", p)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := ParamsFromConfig(viper.New()); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestGetStringMapString(t *testing.T) {
	v := viper.New()
	v.Set("json", `{"ET":"ET_24h","ETin":"inches(ET_24h)"}`)
	v.Set("map", map[string]interface{}{"ET": "ET_24h", "ETin": "inches(ET_24h)"})
	v.Set("bad", 3)
	want := map[string]string{"ET": "ET_24h", "ETin": "inches(ET_24h)"}
	for _, name := range []string{"json", "map"} {
		t.Run(name, func(t *testing.T) {
			o, err := GetStringMapString(name, v)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(o, want) {
				t.Errorf("have %v, want %v", o, want)
			}
		})
	}
	t.Run("bad", func(t *testing.T) {
		if _, err := GetStringMapString("bad", v); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("default", func(t *testing.T) {
		o, err := GetStringMapString("OutputVariables", Cfg)
		if err != nil {
			t.Fatal(err)
		}
		if o["ET"] != sebal.BandET24h || len(o) != 1 {
			t.Errorf("have %v", o)
		}
	})
}

func TestCheckOutputVars(t *testing.T) {
	os.Setenv("SEBAL_TEST_BAND", "ET_24h")
	defer os.Unsetenv("SEBAL_TEST_BAND")
	o, err := checkOutputVars(map[string]string{"ET": "2 *\r\n$SEBAL_TEST_BAND"})
	if err != nil {
		t.Fatal(err)
	}
	if o["ET"] != "2 * ET_24h" {
		t.Errorf("have %q", o["ET"])
	}
	if _, err := checkOutputVars(nil); err == nil {
		t.Error("expected an error")
	}
}

func TestCheckFiles(t *testing.T) {
	if l := checkLogFile("", "out/sebal.shp"); l != "out/sebal.log" {
		t.Errorf("log file: %s", l)
	}
	if l := checkLogFile("x.log", "out/sebal.shp"); l != "x.log" {
		t.Errorf("log file: %s", l)
	}
	if _, err := checkOutputFile(""); err == nil {
		t.Error("expected an error for an empty output file")
	}
	if _, err := checkOutputFile("does/not/exist/out.nc"); err == nil {
		t.Error("expected an error for a missing directory")
	}
	dir, err := ioutil.TempDir("", "sebalutil")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if _, err := checkOutputFile("file://" + dir + "/out.nc"); err != nil {
		t.Error(err)
	}
}

func TestParseAOI(t *testing.T) {
	dir, err := ioutil.TempDir("", "sebalutil")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	write := func(name, s string) string {
		f := filepath.Join(dir, name)
		if err := ioutil.WriteFile(f, []byte(s), 0644); err != nil {
			t.Fatal(err)
		}
		return f
	}
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		aoi, err := parseAOI(ctx, "", "")
		if err != nil || aoi != nil {
			t.Errorf("have %v, %v", aoi, err)
		}
	})
	t.Run("polygon", func(t *testing.T) {
		f := write("p.json", `{"type": "Polygon","coordinates": [ [ [0, 0], [1, 0], [1, 1], [0, 1], [0, 0] ] ] }`)
		aoi, err := parseAOI(ctx, f, "")
		if err != nil {
			t.Fatal(err)
		}
		want := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}}
		if !reflect.DeepEqual(aoi, want) {
			t.Errorf("%v != %v", aoi, want)
		}
	})
	t.Run("multipolygon", func(t *testing.T) {
		f := write("mp.json", `{"type": "MultiPolygon","coordinates": [ [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ], [ [ [2, 2], [3, 2], [3, 3], [2, 2] ] ] ] }`)
		aoi, err := parseAOI(ctx, f, "")
		if err != nil {
			t.Fatal(err)
		}
		mp, ok := aoi.(geom.MultiPolygon)
		if !ok || len(mp) != 2 || mp[1][0][0] != (geom.Point{X: 2, Y: 2}) {
			t.Fatalf("have %#v", aoi)
		}
		if (geom.Point{X: 2.9, Y: 2.5}).Within(mp) == geom.Outside {
			t.Error("point in the second polygon should be inside")
		}
		if (geom.Point{X: 1.5, Y: 1.5}).Within(mp) != geom.Outside {
			t.Error("point between the polygons should be outside")
		}
	})
	t.Run("projected multipolygon", func(t *testing.T) {
		f := write("pmp.json", `{"type": "MultiPolygon","coordinates": [ [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ], [ [ [2, 0], [3, 0], [3, 1], [2, 0] ] ] ] }`)
		merc := "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"
		aoi, err := parseAOI(ctx, f, merc)
		if err != nil {
			t.Fatal(err)
		}
		mp := aoi.(geom.MultiPolygon)
		if want := 3 * 6378137 * math.Pi / 180; different(mp[1][0][1].X, want, 1.e-6) {
			t.Errorf("x: have %g, want %g", mp[1][0][1].X, want)
		}
	})
	t.Run("bad multipolygon", func(t *testing.T) {
		f := write("bmp.json", `{"type": "MultiPolygon","coordinates": [ [ [ [0, 0, 0] ] ] ] }`)
		if _, err := parseAOI(ctx, f, ""); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("projected", func(t *testing.T) {
		f := write("p.json", `{"type": "Polygon","coordinates": [ [ [0, 0], [1, 0], [1, 1], [0, 1], [0, 0] ] ] }`)
		merc := "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"
		aoi, err := parseAOI(ctx, f, merc)
		if err != nil {
			t.Fatal(err)
		}
		p := aoi.(geom.Polygon)
		if want := 6378137 * math.Pi / 180; different(p[0][1].X, want, 1.e-6) {
			t.Errorf("x: have %g, want %g", p[0][1].X, want)
		}
		if math.Abs(p[0][0].X) > 1.e-6 || math.Abs(p[0][0].Y) > 1.e-6 {
			t.Errorf("origin: have %v", p[0][0])
		}
	})
	t.Run("point", func(t *testing.T) {
		f := write("pt.json", `{"type": "Point","coordinates": [0, 0] }`)
		if _, err := parseAOI(ctx, f, ""); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("missing", func(t *testing.T) {
		if _, err := parseAOI(ctx, filepath.Join(dir, "missing.json"), ""); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestParsePoints(t *testing.T) {
	points, err := parsePoints(map[string]string{"b": "1, 2", "a": "-100.5,40.25"}, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []sebal.Point{{Name: "a", X: -100.5, Y: 40.25}, {Name: "b", X: 1, Y: 2}}
	if !reflect.DeepEqual(points, want) {
		t.Errorf("have %+v, want %+v", points, want)
	}

	merc := "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"
	points, err = parsePoints(map[string]string{"p": "1,0"}, merc)
	if err != nil {
		t.Fatal(err)
	}
	if want := 6378137 * math.Pi / 180; different(points[0].X, want, 1.e-6) || math.Abs(points[0].Y) > 1.e-6 {
		t.Errorf("projected point: %+v", points[0])
	}

	for _, bad := range []string{"1", "1,2,3", "east,2", "1,north"} {
		if _, err := parsePoints(map[string]string{"p": bad}, ""); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
	if points, err := parsePoints(nil, ""); err != nil || points != nil {
		t.Errorf("no points: %v, %v", points, err)
	}
}
