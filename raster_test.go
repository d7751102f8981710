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

package sebal

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

func TestGrid(t *testing.T) {
	g := Grid{X0: 10, Y0: 20, Dx: 2, Dy: 3, Nx: 4, Ny: 5}
	if g.Len() != 20 {
		t.Errorf("len: %d", g.Len())
	}
	i := g.Index(2, 3)
	if r, c := g.RowCol(i); r != 2 || c != 3 {
		t.Errorf("row, col: %d, %d", r, c)
	}
	if p := g.Center(i); p.X != 17 || p.Y != 27.5 {
		t.Errorf("center: %+v", p)
	}
	if a := g.Cell(i).Area(); a != 6 {
		t.Errorf("cell area: %g", a)
	}
	b := g.Bounds()
	if b.Max.X != 18 || b.Max.Y != 35 {
		t.Errorf("bounds: %+v", b)
	}
	o := g
	if !g.SameAs(&o) {
		t.Error("grid should match its copy")
	}
	o.Dx = 2.5
	if g.SameAs(&o) {
		t.Error("grids should differ")
	}
}

func TestRasterBands(t *testing.T) {
	r := NewRaster(Grid{Nx: 2, Ny: 3, Dx: 1, Dy: 1})
	if err := r.AddBand("bad", "", "", sparse.ZerosDense(2, 3)); err == nil {
		t.Error("expected a shape error")
	}
	if err := r.AddBand("good", "", "", sparse.ZerosDense(3, 2)); err != nil {
		t.Error(err)
	}
	r.FillBand("one", "", "", 1)
	if _, err := r.Band("missing"); err == nil {
		t.Error("expected a missing band error")
	}
	if !math.IsNaN(r.Value("missing", 0)) {
		t.Error("missing band value should be NaN")
	}
	if !r.Valid(0, "good", "one") || r.Valid(0, "good", "missing") {
		t.Error("valid")
	}
	c := r.Copy()
	c.FillBand("one", "", "", 2)
	if r.Value("one", 0) != 1 {
		t.Error("copy should not share data")
	}
	if n := r.BandNames(); len(n) != 2 || n[0] != "good" || n[1] != "one" {
		t.Errorf("band names: %v", n)
	}
}

func TestSceneNetCDFRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "sebal")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	s := testScene("LC08_042034_20190701")
	s.Proj = "+proj=utm +zone=13 +datum=WGS84"
	tb, _ := s.Band(BandThermal)
	tb[3] = math.NaN()
	fname := filepath.Join(dir, "scene.nc")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f, err = os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s2, err := ReadScene(f)
	if err != nil {
		t.Fatal(err)
	}
	if s2.ID != s.ID || !s2.Time.Equal(s.Time) || s2.Sensor != s.Sensor ||
		s2.SunElevation != s.SunElevation || s2.SunAzimuth != s.SunAzimuth || s2.Scale != s.Scale {
		t.Errorf("metadata: have %+v, want %+v", s2, s)
	}
	if !s2.Grid.SameAs(&s.Grid) {
		t.Errorf("grid: have %+v, want %+v", s2.Grid, s.Grid)
	}
	for _, n := range s.BandNames() {
		want, _ := s.Band(n)
		have, err := s2.Band(n)
		if err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if math.IsNaN(want[i]) {
				if !math.IsNaN(have[i]) {
					t.Errorf("%s[%d] should be NaN", n, i)
				}
				continue
			}
			if different(have[i], want[i], 1.e-6) {
				t.Errorf("%s[%d]: have %g, want %g", n, i, have[i], want[i])
			}
		}
	}
	if s2.Bands[BandThermal].Units != "K" {
		t.Errorf("units: %q", s2.Bands[BandThermal].Units)
	}
}

func TestReadRasterBadGrid(t *testing.T) {
	dir, err := ioutil.TempDir("", "sebal")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	tests := []struct {
		name string
		attr string
		val  interface{}
	}{
		{"float32 dx", "dx", []float32{30}},
		{"float64 nx", "nx", []float64{10}},
		{"zero ny", "ny", []int32{0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			attrs := map[string]interface{}{
				"x0": []float64{0}, "y0": []float64{0},
				"dx": []float64{30}, "dy": []float64{30},
				"nx": []int32{10}, "ny": []int32{8},
			}
			attrs[test.attr] = test.val
			h := cdf.NewHeader([]string{"y", "x"}, []int{8, 10})
			for _, k := range []string{"x0", "y0", "dx", "dy", "nx", "ny"} {
				h.AddAttribute("", k, attrs[k])
			}
			h.AddAttribute("", "data_version", DataVersion)
			h.AddVariable(BandNDVI, []string{"y", "x"}, []float32{0})
			h.Define()
			f, err := os.Create(filepath.Join(dir, "bad.nc"))
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			if _, err := cdf.Create(f, h); err != nil {
				t.Fatal(err)
			}
			_, err = ReadRaster(f)
			if err == nil || !strings.Contains(err.Error(), "attribute "+test.attr) {
				t.Errorf("have error %v", err)
			}
		})
	}
}

func TestParseSensor(t *testing.T) {
	for _, n := range []string{"Landsat8", "LANDSAT_8", "l8", "LC08"} {
		s, err := ParseSensor(n)
		if err != nil || s != Landsat8 {
			t.Errorf("%s: %v, %v", n, s, err)
		}
	}
	if _, err := ParseSensor("Sentinel2"); err == nil {
		t.Error("expected an error")
	}
	if Landsat5.String() != "Landsat5" {
		t.Error(Landsat5.String())
	}
}
