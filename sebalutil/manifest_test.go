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
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spatialmodel/sebal"
)

func TestReadManifest(t *testing.T) {
	os.Setenv("SEBAL_TEST_DIR", "/data")
	defer os.Unsetenv("SEBAL_TEST_DIR")
	m, err := ReadManifest(strings.NewReader(`
Proj = "+proj=utm +zone=14 +datum=WGS84"

[[Scene]]
File = "a.nc"
ERA5 = "gs://era5/2019.nc"

[[Scene]]
File = "$SEBAL_TEST_DIR/b.nc"
Meteorology = "met/b.nc"
`), "scenes")
	if err != nil {
		t.Fatal(err)
	}
	if m.Proj != "+proj=utm +zone=14 +datum=WGS84" || len(m.Scene) != 2 {
		t.Fatalf("have %+v", m)
	}
	want := []ManifestEntry{
		{File: filepath.Join("scenes", "a.nc"), ERA5: "gs://era5/2019.nc"},
		{File: "/data/b.nc", Meteorology: filepath.Join("scenes", "met", "b.nc")},
	}
	for i, e := range want {
		if m.Scene[i] != e {
			t.Errorf("scene %d: have %+v, want %+v", i, m.Scene[i], e)
		}
	}

	for _, test := range []struct {
		name, manifest string
	}{
		{"empty", ``},
		{"no file", "[[Scene]]\nMeteorology = \"m.nc\"\n"},
		{"two sources", "[[Scene]]\nFile = \"a.nc\"\nMeteorology = \"m.nc\"\nERA5 = \"e.nc\"\n"},
		{"syntax", "[[Scene]\nFile = \"a.nc\"\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ReadManifest(strings.NewReader(test.manifest), ""); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFileCollection(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	testFiles(t, dir)

	c := &FileCollection{
		Manifest: &Manifest{Scene: []ManifestEntry{
			{File: filepath.Join(dir, "a.nc")},
			{File: filepath.Join(dir, "b.nc"), Meteorology: filepath.Join(dir, "met30.nc")},
		}},
		Default: sebal.Station{AirTemp: 20, WindSpeed: 2, RelHumid: 50, Rn24h: math.NaN(), Rs24h: 250},
	}
	ctx := context.Background()
	if c.Len() != 2 {
		t.Fatalf("length %d", c.Len())
	}
	for i, want := range []struct {
		id      string
		airTemp float64
	}{
		{"a", 20},
		{"b", 30},
	} {
		s, err := c.Scene(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		if s.ID != want.id || s.Sensor != sebal.Landsat8 || s.Scale != 30 {
			t.Errorf("scene %d: %s %v %g", i, s.ID, s.Sensor, s.Scale)
		}
		met, err := c.Sample(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if v := met.Value(sebal.BandAirTemp, 0); v != want.airTemp {
			t.Errorf("scene %s: air temperature %g, want %g", s.ID, v, want.airTemp)
		}
	}
	if _, err := c.Scene(ctx, 2); err == nil {
		t.Error("expected an out of range error")
	}

	t.Run("no default", func(t *testing.T) {
		c := &FileCollection{Manifest: &Manifest{Scene: []ManifestEntry{{File: filepath.Join(dir, "a.nc")}}}}
		s, err := c.Scene(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Sample(ctx, s); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("reloaded without sampling", func(t *testing.T) {
		for k := 0; k < 3; k++ {
			if _, err := c.Scene(ctx, 1); err != nil {
				t.Fatal(err)
			}
		}
		if len(c.loaded) != 2 {
			t.Errorf("%d scenes tracked, want 2", len(c.loaded))
		}
		s, err := c.Scene(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		met, err := c.Sample(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if v := met.Value(sebal.BandAirTemp, 0); v != 30 {
			t.Errorf("air temperature %g, want 30", v)
		}
	})
	t.Run("duplicate scene", func(t *testing.T) {
		c := &FileCollection{Manifest: &Manifest{Scene: []ManifestEntry{
			{File: filepath.Join(dir, "a.nc")},
			{File: filepath.Join(dir, "a.nc"), Meteorology: filepath.Join(dir, "met30.nc")},
		}}}
		if _, err := c.Scene(ctx, 0); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Scene(ctx, 1); err == nil {
			t.Error("expected a duplicate scene error")
		}
	})
	t.Run("missing file", func(t *testing.T) {
		c := &FileCollection{Manifest: &Manifest{Scene: []ManifestEntry{{File: filepath.Join(dir, "missing.nc")}}}}
		if _, err := c.Scene(ctx, 0); err == nil {
			t.Error("expected an error")
		}
	})
}
