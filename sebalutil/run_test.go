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
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/sebal"
)

func testGrid() sebal.Grid {
	return sebal.Grid{X0: -100, Y0: 40, Dx: 0.001, Dy: 0.001, Nx: 10, Ny: 8}
}

// testScene returns a synthetic Landsat 8 scene that goes from bare and
// hot in the west to vegetated and cool in the east. If uniform is true,
// every pixel is the same.
func testScene(id string, uniform bool) *sebal.Scene {
	g := testGrid()
	s := &sebal.Scene{
		Raster:       sebal.NewRaster(g),
		ID:           id,
		Time:         time.Date(2019, time.July, 1, 17, 30, 0, 0, time.UTC),
		SunElevation: 65,
		SunAzimuth:   120,
		Sensor:       sebal.Landsat8,
		Scale:        30,
	}
	ub := s.NewBand(sebal.BandUltraBlue, "Ultra blue reflectance", "-")
	b := s.NewBand(sebal.BandBlue, "Blue reflectance", "-")
	gr := s.NewBand(sebal.BandGreen, "Green reflectance", "-")
	r := s.NewBand(sebal.BandRed, "Red reflectance", "-")
	nir := s.NewBand(sebal.BandNIR, "Near infrared reflectance", "-")
	sw1 := s.NewBand(sebal.BandSWIR1, "Shortwave infrared 1 reflectance", "-")
	sw2 := s.NewBand(sebal.BandSWIR2, "Shortwave infrared 2 reflectance", "-")
	t := s.NewBand(sebal.BandThermal, "Brightness temperature", "K")
	for i := range t {
		row, col := g.RowCol(i)
		if uniform {
			row, col = 0, 0
		}
		w := float64(col) / float64(g.Nx-1)
		ub[i], b[i], gr[i] = 0.04, 0.05, 0.08
		r[i] = 0.2 - 0.16*w
		nir[i] = 0.25 + 0.15*w
		sw1[i] = 0.2 - 0.1*w
		sw2[i] = 0.15 - 0.1*w
		t[i] = 315 - 20*w + 0.1*float64(row)
	}
	return s
}

// testMeteorology returns a meteorology raster on the test grid.
func testMeteorology(airTemp float64) *sebal.Raster {
	r := sebal.NewRaster(testGrid())
	r.FillBand(sebal.BandAirTemp, "Air temperature", "°C", airTemp)
	r.FillBand(sebal.BandWindSpeed, "Wind speed at 2 m", "m s-1", 3)
	r.FillBand(sebal.BandRelHumid, "Relative humidity", "%", 40)
	r.FillBand(sebal.BandRs24h, "Daily incoming shortwave radiation", "W m-2", 300)
	return r
}

// testFiles writes scene files "a.nc", "b.nc" and "u.nc" (uniform), a
// meteorology file "met.nc" and a DEM file "dem.nc" to dir.
func testFiles(t *testing.T, dir string) {
	write := func(name string, w func(f *os.File) error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := w(f); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range []*sebal.Scene{testScene("a", false), testScene("b", false), testScene("u", true)} {
		write(s.ID+".nc", s.Write)
	}
	write("met.nc", testMeteorology(25).Write)
	write("met30.nc", testMeteorology(30).Write)

	dem := sebal.NewRaster(sebal.Grid{X0: -100.01, Y0: 39.99, Dx: 0.005, Dy: 0.005, Nx: 10, Ny: 10})
	dem.FillBand(sebal.BandElevation, "Elevation", "m", 500)
	write("dem.nc", dem.Write)
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "sebalutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunAggregate(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	testFiles(t, dir)

	manifest := `
[[Scene]]
File = "a.nc"

[[Scene]]
File = "u.nc"

[[Scene]]
File = "b.nc"
Meteorology = "met30.nc"
`
	if err := ioutil.WriteFile(filepath.Join(dir, "manifest.toml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	config := `
Manifest = "` + filepath.Join(dir, "manifest.toml") + `"
DEMFile = "` + filepath.Join(dir, "dem.nc") + `"
MeteorologyFile = "` + filepath.Join(dir, "met.nc") + `"
OutputFile = "` + filepath.Join(dir, "aggregate.shp") + `"
SummaryFile = "` + filepath.Join(dir, "aggregate.toml") + `"
Workers = 2

[OutputVariables]
ET = "ET_24h"
Count = "N"

[Points]
Field = "-99.9955, 40.0035"
`
	cfgFile := filepath.Join(dir, "config.toml")
	if err := ioutil.WriteFile(cfgFile, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	Cfg.Set("config", cfgFile)
	Root.SetArgs([]string{"aggregate"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, ext := range []string{".shp", ".dbf", ".prj", ".log"} {
		if _, err := os.Stat(filepath.Join(dir, "aggregate"+ext)); err != nil {
			t.Error(err)
		}
	}
	var sum Summary
	if _, err := toml.DecodeFile(filepath.Join(dir, "aggregate.toml"), &sum); err != nil {
		t.Fatal(err)
	}
	if len(sum.Scenes) != 2 || sum.Scenes[0].ID != "a" || sum.Scenes[1].ID != "b" {
		t.Errorf("scenes: %+v", sum.Scenes)
	}
	if len(sum.Skipped) != 1 || sum.Skipped[0].ID != "u" {
		t.Errorf("skipped: %+v", sum.Skipped)
	}
	if sum.ValidPixels == 0 || !(sum.MeanET > 0) || sum.Version != sebal.Version {
		t.Errorf("summary: %+v", sum)
	}
	if len(sum.Series) != 2 {
		t.Fatalf("series: %+v", sum.Series)
	}
	for i, want := range []struct {
		scene   string
		airTemp float64
	}{{"a", 25}, {"b", 30}} {
		v := sum.Series[i]
		if v.Point != "field" || v.Scene != want.scene || v.Values[sebal.BandAirTemp] != want.airTemp ||
			v.Values[sebal.BandElevation] != 500 || !(v.Values[sebal.BandET24h] > 0) {
			t.Errorf("series %d: %+v", i, v)
		}
	}
	Cfg.Set("config", "")
}

func TestRunScene(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	testFiles(t, dir)

	Cfg.Set("SceneFile", filepath.Join(dir, "a.nc"))
	Cfg.Set("DEMFile", filepath.Join(dir, "dem.nc"))
	Cfg.Set("MeteorologyFile", filepath.Join(dir, "met.nc"))
	Cfg.Set("ERA5File", "")
	Cfg.Set("OutputFile", filepath.Join(dir, "scene.nc"))
	Cfg.Set("SummaryFile", filepath.Join(dir, "scene.toml"))
	Cfg.Set("LogFile", "")
	Cfg.Set("OutputVariables", map[string]string{"ET": "ET_24h", "EF": "EF", "ETin": "inches(ET)"})
	Root.SetArgs([]string{"scene"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scene.log")); err != nil {
		t.Error(err)
	}

	f, err := os.Open(filepath.Join(dir, "scene.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := sebal.ReadRaster(f)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range []string{"ET", "EF", "ETin"} {
		if !r.HasBand(b) {
			t.Errorf("missing output variable %s", b)
		}
	}
	et, _ := r.Band("ET")
	etin, _ := r.Band("ETin")
	for i := range et {
		if !math.IsNaN(et[i]) && different(etin[i], et[i]/25.4, 1.e-6) {
			t.Errorf("pixel %d: %g mm is not %g in", i, et[i], etin[i])
		}
	}

	var sum Summary
	if _, err := toml.DecodeFile(filepath.Join(dir, "scene.toml"), &sum); err != nil {
		t.Fatal(err)
	}
	if len(sum.Scenes) != 1 || sum.Scenes[0].ID != "a" || sum.ValidPixels == 0 {
		t.Errorf("summary: %+v", sum)
	}
	if !(sum.Scenes[0].Cold.LST < sum.Scenes[0].Hot.LST) {
		t.Errorf("endmembers: cold %g K, hot %g K", sum.Scenes[0].Cold.LST, sum.Scenes[0].Hot.LST)
	}

	t.Run("no meteorology", func(t *testing.T) {
		Cfg.Set("MeteorologyFile", "")
		defer Cfg.Set("MeteorologyFile", filepath.Join(dir, "met.nc"))
		Root.SetArgs([]string{"scene"})
		if err := Root.Execute(); err == nil {
			t.Error("expected an error")
		}
	})
	t.Run("both meteorology sources", func(t *testing.T) {
		Cfg.Set("ERA5File", filepath.Join(dir, "era5.nc"))
		defer Cfg.Set("ERA5File", "")
		Root.SetArgs([]string{"scene"})
		if err := Root.Execute(); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestRunAggregateNoUsableScenes(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	testFiles(t, dir)
	manifest := filepath.Join(dir, "manifest.toml")
	if err := ioutil.WriteFile(manifest, []byte("[[Scene]]\nFile = \"u.nc\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s := Settings{
		OutputFile:      filepath.Join(dir, "out.nc"),
		SummaryFile:     filepath.Join(dir, "out.toml"),
		OutputVariables: map[string]string{"ET": "ET_24h"},
		DEMFile:         filepath.Join(dir, "dem.nc"),
		DEMCacheSize:    1,
		MeteorologyFile: filepath.Join(dir, "met.nc"),
		Workers:         1,
		Params:          sebal.DefaultParams(),
	}
	err := RunAggregate(context.Background(), ioutil.Discard, manifest, s)
	if !errors.Is(err, sebal.ErrNoUsableScenes) {
		t.Fatalf("have error %v", err)
	}
	var sum Summary
	if _, err := toml.DecodeFile(s.SummaryFile, &sum); err != nil {
		t.Fatal(err)
	}
	if len(sum.Skipped) != 1 || sum.Skipped[0].ID != "u" {
		t.Errorf("skipped: %+v", sum.Skipped)
	}
}
