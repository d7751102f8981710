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
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/cdf"
)

// Sensor identifies the instrument a scene was acquired with.
type Sensor int

// Supported sensors.
const (
	Landsat5 Sensor = 5
	Landsat7 Sensor = 7
	Landsat8 Sensor = 8
	Landsat9 Sensor = 9
)

func (s Sensor) String() string {
	switch s {
	case Landsat5, Landsat7, Landsat8, Landsat9:
		return fmt.Sprintf("Landsat%d", int(s))
	default:
		return fmt.Sprintf("Sensor(%d)", int(s))
	}
}

// ParseSensor returns the sensor with the given name, e.g. "Landsat8",
// "LANDSAT_8" or "L8".
func ParseSensor(name string) (Sensor, error) {
	n := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	switch n {
	case "LANDSAT5", "L5", "LT05":
		return Landsat5, nil
	case "LANDSAT7", "L7", "LE07":
		return Landsat7, nil
	case "LANDSAT8", "L8", "LC08":
		return Landsat8, nil
	case "LANDSAT9", "L9", "LC09":
		return Landsat9, nil
	}
	return 0, fmt.Errorf("sebal: unknown sensor %q", name)
}

// Scene is a single satellite image. Bands are added as the scene is
// processed; the metadata do not change.
type Scene struct {
	*Raster

	ID           string
	Time         time.Time // acquisition time
	SunElevation float64   // [degrees]
	SunAzimuth   float64   // [degrees]
	Sensor       Sensor
	Scale        float64 // nominal pixel size [m]
}

// ReadScene reads a scene from a NetCDF file.
func ReadScene(rw cdf.ReaderWriterAt) (*Scene, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("sebal.ReadScene: %v", err)
	}
	r, err := readRaster(f)
	if err != nil {
		return nil, err
	}
	s := &Scene{Raster: r}
	s.ID, _ = f.Header.GetAttribute("", "scene_id").(string)
	t, _ := f.Header.GetAttribute("", "time").(string)
	if s.Time, err = time.Parse(time.RFC3339, t); err != nil {
		return nil, fmt.Errorf("sebal.ReadScene: scene %s: %v", s.ID, err)
	}
	sensor, _ := f.Header.GetAttribute("", "sensor").(string)
	if s.Sensor, err = ParseSensor(sensor); err != nil {
		return nil, fmt.Errorf("sebal.ReadScene: scene %s: %v", s.ID, err)
	}
	for _, a := range []struct {
		name string
		v    *float64
	}{
		{"sun_elevation", &s.SunElevation},
		{"sun_azimuth", &s.SunAzimuth},
		{"scale", &s.Scale},
	} {
		v, ok := f.Header.GetAttribute("", a.name).([]float64)
		if !ok || len(v) == 0 {
			return nil, fmt.Errorf("sebal.ReadScene: scene %s: missing attribute %s", s.ID, a.name)
		}
		*a.v = v[0]
	}
	return s, nil
}

// Write writes the scene, including its metadata, to NetCDF file w.
func (s *Scene) Write(w *os.File) error {
	return s.Raster.write(w, map[string]interface{}{
		"scene_id":      s.ID,
		"time":          s.Time.UTC().Format(time.RFC3339),
		"sensor":        s.Sensor.String(),
		"sun_elevation": []float64{s.SunElevation},
		"sun_azimuth":   []float64{s.SunAzimuth},
		"scale":         []float64{s.Scale},
	})
}

// DayOfYear returns the day of year of the acquisition.
func (s *Scene) DayOfYear() int { return s.Time.YearDay() }

// SceneManipulator is a function that operates on a scene.
type SceneManipulator func(s *Scene) error

// PixelFunc is a function that operates on pixel i of a scene. A PixelFunc
// may only write to element i of bands that existed before it was called.
type PixelFunc func(s *Scene, i int)

// Pixels returns a function that concurrently runs a series of calculations
// on all of the pixels of a scene.
func Pixels(calculators ...PixelFunc) SceneManipulator {
	nprocs := runtime.GOMAXPROCS(0) // number of processors

	return func(s *Scene) error {
		n := s.Len()
		var wg sync.WaitGroup
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				for i := pp; i < n; i += nprocs {
					for _, f := range calculators {
						f(s, i)
					}
				}
				wg.Done()
			}(pp)
		}
		wg.Wait()
		return nil
	}
}

// Run runs the manipulators on s in order, stopping at the first error.
func (s *Scene) Run(manipulators ...SceneManipulator) error {
	for _, f := range manipulators {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}
