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
	"math"
	"time"

	"github.com/ctessum/geom"
)

// Point is a named location, in grid coordinates, at which a time series
// of scene values is extracted.
type Point struct {
	Name string
	X, Y float64
}

// PointValue holds the values of one processed scene at a point, keyed
// by band name and in the units of the band. Slope is in degrees. Masked
// values are left out.
type PointValue struct {
	Point  string
	Scene  string
	Time   string
	Values map[string]float64
}

// Bands extracted at points.
var (
	pointSceneBands = []string{BandET24h, BandNDVI, BandLST}
	pointMetBands   = []string{BandAirTemp, BandWindSpeed, BandRelHumid, BandPrecip, BandLastRain}
)

// PointValues returns the values of the scene in r at each of the points
// that fall within the scene grid. It returns nil if r holds an error.
func PointValues(r SceneResult, points []Point) []PointValue {
	if r.Err != nil || r.Scene == nil {
		return nil
	}
	s := r.Scene
	var o []PointValue
	for _, p := range points {
		i, ok := s.Pixel(geom.Point{X: p.X, Y: p.Y})
		if !ok {
			continue
		}
		v := PointValue{
			Point:  p.Name,
			Scene:  s.ID,
			Time:   s.Time.UTC().Format(time.RFC3339),
			Values: make(map[string]float64),
		}
		add := func(ras *Raster, names []string) {
			if ras == nil {
				return
			}
			for _, n := range names {
				b, err := ras.Band(n)
				if err != nil || math.IsNaN(b[i]) {
					continue
				}
				v.Values[n] = b[i]
			}
		}
		add(s.Raster, pointSceneBands)
		add(r.Meteorology, pointMetBands)
		add(r.DEM, []string{BandElevation})
		if _, ok := v.Values[BandElevation]; ok {
			z, _ := r.DEM.Band(BandElevation)
			dx, dy := s.pixelSize()
			slope, _ := slopeAspect(&s.Grid, z, dx, dy, i)
			v.Values[BandSlope] = slope / deg2rad
		}
		o = append(o, v)
	}
	return o
}
