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
	"math"
)

// checkGrid returns an error if r is not on the same grid as s.
func checkGrid(s *Scene, r *Raster, what string) error {
	if r == nil {
		return fmt.Errorf("sebal: scene %s: missing %s", s.ID, what)
	}
	if !s.Grid.SameAs(&r.Grid) {
		return fmt.Errorf("sebal: scene %s: %s grid %+v does not match scene grid %+v",
			s.ID, what, r.Grid, s.Grid)
	}
	return nil
}

// pixelSize returns the pixel edge lengths in meters.
func (s *Scene) pixelSize() (dx, dy float64) {
	if s.Scale > 0 {
		return s.Scale, s.Scale
	}
	return math.Abs(s.Dx), math.Abs(s.Dy)
}

// slopeAspect returns the terrain slope and aspect (clockwise from north)
// [rad] at pixel i using central differences where neighbors are
// available.
func slopeAspect(g *Grid, z []float64, dx, dy float64, i int) (slope, aspect float64) {
	row, col := g.RowCol(i)
	at := func(r, c int) float64 {
		if r < 0 || r >= g.Ny || c < 0 || c >= g.Nx {
			return z[i]
		}
		v := z[g.Index(r, c)]
		if math.IsNaN(v) {
			return z[i]
		}
		return v
	}
	dzdx := (at(row, col+1) - at(row, col-1)) / (2 * dx)
	dzdy := (at(row+1, col) - at(row-1, col)) / (2 * dy)
	slope = math.Atan(math.Hypot(dzdx, dzdy))
	if dzdx == 0 && dzdy == 0 {
		return 0, 0
	}
	aspect = math.Atan2(-dzdx, -dzdy) // downslope direction
	if aspect < 0 {
		aspect += 2 * math.Pi
	}
	return slope, aspect
}

// CorrectTemperature returns a function that adds the land surface
// temperature (LST), the elevation-adjusted land surface temperature
// (LST_DEM), the solar incidence cosine and the atmospheric
// transmissivity to a scene. dem must have an elevation band and met must
// have air temperature and relative humidity bands, both on the scene grid.
func (p Params) CorrectTemperature(dem, met *Raster) SceneManipulator {
	return func(s *Scene) error {
		if err := checkGrid(s, dem, "DEM"); err != nil {
			return err
		}
		if err := checkGrid(s, met, "meteorology"); err != nil {
			return err
		}
		if s.SunElevation <= 0 || s.SunElevation > 90 {
			return fmt.Errorf("sebal: scene %s: invalid sun elevation %g", s.ID, s.SunElevation)
		}
		in, err := s.bands(BandThermal, BandEmisNB, BandLongitude, BandLatitude)
		if err != nil {
			return err
		}
		tb, eNB, lon, lat := in[0], in[1], in[2], in[3]
		z, err := dem.Band(BandElevation)
		if err != nil {
			return err
		}
		mi, err := met.bands(BandAirTemp, BandRelHumid)
		if err != nil {
			return err
		}
		tAir, rh := mi[0], mi[1]

		lst := s.NewBand(BandLST, "Land surface temperature", "K")
		lstDEM := s.NewBand(BandLSTDEM, "Elevation-adjusted land surface temperature", "K")
		cosZn := s.NewBand(BandCosZenith, "Cosine of the solar incidence angle on the terrain", "-")
		tau := s.NewBand(BandTransm, "Broadband atmospheric transmissivity", "-")

		cosHor := math.Cos((90 - s.SunElevation) * deg2rad)
		doy := s.DayOfYear()
		dr := InverseRelativeDistance(doy)
		dec := Declination(doy)
		dx, dy := s.pixelSize()

		return Pixels(func(s *Scene, i int) {
			if math.IsNaN(tb[i]) || math.IsNaN(eNB[i]) || eNB[i] <= 0 {
				return
			}
			t := tb[i] / math.Pow(eNB[i], 0.25)
			if !(t > 0) || math.IsInf(t, 0) {
				return // non-physical
			}
			lst[i] = t

			if math.IsNaN(z[i]) || math.IsNaN(tAir[i]) || math.IsNaN(rh[i]) {
				return
			}
			pres := AtmosphericPressure(z[i])
			ea := SaturationVaporPressure(tAir[i]) * rh[i] / 100
			w := 0.14*ea*pres + 2.1
			tau[i] = Transmissivity(pres, w, cosHor)

			phi := lat[i] * deg2rad
			omega := HourAngle(s.Time, lon[i])
			slope, aspect := slopeAspect(&s.Grid, z, dx, dy, i)
			cosZn[i] = IncidenceCosine(phi, dec, omega, slope, aspect)

			rhoAir := 1000 * pres / (1.01 * t * 287)
			terrain := solarConstant * dr * tau[i] * (cosZn[i] - cosHor) / (rhoAir * cpAir * 0.050)
			v := t + p.LapseRate*z[i] - terrain
			if v > 0 && !math.IsInf(v, 0) {
				lstDEM[i] = v
			}
		})(s)
	}
}
