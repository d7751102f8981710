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

import "math"

// LatentHeat returns the latent heat of vaporization [J kg-1] at
// temperature t [K].
func LatentHeat(t float64) float64 {
	return (2.501 - 0.002361*(t-kelvin)) * 1.e6
}

// Evapotranspiration returns a function that adds the latent heat flux,
// instantaneous evapotranspiration, evaporative fraction and daily
// evapotranspiration bands to a scene. met must carry the daily net
// radiation band.
func Evapotranspiration(met *Raster) SceneManipulator {
	return func(s *Scene) error {
		if err := checkGrid(s, met, "meteorology"); err != nil {
			return err
		}
		in, err := s.bands(BandRn, BandG, BandH, BandLSTDEM)
		if err != nil {
			return err
		}
		rn, g, h, lst := in[0], in[1], in[2], in[3]
		rn24, err := met.Band(BandRn24h)
		if err != nil {
			return err
		}

		le := s.NewBand(BandLE, "Latent heat flux", "W m-2")
		etInst := s.NewBand(BandETInst, "Instantaneous evapotranspiration", "mm h-1")
		ef := s.NewBand(BandEF, "Evaporative fraction", "-")
		et24 := s.NewBand(BandET24h, "Daily evapotranspiration", "mm d-1")

		return Pixels(func(_ *Scene, i int) {
			if math.IsNaN(rn[i]) || math.IsNaN(g[i]) || math.IsNaN(h[i]) || math.IsNaN(lst[i]) {
				return
			}
			avail := rn[i] - g[i]
			lambda := LatentHeat(lst[i])
			le[i] = math.Max(0, avail-math.Max(h[i], 0))
			etInst[i] = 3600 * le[i] / lambda
			if avail <= 0 {
				return // EF undefined
			}
			ef[i] = math.Min(math.Max(le[i]/avail, 0), 1)
			if math.IsNaN(rn24[i]) {
				return
			}
			et24[i] = math.Max(0, 86400*ef[i]*rn24[i]/(lambda*waterDensity)*1000)
		})(s)
	}
}
