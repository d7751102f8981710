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

// SoilHeatRatio returns the ratio of soil heat flux to net radiation
// (Bastiaanssen, 2000) for a surface with temperature lst [K], broadband
// albedo and NDVI.
func (c SurfaceClass) SoilHeatRatio(lst, albedo, ndvi float64) float64 {
	switch c {
	case BareOrWater:
		return 0.5
	default:
		return (lst - kelvin) * (0.0038 + 0.0074*albedo) * (1 - 0.98*math.Pow(ndvi, 4))
	}
}

// SoilHeatFlux returns a function that adds the soil heat flux band to a
// scene.
func SoilHeatFlux() SceneManipulator {
	return func(s *Scene) error {
		in, err := s.bands(BandRn, BandLSTDEM, BandAlbedo, BandNDVI)
		if err != nil {
			return err
		}
		rn, lst, albedo, ndvi := in[0], in[1], in[2], in[3]
		g := s.NewBand(BandG, "Soil heat flux", "W m-2")
		return Pixels(func(_ *Scene, i int) {
			if math.IsNaN(rn[i]) || math.IsNaN(lst[i]) || math.IsNaN(albedo[i]) || math.IsNaN(ndvi[i]) {
				return
			}
			g[i] = rn[i] * Classify(ndvi[i]).SoilHeatRatio(lst[i], albedo[i], ndvi[i])
		})(s)
	}
}
