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

// OutgoingLongwave returns the longwave radiation [W m-2] emitted by a
// surface with broadband emissivity e0 and temperature lst [K].
func OutgoingLongwave(e0, lst float64) float64 {
	return e0 * stefanBoltzmann * math.Pow(lst, 4)
}

// IncomingLongwave returns the longwave radiation [W m-2] emitted by the
// atmosphere, using the cold endmember temperature tCold [K] as a proxy
// for the near-surface air temperature (Bastiaanssen, 1995).
func IncomingLongwave(tau, tCold float64) float64 {
	return 0.85 * math.Pow(-math.Log(tau), 0.09) * stefanBoltzmann * math.Pow(tCold, 4)
}

// BalanceRadiation returns a function that adds the outgoing longwave,
// incoming shortwave, incoming longwave and net radiation bands to a
// scene. The cold endmember must already be stored in e.
func BalanceRadiation(e *Endmembers) SceneManipulator {
	return func(s *Scene) error {
		tCold := e.Cold.LST
		if !(tCold > 0) {
			return fmt.Errorf("sebal: scene %s: invalid cold endmember temperature %g", s.ID, tCold)
		}
		in, err := s.bands(BandEmis0, BandLSTDEM, BandAlbedo, BandCosZenith, BandTransm)
		if err != nil {
			return err
		}
		e0, lst, albedo, cosZn, tau := in[0], in[1], in[2], in[3], in[4]

		rlUp := s.NewBand(BandRlUp, "Outgoing longwave radiation", "W m-2")
		rsDown := s.NewBand(BandRsDown, "Incoming shortwave radiation", "W m-2")
		rlDown := s.NewBand(BandRlDown, "Incoming longwave radiation", "W m-2")
		rn := s.NewBand(BandRn, "Net radiation", "W m-2")
		dr := InverseRelativeDistance(s.DayOfYear())

		return Pixels(func(_ *Scene, i int) {
			if math.IsNaN(e0[i]) || math.IsNaN(lst[i]) || math.IsNaN(albedo[i]) ||
				math.IsNaN(cosZn[i]) || math.IsNaN(tau[i]) {
				return
			}
			rlUp[i] = OutgoingLongwave(e0[i], lst[i])
			rsDown[i] = solarConstant * math.Max(cosZn[i], 0) * tau[i] * dr
			rlDown[i] = IncomingLongwave(tau[i], tCold)
			rn[i] = (1-albedo[i])*rsDown[i] + rlDown[i] - rlUp[i] - (1-e0[i])*rlDown[i]
		})(s)
	}
}
