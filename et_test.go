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
	"testing"
)

func TestEvapotranspiration(t *testing.T) {
	g := Grid{Dx: 1, Dy: 1, Nx: 4, Ny: 1}
	s := &Scene{Raster: NewRaster(g), ID: "et"}
	rn := s.NewBand(BandRn, "", "")
	gf := s.NewBand(BandG, "", "")
	h := s.NewBand(BandH, "", "")
	lst := s.NewBand(BandLSTDEM, "", "")
	copy(rn, []float64{500, 100, 500, 500})
	copy(gf, []float64{100, 120, 100, 100})
	copy(h, []float64{100, 0, 600, -50})
	copy(lst, []float64{300, 300, 300, math.NaN()})
	met := NewRaster(g)
	met.FillBand(BandRn24h, "", "", 150)

	if err := s.Run(Evapotranspiration(met)); err != nil {
		t.Fatal(err)
	}
	le, _ := s.Band(BandLE)
	etInst, _ := s.Band(BandETInst)
	ef, _ := s.Band(BandEF)
	et24, _ := s.Band(BandET24h)
	lambda := (2.501 - 0.002361*(300-273.15)) * 1.e6

	t.Run("normal", func(t *testing.T) {
		if different(le[0], 300, testTolerance) {
			t.Errorf("LE: have %g, want 300", le[0])
		}
		if different(etInst[0], 3600*300/lambda, testTolerance) {
			t.Errorf("ET_inst: have %g, want %g", etInst[0], 3600*300/lambda)
		}
		if different(ef[0], 0.75, testTolerance) {
			t.Errorf("EF: have %g, want 0.75", ef[0])
		}
		want := 86400 * 0.75 * 150 / lambda
		if different(et24[0], want, testTolerance) {
			t.Errorf("ET_24h: have %g, want %g", et24[0], want)
		}
	})
	t.Run("no available energy", func(t *testing.T) {
		if !math.IsNaN(ef[1]) || !math.IsNaN(et24[1]) {
			t.Errorf("EF and ET_24h should be masked: %g, %g", ef[1], et24[1])
		}
		if le[1] != 0 {
			t.Errorf("LE should be zero but is %g", le[1])
		}
	})
	t.Run("sensible exceeds available", func(t *testing.T) {
		if le[2] != 0 || ef[2] != 0 || et24[2] != 0 {
			t.Errorf("LE, EF, ET_24h should be zero: %g, %g, %g", le[2], ef[2], et24[2])
		}
	})
	t.Run("masked", func(t *testing.T) {
		for _, v := range []float64{le[3], etInst[3], ef[3], et24[3]} {
			if !math.IsNaN(v) {
				t.Errorf("should be masked but is %g", v)
			}
		}
	})
}

func TestLatentHeat(t *testing.T) {
	if different(LatentHeat(273.15), 2.501e6, testTolerance) {
		t.Errorf("have %g", LatentHeat(273.15))
	}
	if !(LatentHeat(310) < LatentHeat(290)) {
		t.Error("latent heat should decrease with temperature")
	}
}
