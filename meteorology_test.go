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
	"context"
	"math"
	"testing"
)

func TestWindAt2m(t *testing.T) {
	want := 5 * 4.87 / math.Log(672.58)
	if v := WindAt2m(3, 4); different(v, want, testTolerance) {
		t.Errorf("have %g, want %g", v, want)
	}
	if v := WindAt2m(3, 4); !(v < 5) {
		t.Errorf("wind at 2 m (%g) should be slower than at 10 m", v)
	}
}

func TestRelativeHumidity(t *testing.T) {
	if v := RelativeHumidity(20, 20); different(v, 100, testTolerance) {
		t.Errorf("saturated: have %g", v)
	}
	if v := RelativeHumidity(25, 10); !(v > 30 && v < 45) {
		t.Errorf("have %g", v)
	}
	// ea = q·P/0.622 at saturation.
	q := 0.622 * SaturationVaporPressure(20) / 101.3
	if v := RelativeHumiditySpecific(20, q, 101.3); different(v, 100, testTolerance) {
		t.Errorf("specific humidity: have %g", v)
	}
}

func TestInterpolate(t *testing.T) {
	if v := Interpolate(1, 3, 0.25); v != 1.5 {
		t.Errorf("have %g, want 1.5", v)
	}
}

func TestDailyNetRadiation(t *testing.T) {
	s := testScene("a")
	if err := s.Run(DefaultParams().DeriveIndices()); err != nil {
		t.Fatal(err)
	}
	met, err := testStation().Sample(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if met.HasBand(BandRn24h) {
		t.Fatal("station without Rn24h should not provide it")
	}
	if err := s.Run(DailyNetRadiation(met)); err != nil {
		t.Fatal(err)
	}
	albedo, _ := s.Band(BandAlbedo)
	lat, _ := s.Band(BandLatitude)
	rn24, _ := met.Band(BandRn24h)
	ra := ExtraterrestrialRadiation24h(lat[0], s.DayOfYear())
	want := (1-albedo[0])*300 - 110*300/ra
	if different(rn24[0], want, testTolerance) {
		t.Errorf("have %g, want %g", rn24[0], want)
	}

	t.Run("existing", func(t *testing.T) {
		st := testStation()
		st.Rn24h = 123
		met, _ := st.Sample(context.Background(), s)
		if err := s.Run(DailyNetRadiation(met)); err != nil {
			t.Fatal(err)
		}
		if v := met.Value(BandRn24h, 0); v != 123 {
			t.Errorf("have %g, want 123", v)
		}
	})
	t.Run("missing", func(t *testing.T) {
		st := testStation()
		st.Rs24h = math.NaN()
		met, _ := st.Sample(context.Background(), s)
		if err := s.Run(DailyNetRadiation(met)); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestRasterMeteorology(t *testing.T) {
	s := testScene("a")
	r, _ := testStation().Sample(context.Background(), s)
	m := RasterMeteorology{r}
	out, err := m.Sample(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	out.FillBand(BandRn24h, "", "", 1)
	if r.HasBand(BandRn24h) {
		t.Error("sample should be a copy")
	}
	g := testGrid()
	g.Nx = 3
	other := &Scene{Raster: NewRaster(g), ID: "b"}
	if _, err := m.Sample(context.Background(), other); err == nil {
		t.Error("expected a grid mismatch error")
	}
}
