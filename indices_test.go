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

func TestClassify(t *testing.T) {
	if Classify(-0.1) != BareOrWater {
		t.Error("negative NDVI should be bare or water")
	}
	if Classify(0) != Vegetated || Classify(0.8) != Vegetated {
		t.Error("non-negative NDVI should be vegetated")
	}
	eNB, e0 := BareOrWater.Emissivity(2)
	if eNB != 0.99 || e0 != 0.985 {
		t.Errorf("water emissivity: %g, %g", eNB, e0)
	}
	eNB, e0 = Vegetated.Emissivity(4)
	if eNB != 0.98 || e0 != 0.98 {
		t.Errorf("dense vegetation emissivity: %g, %g", eNB, e0)
	}
	eNB, e0 = Vegetated.Emissivity(1)
	if different(eNB, 0.9733, testTolerance) || different(e0, 0.96, testTolerance) {
		t.Errorf("sparse vegetation emissivity: %g, %g", eNB, e0)
	}
}

func TestSpectralIndices(t *testing.T) {
	s := testScene("a")
	nir, _ := s.Band(BandNIR)
	red, _ := s.Band(BandRed)
	nir[3] = math.NaN()
	red[4], nir[4] = 0, 0

	if err := s.Run(DefaultParams().DeriveIndices()); err != nil {
		t.Fatal(err)
	}
	ndvi, _ := s.Band(BandNDVI)
	savi, _ := s.Band(BandSAVI)
	albedo, _ := s.Band(BandAlbedo)
	lon, _ := s.Band(BandLongitude)
	lat, _ := s.Band(BandLatitude)

	// Westernmost column.
	if different(ndvi[0], 0.05/0.45, testTolerance) {
		t.Errorf("ndvi: have %g, want %g", ndvi[0], 0.05/0.45)
	}
	if different(savi[0], 1.5*0.05/0.95, testTolerance) {
		t.Errorf("savi: have %g, want %g", savi[0], 1.5*0.05/0.95)
	}
	wantAlbedo := 0.130*0.04 + 0.115*0.05 + 0.143*0.08 + 0.180*0.2 + 0.281*0.25 + 0.108*0.2 + 0.042*0.15
	if different(albedo[0], wantAlbedo, testTolerance) {
		t.Errorf("albedo: have %g, want %g", albedo[0], wantAlbedo)
	}
	if different(lon[0], -99.9995, testTolerance) || different(lat[0], 40.0005, testTolerance) {
		t.Errorf("geolocation: have %g, %g", lon[0], lat[0])
	}

	for _, b := range []string{BandNDVI, BandSAVI, BandLAI, BandEmisNB, BandEmis0} {
		v := s.Value(b, 3)
		if !math.IsNaN(v) {
			t.Errorf("%s should be masked where NIR is masked but is %g", b, v)
		}
		if v = s.Value(b, 4); !math.IsNaN(v) {
			t.Errorf("%s should be masked where NIR+R is zero but is %g", b, v)
		}
	}
	if !math.IsNaN(albedo[3]) {
		t.Error("albedo should be masked where NIR is masked")
	}
}

func TestAlbedoUnknownSensor(t *testing.T) {
	s := testScene("a")
	s.Sensor = Sensor(4)
	if err := s.Run(Albedo()); err == nil {
		t.Error("expected an error")
	}
}
