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

	"github.com/ctessum/geom/proj"
)

// wgs84 is the spatial reference of the longitude and latitude bands.
const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// ndviEpsilon is the smallest NIR + R sum for which NDVI is calculated.
const ndviEpsilon = 1.e-10

// SurfaceClass is the land cover type that selects the emissivity and
// soil heat flux formulas used for a pixel.
type SurfaceClass int

const (
	// Vegetated surfaces have NDVI >= 0.
	Vegetated SurfaceClass = iota
	// BareOrWater surfaces have NDVI < 0.
	BareOrWater
)

func (c SurfaceClass) String() string {
	if c == BareOrWater {
		return "BareOrWater"
	}
	return "Vegetated"
}

// Classify returns the surface class of a pixel with the given NDVI.
func Classify(ndvi float64) SurfaceClass {
	if ndvi < 0 {
		return BareOrWater
	}
	return Vegetated
}

// Emissivity returns the narrow-band (eNB) and broadband (e0) surface
// emissivities for leaf area index lai.
func (c SurfaceClass) Emissivity(lai float64) (eNB, e0 float64) {
	switch c {
	case BareOrWater:
		return 0.99, 0.985
	default:
		if lai >= 3 {
			return 0.98, 0.98
		}
		return 0.97 + 0.0033*lai, 0.95 + 0.01*lai
	}
}

// leafAreaIndex calculates LAI from SAVI (Allen et al., 2002).
func leafAreaIndex(savi float64) float64 {
	if savi <= 0.1 {
		return 0
	}
	// The relation saturates at SAVI = 0.69.
	savi = math.Min(savi, 0.689)
	lai := -math.Log((0.69-savi)/0.59) / 0.91
	return math.Max(lai, 0)
}

// SpectralIndices returns a function that adds the NDVI, SAVI, LAI and
// emissivity bands to a scene.
func (p Params) SpectralIndices() SceneManipulator {
	return func(s *Scene) error {
		in, err := s.bands(BandRed, BandNIR)
		if err != nil {
			return err
		}
		red, nir := in[0], in[1]
		ndvi := s.NewBand(BandNDVI, "Normalized difference vegetation index", "-")
		savi := s.NewBand(BandSAVI, "Soil-adjusted vegetation index", "-")
		lai := s.NewBand(BandLAI, "Leaf area index", "m2 m-2")
		eNB := s.NewBand(BandEmisNB, "Narrow-band surface emissivity", "-")
		e0 := s.NewBand(BandEmis0, "Broadband surface emissivity", "-")
		L := p.SAVIL

		return Pixels(func(_ *Scene, i int) {
			r, n := red[i], nir[i]
			if math.IsNaN(r) || math.IsNaN(n) || math.Abs(n+r) < ndviEpsilon {
				return
			}
			ndvi[i] = (n - r) / (n + r)
			savi[i] = (1 + L) * (n - r) / (L + n + r)
			lai[i] = leafAreaIndex(savi[i])
			eNB[i], e0[i] = Classify(ndvi[i]).Emissivity(lai[i])
		})(s)
	}
}

// albedoCoefficients are the weights of each reflectance band in the
// broadband albedo (Tasumi et al., 2008).
var albedoCoefficients = map[Sensor][]struct {
	band string
	w    float64
}{
	Landsat5: {{BandBlue, 0.254}, {BandGreen, 0.149}, {BandRed, 0.147},
		{BandNIR, 0.311}, {BandSWIR1, 0.103}, {BandSWIR2, 0.036}},
	Landsat7: {{BandBlue, 0.254}, {BandGreen, 0.149}, {BandRed, 0.147},
		{BandNIR, 0.311}, {BandSWIR1, 0.103}, {BandSWIR2, 0.036}},
	Landsat8: {{BandUltraBlue, 0.130}, {BandBlue, 0.115}, {BandGreen, 0.143},
		{BandRed, 0.180}, {BandNIR, 0.281}, {BandSWIR1, 0.108}, {BandSWIR2, 0.042}},
	Landsat9: {{BandUltraBlue, 0.130}, {BandBlue, 0.115}, {BandGreen, 0.143},
		{BandRed, 0.180}, {BandNIR, 0.281}, {BandSWIR1, 0.108}, {BandSWIR2, 0.042}},
}

// Albedo returns a function that adds the broadband surface albedo band
// to a scene.
func Albedo() SceneManipulator {
	return func(s *Scene) error {
		coefs, ok := albedoCoefficients[s.Sensor]
		if !ok {
			return fmt.Errorf("sebal: no albedo coefficients for sensor %v", s.Sensor)
		}
		bands := make([][]float64, len(coefs))
		for j, c := range coefs {
			var err error
			if bands[j], err = s.Band(c.band); err != nil {
				return err
			}
		}
		albedo := s.NewBand(BandAlbedo, "Broadband surface albedo", "-")
		return Pixels(func(_ *Scene, i int) {
			var a float64
			for j, c := range coefs {
				a += c.w * bands[j][i]
			}
			albedo[i] = a // NaN if any band is masked
		})(s)
	}
}

// LonLat returns the longitude and latitude [degrees] of the center of
// each pixel of g.
func LonLat(g *Grid) (lon, lat []float64, err error) {
	var t proj.Transformer
	if g.Proj != "" {
		src, err := proj.Parse(g.Proj)
		if err != nil {
			return nil, nil, fmt.Errorf("sebal: while parsing grid projection: %v", err)
		}
		dst, err := proj.Parse(wgs84)
		if err != nil {
			return nil, nil, fmt.Errorf("sebal: while parsing WGS84 projection: %v", err)
		}
		if t, err = src.NewTransform(dst); err != nil {
			return nil, nil, fmt.Errorf("sebal: while creating geolocation transform: %v", err)
		}
	}
	lon = make([]float64, g.Len())
	lat = make([]float64, g.Len())
	for i := range lon {
		c := g.Center(i)
		if t == nil {
			lon[i], lat[i] = c.X, c.Y
			continue
		}
		if lon[i], lat[i], err = t(c.X, c.Y); err != nil {
			return nil, nil, fmt.Errorf("sebal: geolocating pixel %d: %v", i, err)
		}
	}
	return lon, lat, nil
}

// Geolocation returns a function that adds the longitude and latitude
// of each pixel center to a scene.
func Geolocation() SceneManipulator {
	return func(s *Scene) error {
		lon, lat, err := LonLat(&s.Grid)
		if err != nil {
			return err
		}
		copy(s.NewBand(BandLongitude, "Pixel center longitude", "degrees"), lon)
		copy(s.NewBand(BandLatitude, "Pixel center latitude", "degrees"), lat)
		return nil
	}
}

// DeriveIndices returns a function that adds the spectral index, albedo
// and geolocation bands to a scene.
func (p Params) DeriveIndices() SceneManipulator {
	return func(s *Scene) error {
		return s.Run(p.SpectralIndices(), Albedo(), Geolocation())
	}
}
