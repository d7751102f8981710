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
	"fmt"
	"math"
)

// DEMSource provides terrain elevation.
type DEMSource interface {
	// Elevation returns a raster on grid g with an elevation band [m].
	Elevation(ctx context.Context, g *Grid) (*Raster, error)
}

// MeteorologySource provides the near-surface meteorology at the time of
// a scene.
type MeteorologySource interface {
	// Sample returns a raster on the scene grid with air temperature [°C],
	// wind speed at 2 m [m s-1], relative humidity [%] and either daily
	// net radiation or daily shortwave radiation [W m-2].
	Sample(ctx context.Context, s *Scene) (*Raster, error)
}

// RasterDEM is a DEMSource backed by an elevation raster that already
// matches the scene grid.
type RasterDEM struct {
	*Raster
}

// Elevation implements DEMSource.
func (d RasterDEM) Elevation(_ context.Context, g *Grid) (*Raster, error) {
	if d.Raster == nil || !d.Grid.SameAs(g) {
		return nil, fmt.Errorf("sebal: DEM grid does not match requested grid %+v", *g)
	}
	if !d.HasBand(BandElevation) {
		return nil, fmt.Errorf("sebal: DEM has no %s band", BandElevation)
	}
	return d.Raster, nil
}

// FlatDEM is a DEMSource with the same elevation everywhere.
type FlatDEM float64

// Elevation implements DEMSource.
func (d FlatDEM) Elevation(_ context.Context, g *Grid) (*Raster, error) {
	r := NewRaster(*g)
	r.FillBand(BandElevation, "Elevation", "m", float64(d))
	return r, nil
}

// RasterMeteorology is a MeteorologySource backed by a raster that
// already matches the scene grid.
type RasterMeteorology struct {
	*Raster
}

// Sample implements MeteorologySource. The returned raster is a copy, so
// bands added while processing a scene do not affect other scenes.
func (m RasterMeteorology) Sample(_ context.Context, s *Scene) (*Raster, error) {
	if err := checkGrid(s, m.Raster, "meteorology"); err != nil {
		return nil, err
	}
	return m.Copy(), nil
}

// Station is a MeteorologySource with the same weather station values
// for every pixel. Rn24h or Rs24h may be NaN, in which case it is
// calculated or ignored by DailyNetRadiation.
type Station struct {
	AirTemp   float64 // [°C]
	WindSpeed float64 // at 2 m [m s-1]
	RelHumid  float64 // [%]
	Rn24h     float64 // [W m-2]
	Rs24h     float64 // [W m-2]
}

// Sample implements MeteorologySource.
func (st Station) Sample(_ context.Context, s *Scene) (*Raster, error) {
	r := NewRaster(s.Grid)
	r.FillBand(BandAirTemp, "Air temperature", "°C", st.AirTemp)
	r.FillBand(BandWindSpeed, "Wind speed at 2 m", "m s-1", st.WindSpeed)
	r.FillBand(BandRelHumid, "Relative humidity", "%", st.RelHumid)
	if !math.IsNaN(st.Rn24h) {
		r.FillBand(BandRn24h, "Daily net radiation", "W m-2", st.Rn24h)
	}
	if !math.IsNaN(st.Rs24h) {
		r.FillBand(BandRs24h, "Daily incoming shortwave radiation", "W m-2", st.Rs24h)
	}
	return r, nil
}

// WindAt2m returns the wind speed [m s-1] at 2 m given the wind vector
// components u and v at 10 m, using the FAO-56 logarithmic profile.
func WindAt2m(u, v float64) float64 {
	return math.Hypot(u, v) * 4.87 / math.Log(67.8*10-5.42)
}

// RelativeHumidity returns the relative humidity [%] given the air
// temperature and dewpoint temperature [°C].
func RelativeHumidity(t, dewpoint float64) float64 {
	return math.Min(100*SaturationVaporPressure(dewpoint)/SaturationVaporPressure(t), 100)
}

// RelativeHumiditySpecific returns the relative humidity [%] given the air
// temperature [°C], specific humidity q [kg kg-1] and surface pressure p
// [kPa].
func RelativeHumiditySpecific(t, q, p float64) float64 {
	ea := q * p / 0.622
	return math.Min(100*ea/SaturationVaporPressure(t), 100)
}

// Interpolate linearly interpolates between the value before and after
// an event, where frac is the fraction of the interval that has passed.
func Interpolate(before, after, frac float64) float64 {
	return before + (after-before)*frac
}

// DailyNetRadiationBruin returns the daily net radiation [W m-2] from the
// broadband albedo, daily incoming shortwave radiation rs24 and daily
// extraterrestrial radiation ra24 (de Bruin, 1987).
func DailyNetRadiationBruin(albedo, rs24, ra24 float64) float64 {
	return (1-albedo)*rs24 - 110*rs24/ra24
}

// DailyNetRadiation returns a function that adds a daily net radiation
// band to met if it does not already have one, calculated from the scene
// albedo and the daily shortwave radiation band. The daily
// extraterrestrial radiation is calculated from the scene latitude if met
// does not carry it.
func DailyNetRadiation(met *Raster) SceneManipulator {
	return func(s *Scene) error {
		if err := checkGrid(s, met, "meteorology"); err != nil {
			return err
		}
		if met.HasBand(BandRn24h) {
			return nil
		}
		rs24, err := met.Band(BandRs24h)
		if err != nil {
			return fmt.Errorf("sebal: scene %s: meteorology needs %s or %s", s.ID, BandRn24h, BandRs24h)
		}
		in, err := s.bands(BandAlbedo, BandLatitude)
		if err != nil {
			return err
		}
		albedo, lat := in[0], in[1]
		if !met.HasBand(BandRa24h) {
			ra := met.NewBand(BandRa24h, "Daily extraterrestrial radiation", "W m-2")
			doy := s.DayOfYear()
			if err := Pixels(func(_ *Scene, i int) {
				if !math.IsNaN(lat[i]) {
					ra[i] = ExtraterrestrialRadiation24h(lat[i], doy)
				}
			})(s); err != nil {
				return err
			}
		}
		ra24, err := met.Band(BandRa24h)
		if err != nil {
			return err
		}
		rn24 := met.NewBand(BandRn24h, "Daily net radiation", "W m-2")
		return Pixels(func(_ *Scene, i int) {
			if math.IsNaN(albedo[i]) || math.IsNaN(rs24[i]) || !(ra24[i] > 0) {
				return
			}
			rn24[i] = DailyNetRadiationBruin(albedo[i], rs24[i], ra24[i])
		})(s)
	}
}
