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

package era5

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sebal"
)

// Variable names in ERA5 single-level files.
const (
	AirTemp   = "t2m"  // 2 m temperature
	Dewpoint  = "d2m"  // 2 m dewpoint temperature
	WindU     = "u10"  // 10 m eastward wind
	WindV     = "v10"  // 10 m northward wind
	Pressure  = "sp"   // surface pressure
	SpecHumid = "q"    // specific humidity
	DownSolar = "ssrd" // surface solar radiation downwards, accumulated over the hour
	Precip    = "tp"   // total precipitation, accumulated over the hour
)

// Antecedent precipitation settings.
const (
	PrecipDays    = 10    // days before acquisition searched for rain
	PrecipSumDays = 3     // days before acquisition summed into P_prior
	RainThreshold = 0.254 // daily precipitation [mm] that counts as rain
)

var (
	joulePerMeter2 = unit.Div(unit.New(1, unit.Joule), unit.New(1, unit.Meter2)).Dimensions()
	wattPerMeter2  = unit.Div(unit.New(1, unit.Watt), unit.New(1, unit.Meter2)).Dimensions()
)

// units maps the unit strings used in ERA5 files to their dimensions.
var units = map[string]unit.Dimensions{
	"K":         unit.Kelvin,
	"m s**-1":   unit.MeterPerSecond,
	"m s-1":     unit.MeterPerSecond,
	"Pa":        unit.Pascal,
	"J m**-2":   joulePerMeter2,
	"J m-2":     joulePerMeter2,
	"kg kg**-1": unit.Dimless,
	"kg kg-1":   unit.Dimless,
	"1":         unit.Dimless,
	"m":         unit.Meter,
}

// checkUnits returns an error if the named variable does not have
// dimensions d.
func (f *File) checkUnits(name string, d unit.Dimensions) error {
	s, err := f.Units(name)
	if err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	fd, ok := units[s]
	if !ok {
		return fmt.Errorf("era5: variable %s has unsupported units '%s'", name, s)
	}
	if err := unit.New(1, fd).Check(d); err != nil {
		return fmt.Errorf("era5: variable %s: %v", name, err)
	}
	return nil
}

// The daily shortwave radiation window around the acquisition time.
const (
	DailyBefore = 11 * time.Hour
	DailyAfter  = 13 * time.Hour
)

// Source is a sebal.MeteorologySource that samples an ERA5 file at the
// grid node nearest to each pixel, linearly interpolated in time to the
// scene acquisition.
//
// The file must hold t2m, u10 and v10, either d2m or both q and sp, and
// ssrd for every hour from 11 hours before to 13 hours after the
// scene acquisition. If it also holds tp for the PrecipDays UTC days
// before the acquisition day, the antecedent precipitation bands are
// added.
type Source struct {
	File *File
	Log  logrus.FieldLogger
}

func (src *Source) log() logrus.FieldLogger {
	if src.Log == nil {
		return logrus.StandardLogger()
	}
	return src.Log
}

// instant returns the named variable interpolated to time t.
func (src *Source) instant(name string, t time.Time) ([][]float64, error) {
	i0, i1, frac, err := src.File.bracket(t)
	if err != nil {
		return nil, err
	}
	before, err := src.File.Field(name, i0)
	if err != nil {
		return nil, err
	}
	if i0 == i1 {
		return before, nil
	}
	after, err := src.File.Field(name, i1)
	if err != nil {
		return nil, err
	}
	for i, row := range before {
		for j := range row {
			row[j] = sebal.Interpolate(row[j], after[i][j], frac)
		}
	}
	return before, nil
}

// accumulate returns the sum of the named hourly accumulations that begin
// at or after from and before to, and the number of records summed. Each
// record holds the accumulation over the hour ending at its time stamp.
func (src *Source) accumulate(name string, from, to time.Time) ([][]float64, int, error) {
	from, to = from.Add(time.Hour), to.Add(time.Hour)
	var sum [][]float64
	var n int
	for i, rt := range src.File.Times {
		if rt.Before(from) || !rt.Before(to) {
			continue
		}
		v, err := src.File.Field(name, i)
		if err != nil {
			return nil, 0, err
		}
		if sum == nil {
			sum = v
		} else {
			for r, row := range sum {
				for c := range row {
					row[c] += v[r][c]
				}
			}
		}
		n++
	}
	return sum, n, nil
}

// daily returns the mean downward shortwave flux [W m-2] over the 24
// hourly accumulations that begin from 11 hours before t up to 13 hours
// after it.
func (src *Source) daily(t time.Time) ([][]float64, error) {
	if err := src.File.checkUnits(DownSolar, joulePerMeter2); err != nil {
		return nil, err
	}
	from, to := t.Add(-DailyBefore), t.Add(DailyAfter)

	// J m-2 accumulated over the day to a mean flux.
	perDay := unit.Div(unit.New(1, joulePerMeter2), unit.New((24 * time.Hour).Seconds(), unit.Second))
	if err := perDay.Check(wattPerMeter2); err != nil {
		return nil, err
	}

	sum, n, err := src.accumulate(DownSolar, from, to)
	if err != nil {
		return nil, err
	}
	if n != 24 {
		return nil, fmt.Errorf("era5: found %d of 24 hourly %s records beginning between %s and %s",
			n, DownSolar, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	for _, row := range sum {
		for c := range row {
			row[c] *= perDay.Value()
		}
	}
	return sum, nil
}

// antecedent returns the precipitation [mm] over the PrecipSumDays UTC
// days before the day of t and the number of days since the last of the
// PrecipDays days before it with more than RainThreshold of rain. Days
// without rain count as PrecipDays.
func (src *Source) antecedent(t time.Time) (sum, lastRain [][]float64, err error) {
	if err := src.File.checkUnits(Precip, unit.Meter); err != nil {
		return nil, nil, err
	}
	t = t.UTC()
	day0 := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for k := 1; k <= PrecipDays; k++ {
		from := day0.AddDate(0, 0, -k)
		p, n, err := src.accumulate(Precip, from, from.Add(24*time.Hour))
		if err != nil {
			return nil, nil, err
		}
		if n != 24 {
			return nil, nil, fmt.Errorf("era5: found %d of 24 hourly %s records for %s",
				n, Precip, from.Format("2006-01-02"))
		}
		if sum == nil {
			sum = make([][]float64, len(p))
			lastRain = make([][]float64, len(p))
			for r := range p {
				sum[r] = make([]float64, len(p[r]))
				lastRain[r] = make([]float64, len(p[r]))
				for c := range lastRain[r] {
					lastRain[r][c] = PrecipDays
				}
			}
		}
		for r, row := range p {
			for c, v := range row {
				mm := v * 1000
				if k <= PrecipSumDays {
					sum[r][c] += mm
				}
				if mm > RainThreshold && float64(k) < lastRain[r][c] {
					lastRain[r][c] = float64(k)
				}
				if math.IsNaN(mm) {
					sum[r][c], lastRain[r][c] = math.NaN(), math.NaN()
				}
			}
		}
	}
	return sum, lastRain, nil
}

// Sample implements sebal.MeteorologySource.
func (src *Source) Sample(ctx context.Context, s *sebal.Scene) (*sebal.Raster, error) {
	f := src.File
	for name, d := range map[string]unit.Dimensions{
		AirTemp: unit.Kelvin, WindU: unit.MeterPerSecond, WindV: unit.MeterPerSecond,
	} {
		if err := f.checkUnits(name, d); err != nil {
			return nil, err
		}
	}
	useDewpoint := f.Has(Dewpoint)
	if useDewpoint {
		if err := f.checkUnits(Dewpoint, unit.Kelvin); err != nil {
			return nil, err
		}
	} else {
		if err := f.checkUnits(SpecHumid, unit.Dimless); err != nil {
			return nil, err
		}
		if err := f.checkUnits(Pressure, unit.Pascal); err != nil {
			return nil, err
		}
	}

	fields := make(map[string][][]float64)
	names := []string{AirTemp, WindU, WindV}
	if useDewpoint {
		names = append(names, Dewpoint)
	} else {
		names = append(names, SpecHumid, Pressure)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := src.instant(name, s.Time)
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}
	rs24, err := src.daily(s.Time)
	if err != nil {
		return nil, err
	}
	var precip, lastRain [][]float64
	if f.Has(Precip) {
		if precip, lastRain, err = src.antecedent(s.Time); err != nil {
			src.log().WithFields(logrus.Fields{"scene": s.ID, "error": err}).
				Warn("era5: antecedent precipitation is not available")
		}
	}

	lon, lat, err := sebal.LonLat(&s.Grid)
	if err != nil {
		return nil, err
	}
	r := sebal.NewRaster(s.Grid)
	ta := r.NewBand(sebal.BandAirTemp, "Air temperature", "°C")
	ux := r.NewBand(sebal.BandWindSpeed, "Wind speed at 2 m", "m s-1")
	rh := r.NewBand(sebal.BandRelHumid, "Relative humidity", "%")
	rs := r.NewBand(sebal.BandRs24h, "Daily incoming shortwave radiation", "W m-2")
	var pp, lr []float64
	if precip != nil {
		pp = r.NewBand(sebal.BandPrecip, fmt.Sprintf("Precipitation over the %d days before acquisition", PrecipSumDays), "mm")
		lr = r.NewBand(sebal.BandLastRain, "Days since the last rain before acquisition", "d")
	}
	var outside int
	for i := range lon {
		row, col, ok := f.index(lon[i], lat[i])
		if !ok {
			outside++
			continue
		}
		t := fields[AirTemp][row][col] - 273.15
		ta[i] = t
		ux[i] = sebal.WindAt2m(fields[WindU][row][col], fields[WindV][row][col])
		if useDewpoint {
			rh[i] = sebal.RelativeHumidity(t, fields[Dewpoint][row][col]-273.15)
		} else {
			rh[i] = sebal.RelativeHumiditySpecific(t, fields[SpecHumid][row][col], fields[Pressure][row][col]/1000)
		}
		rs[i] = rs24[row][col]
		if precip != nil {
			pp[i], lr[i] = precip[row][col], lastRain[row][col]
		}
	}
	if outside == len(lon) {
		return nil, fmt.Errorf("era5: scene %s is outside of the file's grid", s.ID)
	}
	if outside > 0 {
		src.log().WithFields(logrus.Fields{
			"scene":  s.ID,
			"pixels": outside,
		}).Warn("era5: pixels outside of the meteorology grid")
	}
	return r, nil
}
