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
	"time"
)

const deg2rad = math.Pi / 180

// InverseRelativeDistance returns the inverse relative Earth-Sun distance
// on day of year doy (Allen et al., 1998).
func InverseRelativeDistance(doy int) float64 {
	return 1 + 0.033*math.Cos(2*math.Pi*float64(doy)/365)
}

// Declination returns the solar declination [rad] on day of year doy
// (ASCE, 2005).
func Declination(doy int) float64 {
	return 0.409 * math.Sin(2*math.Pi*float64(doy)/365-1.39)
}

// equationOfTime returns the equation of time [h] on day of year doy.
func equationOfTime(doy int) float64 {
	b := 2 * math.Pi * float64(doy-81) / 364
	return 0.1645*math.Sin(2*b) - 0.1255*math.Cos(b) - 0.025*math.Sin(b)
}

// HourAngle returns the solar hour angle [rad] at time t (UTC) and
// longitude lon [degrees].
func HourAngle(t time.Time, lon float64) float64 {
	t = t.UTC()
	hour := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	solarTime := hour + lon/15 + equationOfTime(t.YearDay())
	return math.Pi / 12 * (solarTime - 12)
}

// IncidenceCosine returns the cosine of the angle between the sun and the
// normal of a surface with slope and aspect (clockwise from north) [rad]
// at latitude lat [rad], declination dec and hour angle omega [rad]
// (Duffie and Beckman, 1991).
func IncidenceCosine(lat, dec, omega, slope, aspect float64) float64 {
	gamma := aspect - math.Pi // surface azimuth from south, west positive
	sinD, cosD := math.Sincos(dec)
	sinL, cosL := math.Sincos(lat)
	sinS, cosS := math.Sincos(slope)
	sinG, cosG := math.Sincos(gamma)
	sinW, cosW := math.Sincos(omega)
	return sinD*sinL*cosS -
		sinD*cosL*sinS*cosG +
		cosD*cosL*cosS*cosW +
		cosD*sinL*sinS*cosG*cosW +
		cosD*sinG*sinS*sinW
}

// SunsetHourAngle returns the sunset hour angle [rad] at latitude lat
// [rad] and declination dec [rad].
func SunsetHourAngle(lat, dec float64) float64 {
	x := -math.Tan(lat) * math.Tan(dec)
	// Polar day and night.
	return math.Acos(math.Max(-1, math.Min(1, x)))
}

// ExtraterrestrialRadiation24h returns the daily mean extraterrestrial
// radiation [W m-2] at latitude lat [degrees] on day of year doy
// (ASCE, 2005).
func ExtraterrestrialRadiation24h(lat float64, doy int) float64 {
	const gsc = 4.92 // solar constant [MJ m-2 h-1]
	const mjPerDayToWm2 = 11.574
	phi := lat * deg2rad
	dec := Declination(doy)
	ws := SunsetHourAngle(phi, dec)
	ra := 24 / math.Pi * gsc * InverseRelativeDistance(doy) *
		(ws*math.Sin(phi)*math.Sin(dec) + math.Cos(phi)*math.Cos(dec)*math.Sin(ws))
	return ra * mjPerDayToWm2
}

// AtmosphericPressure returns the mean atmospheric pressure [kPa] at
// elevation z [m].
func AtmosphericPressure(z float64) float64 {
	return 101.3 * math.Pow((293-0.0065*z)/293, 5.26)
}

// SaturationVaporPressure returns the saturation vapor pressure [kPa] at
// temperature tC [°C].
func SaturationVaporPressure(tC float64) float64 {
	return 0.6108 * math.Exp(17.27*tC/(tC+237.3))
}

// Transmissivity returns the broadband atmospheric transmissivity for
// pressure p [kPa], precipitable water w [mm] and the cosine of the solar
// zenith angle over a horizontal surface (Allen et al., 2007).
func Transmissivity(p, w, cosZenith float64) float64 {
	const kt = 1. // clear, unpolluted air
	return 0.35 + 0.627*math.Exp(-0.00146*p/(kt*cosZenith)-0.075*math.Pow(w/cosZenith, 0.4))
}
