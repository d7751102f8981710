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

// Package sebal estimates actual evapotranspiration from multispectral and
// thermal satellite imagery using the Surface Energy Balance Algorithm for
// Land (SEBAL).
//
// A scene is processed by a fixed series of SceneManipulators: spectral
// indices, land surface temperature correction, endmember selection,
// radiation balance, soil heat flux, sensible heat flux and finally
// evapotranspiration. Per-pixel work is spread across all available
// processors by Pixels. A Collection of scenes can be reduced to the
// temporal mean of daily evapotranspiration with an Aggregator.
package sebal

import (
	"errors"
	"fmt"
)

// Version gives the version number.
const Version = "0.1.0"

// DataVersion is the version of the raster file format.
const DataVersion = "1.0.0"

// Names of the input bands that every scene must carry. Ingestion
// normalizes sensor-specific band names to these.
const (
	BandUltraBlue = "UB"
	BandBlue      = "B"
	BandGreen     = "GR"
	BandRed       = "R"
	BandNIR       = "NIR"
	BandSWIR1     = "SWIR_1"
	BandSWIR2     = "SWIR_2"
	BandThermal   = "T_LST" // brightness temperature [K]
	BandElevation = "elevation"
)

// Names of the bands added to a scene as it is processed.
const (
	BandNDVI       = "NDVI"
	BandSAVI       = "SAVI"
	BandLAI        = "LAI"
	BandEmisNB     = "e_NB"
	BandEmis0      = "e_0"
	BandAlbedo     = "ALFA"
	BandLongitude  = "longitude"
	BandLatitude   = "latitude"
	BandLST        = "LST"
	BandLSTDEM     = "LST_DEM"
	BandCosZenith  = "Solar_angle_cos"
	BandTransm     = "tao_sw"
	BandRlUp       = "Rl_up"
	BandRsDown     = "Rs_down"
	BandRlDown     = "Rl_down"
	BandRn         = "Rn"
	BandG          = "G"
	BandDT         = "dT"
	BandRah        = "rah"
	BandUStar      = "u_star"
	BandH          = "H"
	BandNonConv    = "H_nonconv"
	BandLE         = "LE"
	BandETInst     = "ET_inst"
	BandEF         = "EF"
	BandET24h      = "ET_24h"
	BandCount      = "N"
	BandAirTemp    = "T_air"
	BandWindSpeed  = "ux"
	BandRelHumid   = "RH"
	BandRn24h      = "Rn24h"
	BandRs24h      = "Rs24h"
	BandRa24h      = "Ra24h"
	BandPrecip     = "P_prior"   // precipitation over the days before acquisition [mm]
	BandLastRain   = "last_rain" // days since the last rain before acquisition
	BandSlope      = "slope"     // terrain slope [degrees]
)

// Physical constants.
const (
	stefanBoltzmann = 5.67e-8 // [W m-2 K-4]
	solarConstant   = 1367.   // [W m-2]
	karman          = 0.41    // von Kármán constant
	gravity         = 9.81    // [m s-2]
	cpAir           = 1004.   // specific heat of air [J kg-1 K-1]
	waterDensity    = 1000.   // [kg m-3]
	kelvin          = 273.15
)

// Params holds the tunable constants of the algorithm. Percentiles are
// given in percent.
type Params struct {
	// ColdNDVIPercentile is the NDVI percentile at and above which pixels
	// are candidates for the cold endmember.
	ColdNDVIPercentile float64

	// ColdLSTPercentile is the LST percentile, within the cold NDVI subset,
	// at and below which pixels are cold endmember candidates.
	ColdLSTPercentile float64

	// HotNDVIPercentile is the NDVI percentile at and below which pixels
	// are candidates for the hot endmember.
	HotNDVIPercentile float64

	// HotLSTPercentile is the LST percentile, within the hot NDVI subset,
	// at and above which pixels are hot endmember candidates.
	HotLSTPercentile float64

	// Convergence is the fractional change in aerodynamic resistance
	// below which the stability iteration stops.
	Convergence float64

	// MaxIterations caps the stability iteration.
	MaxIterations int

	SAVIL float64 // soil brightness constant

	LapseRate float64 // [K m-1]

	StationVegHeight float64 // vegetation height at the weather station [m]
	BlendingHeight   float64 // [m]
	WindHeight       float64 // height of the wind speed input [m]

	// MinLST is the lowest temperature [K] accepted for an endmember.
	MinLST float64
}

// DefaultParams returns the parameter values used by geeSEBAL.
func DefaultParams() Params {
	return Params{
		ColdNDVIPercentile: 95,
		ColdLSTPercentile:  20,
		HotNDVIPercentile:  10,
		HotLSTPercentile:   80,
		Convergence:        0.01,
		MaxIterations:      15,
		SAVIL:              0.5,
		LapseRate:          0.0065,
		StationVegHeight:   3,
		BlendingHeight:     200,
		WindHeight:         2,
		MinLST:             200,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"ColdNDVIPercentile", p.ColdNDVIPercentile},
		{"ColdLSTPercentile", p.ColdLSTPercentile},
		{"HotNDVIPercentile", p.HotNDVIPercentile},
		{"HotLSTPercentile", p.HotLSTPercentile},
	} {
		if v.val < 0 || v.val > 100 {
			return fmt.Errorf("sebal: %s must be between 0 and 100 but is %g", v.name, v.val)
		}
	}
	if p.Convergence <= 0 {
		return fmt.Errorf("sebal: Convergence must be > 0 but is %g", p.Convergence)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("sebal: MaxIterations must be >= 1 but is %d", p.MaxIterations)
	}
	if p.StationVegHeight <= 0 || p.BlendingHeight <= 0 || p.WindHeight <= 0 {
		return errors.New("sebal: StationVegHeight, BlendingHeight and WindHeight must be > 0")
	}
	if p.BlendingHeight <= p.WindHeight {
		return fmt.Errorf("sebal: BlendingHeight (%g) must be above WindHeight (%g)",
			p.BlendingHeight, p.WindHeight)
	}
	return nil
}

var (
	// ErrInsufficientEndmemberData is returned when no cold or hot
	// endmember candidate can be found in a scene.
	ErrInsufficientEndmemberData = errors.New("insufficient endmember data")

	// ErrDegenerateCalibration is returned when the cold and hot
	// endmembers cannot define the near-surface temperature difference.
	ErrDegenerateCalibration = errors.New("degenerate calibration")

	// ErrNoUsableScenes is returned when no scene in a collection
	// could be processed.
	ErrNoUsableScenes = errors.New("no usable scenes")
)

// SceneError records a failure to process a scene.
type SceneError struct {
	ID    string // scene identifier
	Stage string
	Err   error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("sebal: scene %s: %s: %v", e.ID, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *SceneError) Unwrap() error { return e.Err }
