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
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Names of the processing stages, as reported in SceneError.
const (
	StageInputs      = "inputs"
	StageIndices     = "spectral indices"
	StageTemperature = "temperature correction"
	StageEndmembers  = "endmember selection"
	StageRadiation   = "radiation balance"
	StageSoilHeat    = "soil heat flux"
	StageHotEnergy   = "hot endmember energy"
	StageSensible    = "sensible heat flux"
	StageDailyRn     = "daily net radiation"
	StageET          = "evapotranspiration"
)

// SceneResult is the outcome of processing one scene.
type SceneResult struct {
	// Scene holds the input bands and all derived bands. It is nil if
	// the scene could not be loaded.
	Scene *Scene

	// Meteorology is the meteorological sample used for the scene.
	Meteorology *Raster

	// DEM is the elevation used for the scene. It may be shared with
	// other scenes and must not be modified.
	DEM *Raster

	Endmembers  Endmembers
	Calibration Calibration
	Diagnostics SolverDiagnostics

	// Err is non-nil if processing failed. It is a *SceneError unless
	// the scene could not be loaded.
	Err error
}

// ID returns the identifier of the scene, or "" if there is no scene.
func (r SceneResult) ID() string {
	if r.Scene == nil {
		return ""
	}
	return r.Scene.ID
}

// Orchestrator runs the full chain of calculations on a scene.
type Orchestrator struct {
	Params      Params
	DEM         DEMSource
	Meteorology MeteorologySource

	// Log receives progress messages. If it is nil,
	// logrus.StandardLogger() is used.
	Log logrus.FieldLogger
}

func (o *Orchestrator) log() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

type stage struct {
	name string
	f    SceneManipulator
}

// Run calculates evapotranspiration for scene s. A failure in any stage
// stops processing of s and is returned in the result; it never panics
// or affects other scenes.
func (o *Orchestrator) Run(ctx context.Context, s *Scene) SceneResult {
	res := SceneResult{Scene: s}
	log := o.log().WithFields(logrus.Fields{"scene": s.ID})
	fail := func(stage string, err error) SceneResult {
		res.Err = &SceneError{ID: s.ID, Stage: stage, Err: err}
		return res
	}
	start := time.Now()

	if err := o.Params.Validate(); err != nil {
		return fail(StageInputs, err)
	}
	if o.DEM == nil || o.Meteorology == nil {
		return fail(StageInputs, errors.New("sebal: the orchestrator needs a DEM and a meteorology source"))
	}
	dem, err := o.DEM.Elevation(ctx, &s.Grid)
	if err != nil {
		return fail(StageInputs, err)
	}
	res.DEM = dem
	met, err := o.Meteorology.Sample(ctx, s)
	if err != nil {
		return fail(StageInputs, err)
	}
	res.Meteorology = met

	p := o.Params
	stages := []stage{
		{StageIndices, p.DeriveIndices()},
		{StageTemperature, p.CorrectTemperature(dem, met)},
		{StageEndmembers, p.SelectEndmembers(&res.Endmembers, met)},
		{StageRadiation, BalanceRadiation(&res.Endmembers)},
		{StageSoilHeat, SoilHeatFlux()},
		{StageHotEnergy, AttachHotEnergy(&res.Endmembers, met)},
		{StageSensible, p.SensibleHeatFlux(&res.Endmembers, met, &res.Calibration, &res.Diagnostics)},
		{StageDailyRn, DailyNetRadiation(met)},
		{StageET, Evapotranspiration(met)},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return fail(st.name, err)
		}
		if err := st.f(s); err != nil {
			return fail(st.name, err)
		}
		log.WithFields(logrus.Fields{"stage": st.name}).Debug("stage complete")
	}

	log.WithFields(logrus.Fields{
		"cold_lst":      res.Endmembers.Cold.LST,
		"hot_lst":       res.Endmembers.Hot.LST,
		"a":             res.Calibration.A,
		"b":             res.Calibration.B,
		"non_converged": res.Diagnostics.NonConverged,
		"duration":      time.Since(start),
	}).Info("scene complete")
	if res.Diagnostics.NonConverged > 0 {
		log.WithFields(logrus.Fields{"pixels": res.Diagnostics.NonConverged}).
			Warn("sensible heat flux did not converge for some pixels")
	}
	return res
}
