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

package sebalutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sebal"
	"github.com/spatialmodel/sebal/cloud"
	"gonum.org/v1/gonum/floats"
)

// Settings holds the inputs and outputs of a run.
type Settings struct {
	// LogFile is the path to the desired logfile location. If it is
	// empty, the log is written next to OutputFile.
	LogFile string

	// OutputFile is the path to the output NetCDF (".nc") or shapefile.
	OutputFile string

	// SummaryFile is the path to the TOML run summary. If it is empty,
	// no summary is written.
	SummaryFile string

	// OutputVariables specifies which variables should be included in
	// the output file, as expressions of the raster bands.
	OutputVariables map[string]string

	// DEMFile is the path to the elevation raster.
	DEMFile string

	// DEMCacheSize is the number of resampled DEM grids kept in memory.
	DEMCacheSize int

	// MeteorologyFile is a meteorology raster on the scene grid, and
	// ERA5File is an ERA5 reanalysis file. At most one may be set.
	MeteorologyFile, ERA5File string

	// AOIFile is a GeoJSON polygon in longitude and latitude that the
	// aggregate is clipped to.
	AOIFile string

	// Points maps names to "longitude,latitude" locations where scene
	// values are extracted into the summary.
	Points map[string]string

	// Workers is the number of scenes processed at once.
	Workers int

	Params sebal.Params
}

// Summary describes a run.
type Summary struct {
	Version string
	Start   time.Time
	Elapsed string

	Scenes  []sebal.SceneSummary
	Skipped []sebal.Skipped

	// Series holds the scene values at each of the Points.
	Series []sebal.PointValue

	// ValidPixels is the number of output pixels with a daily
	// evapotranspiration value and MeanET is their mean [mm d-1].
	ValidPixels int
	MeanET      float64
}

// run holds the state shared by a scene and an aggregate run.
type run struct {
	Settings
	start    time.Time
	log      *logrus.Logger
	logfile  *os.File
	upload   cloud.Uploader
	out      *sebal.Outputter
	dem      sebal.DEMSource
	met      sebal.MeteorologySource
	summary  string
	outLocal string
}

// newRun checks the settings, opens the log file and prepares the
// inputs shared by all runs.
func newRun(ctx context.Context, w io.Writer, s Settings) (*run, error) {
	r := &run{Settings: s, start: time.Now()}
	var err error
	if r.OutputFile, err = checkOutputFile(s.OutputFile); err != nil {
		return nil, err
	}
	vars, err := checkOutputVars(s.OutputVariables)
	if err != nil {
		return nil, err
	}

	logPath, err := r.upload.MaybeUpload(checkLogFile(s.LogFile, r.OutputFile))
	if err != nil {
		return nil, err
	}
	if r.logfile, err = os.Create(logPath); err != nil {
		return nil, fmt.Errorf("sebal: problem creating log file: %v", err)
	}
	r.log = logrus.New()
	r.log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	r.log.Out = io.MultiWriter(w, r.logfile)

	if r.outLocal, err = r.upload.MaybeUpload(r.OutputFile); err != nil {
		return nil, r.close(ctx, err)
	}
	if r.out, err = sebal.NewOutputter(r.outLocal, vars, nil); err != nil {
		return nil, r.close(ctx, err)
	}
	if s.SummaryFile != "" {
		if r.summary, err = r.upload.MaybeUpload(os.ExpandEnv(s.SummaryFile)); err != nil {
			return nil, r.close(ctx, err)
		}
	}
	if r.dem, err = demSource(ctx, s.DEMFile, s.DEMCacheSize); err != nil {
		return nil, r.close(ctx, err)
	}
	if r.met, err = meteorologySource(ctx, s.MeteorologyFile, s.ERA5File, r.log); err != nil {
		return nil, r.close(ctx, err)
	}
	return r, nil
}

func (r *run) orchestrator(met sebal.MeteorologySource) *sebal.Orchestrator {
	return &sebal.Orchestrator{
		Params:      r.Params,
		DEM:         r.dem,
		Meteorology: met,
		Log:         r.log,
	}
}

// finish writes the output and the summary and uploads any files
// destined for blob storage.
func (r *run) finish(ctx context.Context, out *sebal.Raster, sum *Summary) error {
	if err := r.out.Output(out); err != nil {
		return r.close(ctx, err)
	}
	if et, err := out.Band(sebal.BandET24h); err == nil {
		valid := make([]float64, 0, len(et))
		for _, v := range et {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
		sum.ValidPixels = len(valid)
		if len(valid) > 0 {
			sum.MeanET = floats.Sum(valid) / float64(len(valid))
		}
	}
	sum.Version = sebal.Version
	sum.Start = r.start.UTC()
	sum.Elapsed = time.Since(r.start).String()
	if r.summary != "" {
		if err := writeSummary(r.summary, sum); err != nil {
			return r.close(ctx, err)
		}
	}
	r.log.WithFields(logrus.Fields{
		"output":       r.OutputFile,
		"valid_pixels": sum.ValidPixels,
		"mean_et":      sum.MeanET,
		"elapsed":      sum.Elapsed,
	}).Info("run complete")
	return r.close(ctx, nil)
}

// close closes the log file and uploads the output files. It returns
// err if it is not nil.
func (r *run) close(ctx context.Context, err error) error {
	if r.logfile != nil {
		if err != nil {
			r.log.WithError(err).Error("run failed")
		}
		if cerr := r.logfile.Close(); err == nil {
			err = cerr
		}
		r.logfile = nil
	}
	if uerr := r.upload.Upload(ctx); err == nil {
		err = uerr
	}
	return err
}

func writeSummary(path string, sum *Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sebal: creating summary file: %v", err)
	}
	if err := toml.NewEncoder(f).Encode(sum); err != nil {
		f.Close()
		return fmt.Errorf("sebal: writing summary file: %v", err)
	}
	return f.Close()
}

// RunScene calculates evapotranspiration for the scene in sceneFile and
// writes the output variables. Log messages are written to w and the
// log file.
func RunScene(ctx context.Context, w io.Writer, sceneFile string, s Settings) error {
	r, err := newRun(ctx, w, s)
	if err != nil {
		return err
	}
	if r.met == nil {
		return r.close(ctx, fmt.Errorf("sebal: you need to specify a MeteorologyFile or an ERA5File"))
	}
	if sceneFile == "" {
		return r.close(ctx, fmt.Errorf("sebal: you need to specify a SceneFile"))
	}
	c := &FileCollection{
		Manifest: &Manifest{Scene: []ManifestEntry{{File: os.ExpandEnv(sceneFile)}}},
		Default:  r.met,
		Log:      r.log,
	}
	scene, err := c.Scene(ctx, 0)
	if err != nil {
		return r.close(ctx, err)
	}
	points, err := parsePoints(s.Points, scene.Proj)
	if err != nil {
		return r.close(ctx, err)
	}
	res := r.orchestrator(c).Run(ctx, scene)
	if res.Err != nil {
		return r.close(ctx, res.Err)
	}
	return r.finish(ctx, res.Scene.Raster, &Summary{
		Scenes: []sebal.SceneSummary{sebal.Summarize(res)},
		Series: sebal.PointValues(res, points),
	})
}

// RunAggregate calculates the mean daily evapotranspiration of the scenes
// listed in manifestFile and writes the output variables, which can refer
// to the ET_24h and N bands.
func RunAggregate(ctx context.Context, w io.Writer, manifestFile string, s Settings) error {
	r, err := newRun(ctx, w, s)
	if err != nil {
		return err
	}
	if manifestFile == "" {
		return r.close(ctx, fmt.Errorf("sebal: you need to specify a Manifest"))
	}
	manifestFile = os.ExpandEnv(manifestFile)
	fname, err := cloud.Download(ctx, manifestFile)
	if err != nil {
		return r.close(ctx, err)
	}
	f, err := os.Open(fname)
	if err != nil {
		return r.close(ctx, fmt.Errorf("sebal: opening manifest: %v", err))
	}
	var dir string
	if !cloud.IsBlob(manifestFile) && !isURL(manifestFile) {
		dir = filepath.Dir(manifestFile)
	}
	m, err := ReadManifest(f, dir)
	f.Close()
	if err != nil {
		return r.close(ctx, err)
	}
	aoi, err := parseAOI(ctx, s.AOIFile, m.Proj)
	if err != nil {
		return r.close(ctx, err)
	}
	points, err := parsePoints(s.Points, m.Proj)
	if err != nil {
		return r.close(ctx, err)
	}

	c := &FileCollection{Manifest: m, Default: r.met, Log: r.log}
	a := &sebal.Aggregator{
		Orchestrator: r.orchestrator(c),
		Workers:      s.Workers,
		AOI:          aoi,
		Points:       points,
	}
	r.log.WithFields(logrus.Fields{"scenes": c.Len(), "workers": s.Workers}).Info("aggregating scenes")
	res, err := a.Aggregate(ctx, c)
	if errors.Is(err, sebal.ErrNoUsableScenes) && r.summary != "" {
		if serr := writeSummary(r.summary, &Summary{
			Version: sebal.Version,
			Start:   r.start.UTC(),
			Elapsed: time.Since(r.start).String(),
			Skipped: res.Skipped,
		}); serr != nil {
			r.log.WithError(serr).Error("writing summary")
		}
	}
	if err != nil {
		return r.close(ctx, err)
	}
	return r.finish(ctx, res.Raster, &Summary{Scenes: res.Scenes, Skipped: res.Skipped, Series: res.Series})
}
