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
	"runtime"
	"sync"
	"time"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
)

// SceneSummary describes a successfully processed scene.
type SceneSummary struct {
	ID           string
	Time         string
	Cold, Hot    Endmember
	Thresholds   Thresholds
	A, B         float64 // calibration coefficients
	NonConverged int
}

// Skipped describes a scene that could not be processed.
type Skipped struct {
	Index int
	ID    string
	Error string
}

// AggregateResult is the temporal mean of daily evapotranspiration over
// a collection.
type AggregateResult struct {
	// Raster holds the mean daily evapotranspiration (ET_24h) and the
	// number of scenes that contributed to each pixel (N).
	*Raster

	Scenes  []SceneSummary
	Skipped []Skipped

	// Series holds the values at each point for every scene that
	// contributed to the mean, in scene order.
	Series []PointValue
}

// Aggregator processes every scene in a collection and averages the
// daily evapotranspiration.
type Aggregator struct {
	*Orchestrator

	// Workers is the number of scenes processed at once. If it is
	// zero, runtime.GOMAXPROCS(0) is used.
	Workers int

	// AOI, if set, is the area of interest in grid coordinates. Pixels
	// whose centers are outside of it are masked.
	AOI geom.Polygonal

	// Points are locations, in grid coordinates, where a time series
	// of scene values is extracted.
	Points []Point
}

type sceneET struct {
	index  int
	id     string
	grid   *Grid
	et     []float64
	sum    SceneSummary
	points []PointValue
	err    error
}

// Summarize describes a successfully processed scene.
func Summarize(r SceneResult) SceneSummary {
	s := SceneSummary{
		ID:           r.ID(),
		Cold:         r.Endmembers.Cold,
		Hot:          r.Endmembers.Hot,
		Thresholds:   r.Endmembers.Thresholds,
		A:            r.Calibration.A,
		B:            r.Calibration.B,
		NonConverged: r.Diagnostics.NonConverged,
	}
	if r.Scene != nil {
		s.Time = r.Scene.Time.UTC().Format(time.RFC3339)
	}
	return s
}

// Aggregate processes the scenes in c concurrently and returns the
// per-pixel mean of daily evapotranspiration over the scenes where each
// pixel is not masked. Scenes that fail are logged and skipped. It
// returns ErrNoUsableScenes if no scene succeeds.
func (a *Aggregator) Aggregate(ctx context.Context, c Collection) (*AggregateResult, error) {
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n := c.Len()
	log := a.log()

	jobs := make(chan int)
	results := make(chan sceneET)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := process(ctx, c, a.Orchestrator, i)
				o := sceneET{index: i, id: r.ID(), err: r.Err}
				if r.Err == nil {
					o.grid = &r.Scene.Grid
					o.et, o.err = r.Scene.Band(BandET24h)
					o.sum = Summarize(r)
					o.points = PointValues(r, a.Points)
				}
				results <- o
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Results are reduced in scene order so the sums do not depend on
	// scheduling.
	var (
		acc     Accumulator
		out     = &AggregateResult{}
		pending = make(map[int]sceneET)
		next    int
	)
	reduce := func(r sceneET) {
		if r.err == nil {
			r.err = acc.Add(r.id, r.grid, r.et)
		}
		if r.err != nil {
			log.WithFields(logrus.Fields{"scene": r.id, "index": r.index, "error": r.err}).
				Warn("skipping scene")
			out.Skipped = append(out.Skipped, Skipped{Index: r.index, ID: r.id, Error: r.err.Error()})
			return
		}
		out.Scenes = append(out.Scenes, r.sum)
		out.Series = append(out.Series, r.points...)
	}
	for r := range results {
		pending[r.index] = r
		for {
			rr, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			reduce(rr)
			next++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sebal: aggregating scenes: %w", err)
	}
	var err error
	if out.Raster, err = acc.Mean(a.AOI); err != nil {
		return out, fmt.Errorf("sebal: none of %d scenes succeeded: %w", n, err)
	}
	log.WithFields(logrus.Fields{"scenes": len(out.Scenes), "skipped": len(out.Skipped)}).
		Info("aggregation complete")
	return out, nil
}

// Accumulator sums daily evapotranspiration over scenes that share a
// grid. The zero value is ready to use.
type Accumulator struct {
	grid       *Grid
	sum, count []float64
}

// Add adds the daily evapotranspiration et of the scene with the given id
// and grid. Masked (NaN) pixels are not counted.
func (acc *Accumulator) Add(id string, g *Grid, et []float64) error {
	if acc.grid == nil {
		gg := *g
		acc.grid = &gg
		acc.sum = make([]float64, g.Len())
		acc.count = make([]float64, g.Len())
	} else if !acc.grid.SameAs(g) {
		return fmt.Errorf("sebal: scene %s: grid %+v does not match collection grid %+v",
			id, *g, *acc.grid)
	}
	if len(et) != len(acc.sum) {
		return fmt.Errorf("sebal: scene %s: has %d pixels but the grid has %d", id, len(et), len(acc.sum))
	}
	for i, v := range et {
		if !math.IsNaN(v) {
			acc.sum[i] += v
			acc.count[i]++
		}
	}
	return nil
}

// Mean returns a raster with the mean daily evapotranspiration and the
// number of scenes at each pixel. Pixels that are masked in every scene,
// or whose centers are outside of aoi if it is not nil, are masked. It
// returns ErrNoUsableScenes if nothing has been added.
func (acc *Accumulator) Mean(aoi geom.Polygonal) (*Raster, error) {
	if acc.grid == nil {
		return nil, ErrNoUsableScenes
	}
	r := NewRaster(*acc.grid)
	mean := r.NewBand(BandET24h, "Mean daily evapotranspiration", "mm d-1")
	nBand := r.NewBand(BandCount, "Number of scenes", "-")
	for i := range mean {
		if aoi != nil && r.Center(i).Within(aoi) == geom.Outside {
			continue
		}
		nBand[i] = acc.count[i]
		if acc.count[i] > 0 {
			mean[i] = acc.sum[i] / acc.count[i]
		}
	}
	return r, nil
}
